package main

import (
	"fmt"
	"os"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	pconfig "github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
	"go.uber.org/zap"

	"github.com/zikster3262/pulumi-k8s/config"
	"github.com/zikster3262/pulumi-k8s/logging"
	"github.com/zikster3262/pulumi-k8s/stack"
)

func processError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
}

func main() {
	env, err := config.ReadEnv()
	if err != nil {
		processError(err)
	}

	logger, err := logging.New(env.LogLevel)
	if err != nil {
		processError(err)
	}
	defer logger.Sync() //nolint:errcheck

	file, err := config.ReadFile(env.ClusterFile)
	if err != nil {
		logger.Error("reading cluster file", zap.String("path", env.ClusterFile), zap.Error(err))
		processError(err)
	}
	for _, msg := range file.Ignored() {
		logger.Warn(msg, zap.String("path", env.ClusterFile))
	}

	pulumi.Run(func(ctx *pulumi.Context) error {
		// environment > stack config > cluster file > defaults
		settings := config.Load(config.Merge(
			env.Source(),
			config.Source{
				Project:  pconfig.New(ctx, ""),
				Provider: pconfig.New(ctx, "aws"),
			},
			file.Source(),
		))

		logger.Debug("resolved settings",
			zap.String("stack", ctx.Stack()),
			zap.String("variant", settings.Variant),
			zap.String("vpc", settings.Network.Name),
			zap.String("region", settings.Network.Region),
			zap.Bool("cluster_file", file != nil),
		)

		return stack.Program(ctx, settings)
	})
}
