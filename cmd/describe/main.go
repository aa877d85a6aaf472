// Command describe prints the resolved settings and the resources a run
// would declare, without contacting the Pulumi engine or AWS.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/zikster3262/pulumi-k8s/config"
	"github.com/zikster3262/pulumi-k8s/logging"
	"github.com/zikster3262/pulumi-k8s/stack"
)

type options struct {
	stackFile   string
	clusterFile string
	project     string
	logLevel    string
}

func parseFlags(args []string) (options, error) {
	var o options
	flags := pflag.NewFlagSet("describe", pflag.ContinueOnError)
	flags.StringVarP(&o.stackFile, "stack-file", "s", "Pulumi.dev.yaml", "Pulumi stack settings file")
	flags.StringVarP(&o.clusterFile, "cluster-file", "f", "", "cluster.yaml overlay (defaults to $K8S_CLUSTER_FILE)")
	flags.StringVarP(&o.project, "project", "p", "k8s-cluster", "project namespace of the stack config keys")
	flags.StringVar(&o.logLevel, "log-level", "", "log level (defaults to $K8S_LOG_LEVEL)")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	env, err := config.ReadEnv()
	if err != nil {
		return err
	}
	if o.clusterFile == "" {
		o.clusterFile = env.ClusterFile
	}
	if o.logLevel == "" {
		o.logLevel = env.LogLevel
	}

	logger, err := logging.New(o.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	stackSrc, err := readStackFile(o.stackFile, o.project)
	if err != nil {
		return fmt.Errorf("reading stack file: %w", err)
	}
	file, err := config.ReadFile(o.clusterFile)
	if err != nil {
		return fmt.Errorf("reading cluster file: %w", err)
	}
	logger.Debug("sources",
		zap.String("stack_file", o.stackFile),
		zap.String("cluster_file", o.clusterFile),
		zap.Bool("cluster_file_found", file != nil),
	)

	settings := config.Load(config.Merge(env.Source(), stackSrc, file.Source()))

	d, err := stack.Describe(settings)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	d.Warnings = append(d.Warnings, file.Ignored()...)
	for _, w := range d.Warnings {
		logger.Warn(w)
	}

	b, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	_, err = out.Write(b)
	return err
}

type stackFile struct {
	Config map[string]interface{} `yaml:"config"`
}

// readStackFile maps "<project>:key" entries to the project namespace and
// "aws:key" entries to the provider namespace. Secure values are skipped.
func readStackFile(path, project string) (config.Source, error) {
	projectKeys, providerKeys := config.MapGetter{}, config.MapGetter{}
	src := config.Source{Project: projectKeys, Provider: providerKeys}

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return src, nil
	}
	if err != nil {
		return config.Source{}, err
	}

	var sf stackFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return config.Source{}, err
	}

	for key, raw := range sf.Config {
		var value string
		switch v := raw.(type) {
		case string:
			value = v
		case bool, int, float64:
			value = fmt.Sprint(v)
		default:
			continue
		}

		ns, name, found := strings.Cut(key, ":")
		if !found {
			ns, name = project, key
		}
		switch ns {
		case project:
			projectKeys[name] = value
		case "aws":
			providerKeys[name] = value
		}
	}
	return src, nil
}
