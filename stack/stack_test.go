package stack

import (
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zikster3262/pulumi-k8s/config"
	"github.com/zikster3262/pulumi-k8s/internal/mocks"
)

func settings(project config.MapGetter) config.Settings {
	return config.Load(config.Source{
		Project:  project,
		Provider: config.MapGetter{"region": "us-east-1"},
	})
}

func keys(m pulumi.Map) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestRunDefaultScenario(t *testing.T) {
	m := mocks.New()

	var (
		outputKeys     []string
		vpcID          pulumi.ID
		natEip         string
		publicSubnets  []string
		privateSubnets []string
		instanceIDs    []string
		privateIPs     []string
	)
	err := pulumi.RunErr(func(ctx *pulumi.Context) error {
		outputs, err := Run(ctx, settings(config.MapGetter{"vpc_cidr": "10.0.0.0/16"}))
		if err != nil {
			return err
		}
		outputKeys = keys(outputs)
		vpcID = mocks.Await[pulumi.ID](outputs["vpc_id"].(pulumi.IDOutput))
		natEip = mocks.Await[string](outputs["nat_eip"].(pulumi.StringOutput))
		publicSubnets = mocks.Await[[]string](outputs["public_subnet_ids"].(pulumi.StringArray).ToStringArrayOutput())
		privateSubnets = mocks.Await[[]string](outputs["private_subnet_ids"].(pulumi.StringArray).ToStringArrayOutput())
		instanceIDs = mocks.Await[[]string](outputs["all_instance_ids"].(pulumi.StringArray).ToStringArrayOutput())
		privateIPs = mocks.Await[[]string](outputs["all_instance_private_ips"].(pulumi.StringArray).ToStringArrayOutput())
		return nil
	}, m.Option())
	require.NoError(t, err)

	assert.Equal(t, sorted(ClusterOutputs), outputKeys)
	assert.Equal(t, pulumi.ID("k8s-cluster-vpc_id"), vpcID)
	assert.Equal(t, "203.0.113.10", natEip)
	assert.Equal(t, []string{"k8s-cluster-public-subnet-1_id", "k8s-cluster-public-subnet-2_id"}, publicSubnets)
	assert.Equal(t, []string{"k8s-cluster-private-subnet-1_id", "k8s-cluster-private-subnet-2_id"}, privateSubnets)
	assert.Equal(t, []string{"k8s-cluster-master-1_id", "k8s-cluster-worker-1_id", "k8s-cluster-worker-2_id"}, instanceIDs)
	assert.Len(t, privateIPs, 3)

	cidrs := map[string]string{}
	for _, s := range m.OfType(mocks.Subnet) {
		cidrs[s.Name] = s.Inputs["cidrBlock"].(string)
	}
	assert.Equal(t, map[string]string{
		"k8s-cluster-public-subnet-1":  "10.0.1.0/24",
		"k8s-cluster-public-subnet-2":  "10.0.2.0/24",
		"k8s-cluster-private-subnet-1": "10.0.11.0/24",
		"k8s-cluster-private-subnet-2": "10.0.12.0/24",
	}, cidrs)

	nats := m.OfType(mocks.NatGateway)
	require.Len(t, nats, 1)
	assert.Equal(t, "k8s-cluster-public-subnet-1_id", nats[0].Inputs["subnetId"])

	private := map[string]bool{}
	for _, id := range privateSubnets {
		private[id] = true
	}
	instances := m.OfType(mocks.Instance)
	require.Len(t, instances, 3)
	for _, inst := range instances {
		assert.True(t, private[inst.Inputs["subnetId"].(string)], "%s is not in a private subnet", inst.Name)
		assert.Equal(t, false, inst.Inputs["associatePublicIpAddress"], inst.Name)
	}

	vpc, _ := m.Get(mocks.Vpc, "k8s-cluster-vpc")
	tags := vpc.Inputs["tags"].(map[string]interface{})
	assert.Equal(t, "self-managed-k8s", tags["Project"])
	assert.Equal(t, "pulumi", tags["ManagedBy"])
}

func TestRunIsDeterministic(t *testing.T) {
	run := func() []mocks.Record {
		m := mocks.New()
		err := pulumi.RunErr(func(ctx *pulumi.Context) error {
			_, err := Run(ctx, settings(nil))
			return err
		}, m.Option())
		require.NoError(t, err)
		return m.Records()
	}

	first, second := run(), run()
	require.NotEmpty(t, first)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("declarations differ between runs (-first +second):\n%s", diff)
	}
}

func TestRunFailsBeforeDeclaring(t *testing.T) {
	m := mocks.New()
	err := pulumi.RunErr(func(ctx *pulumi.Context) error {
		_, err := Run(ctx, settings(config.MapGetter{"private_subnet_1_cidr": "10.1.0.0/24"}))
		return err
	}, m.Option())

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Empty(t, m.Records())
}

func TestRunStorage(t *testing.T) {
	m := mocks.New()
	var outputKeys []string
	var arn string

	err := pulumi.RunErr(func(ctx *pulumi.Context) error {
		outputs, err := RunStorage(ctx, settings(config.MapGetter{"bucket_name": "k8s-state"}))
		if err != nil {
			return err
		}
		outputKeys = keys(outputs)
		arn = mocks.Await[string](outputs["bucket_arn"].(pulumi.StringOutput))
		return nil
	}, m.Option())
	require.NoError(t, err)

	assert.Equal(t, sorted(StorageOutputs), outputKeys)
	assert.Equal(t, "arn:aws:s3:::k8s-state", arn)
	assert.Len(t, m.OfType(mocks.BucketPolicy), 1)
}

func TestProgramStorageVariant(t *testing.T) {
	m := mocks.New()
	err := pulumi.RunErr(func(ctx *pulumi.Context) error {
		return Program(ctx, settings(config.MapGetter{"variant": config.VariantStorage}))
	}, m.Option())
	require.NoError(t, err)

	assert.Len(t, m.OfType(mocks.Bucket), 1)
	assert.Empty(t, m.OfType(mocks.Vpc))
}

func TestRunStorageRejectsBucketName(t *testing.T) {
	m := mocks.New()
	err := pulumi.RunErr(func(ctx *pulumi.Context) error {
		_, err := RunStorage(ctx, settings(config.MapGetter{"bucket_name": "No"}))
		return err
	}, m.Option())

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Empty(t, m.Records())
}

func TestProgramClusterVariant(t *testing.T) {
	m := mocks.New()
	err := pulumi.RunErr(func(ctx *pulumi.Context) error {
		return Program(ctx, settings(nil))
	}, m.Option())
	require.NoError(t, err)

	assert.Len(t, m.OfType(mocks.Instance), 3)
	assert.Empty(t, m.OfType(mocks.Bucket))
}

func TestProgramRejectsUnknownVariant(t *testing.T) {
	for _, variant := range []string{"edge", "storag", "Cluster"} {
		t.Run(variant, func(t *testing.T) {
			m := mocks.New()
			err := pulumi.RunErr(func(ctx *pulumi.Context) error {
				return Program(ctx, settings(config.MapGetter{"variant": variant}))
			}, m.Option())

			var cfgErr *config.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, "variant", cfgErr.Field)
			assert.Equal(t, variant, cfgErr.Value)
			assert.Empty(t, m.Records())
		})
	}
}
