package compute

import (
	"errors"
	"testing"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zikster3262/pulumi-k8s/config"
	"github.com/zikster3262/pulumi-k8s/internal/mocks"
)

func defaultCompute() config.Compute {
	return config.Load(config.Source{}).Compute
}

func TestSubnetIndex(t *testing.T) {
	tests := []struct {
		i, offset, n, want int
	}{
		{0, 0, 2, 0},
		{0, 1, 2, 1},
		{1, 1, 2, 0},
		{2, 0, 3, 2},
		{5, 1, 3, 0},
		{3, 1, 1, 0},
	}
	for _, tt := range tests {
		if got := SubnetIndex(tt.i, tt.offset, tt.n); got != tt.want {
			t.Errorf("SubnetIndex(%d, %d, %d) = %d, want %d", tt.i, tt.offset, tt.n, got, tt.want)
		}
	}
}

func TestPlanRoundRobin(t *testing.T) {
	placements, err := Plan("k8s-cluster", 2, defaultCompute())
	require.NoError(t, err)

	assert.Equal(t, []Placement{
		{Role: RoleMaster, Name: "k8s-cluster-master-1", SubnetIndex: 0, InstanceType: MasterInstanceType},
		{Role: RoleWorker, Name: "k8s-cluster-worker-1", SubnetIndex: 1, InstanceType: WorkerInstanceType},
		{Role: RoleWorker, Name: "k8s-cluster-worker-2", SubnetIndex: 0, InstanceType: WorkerInstanceType},
	}, placements)
}

func TestPlanSingleSubnet(t *testing.T) {
	placements, err := Plan("k8s-cluster", 1, defaultCompute())
	require.NoError(t, err)
	for _, p := range placements {
		assert.Equal(t, 0, p.SubnetIndex, p.Name)
	}
}

func TestPlanWithoutSubnets(t *testing.T) {
	placements, err := Plan("k8s-cluster", 0, defaultCompute())
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Empty(t, placements)
}

func build(t *testing.T, cfg config.Compute, subnets ...string) (*mocks.Monitor, *Topology, error) {
	t.Helper()
	m := mocks.New()
	var topo *Topology
	err := pulumi.RunErr(func(ctx *pulumi.Context) error {
		ids := make([]pulumi.IDOutput, 0, len(subnets))
		for _, s := range subnets {
			ids = append(ids, pulumi.ID(s).ToIDOutput())
		}
		var err error
		topo, err = Build(ctx, "k8s-cluster", pulumi.ID("vpc-1").ToIDOutput(), ids, cfg, map[string]string{"Environment": "dev"})
		return err
	}, m.Option())
	return m, topo, err
}

func TestBuildAssignsSubnets(t *testing.T) {
	m, topo, err := build(t, defaultCompute(), "subnet-a", "subnet-b")
	require.NoError(t, err)

	assert.Len(t, topo.Masters, 1)
	assert.Len(t, topo.Workers, 2)
	assert.Len(t, topo.Instances(), 3)
	assert.Nil(t, topo.InstanceProfile)

	want := map[string]string{
		"k8s-cluster-master-1": "subnet-a",
		"k8s-cluster-worker-1": "subnet-b",
		"k8s-cluster-worker-2": "subnet-a",
	}
	instances := m.OfType(mocks.Instance)
	require.Len(t, instances, len(want))
	for _, inst := range instances {
		assert.Equal(t, want[inst.Name], inst.Inputs["subnetId"], inst.Name)
	}
}

func TestBuildInstanceShape(t *testing.T) {
	m, _, err := build(t, defaultCompute(), "subnet-a", "subnet-b")
	require.NoError(t, err)

	master, ok := m.Get(mocks.Instance, "k8s-cluster-master-1")
	require.True(t, ok)
	assert.Equal(t, MasterInstanceType, master.Inputs["instanceType"])
	assert.Equal(t, config.DefaultAmi, master.Inputs["ami"])
	assert.Equal(t, false, master.Inputs["associatePublicIpAddress"])
	assert.Equal(t, []interface{}{"k8s-cluster-master-sg_id"}, master.Inputs["vpcSecurityGroupIds"])
	assert.Nil(t, master.Inputs["keyName"])
	assert.Nil(t, master.Inputs["userData"])

	root := master.Inputs["rootBlockDevice"].(map[string]interface{})
	assert.Equal(t, float64(50), root["volumeSize"])
	assert.Equal(t, "gp3", root["volumeType"])
	assert.Equal(t, true, root["deleteOnTermination"])

	worker, _ := m.Get(mocks.Instance, "k8s-cluster-worker-2")
	assert.Equal(t, WorkerInstanceType, worker.Inputs["instanceType"])
	assert.Equal(t, []interface{}{"k8s-cluster-worker-sg_id"}, worker.Inputs["vpcSecurityGroupIds"])
	tags := worker.Inputs["tags"].(map[string]interface{})
	assert.Equal(t, "worker", tags["Type"])
	assert.Equal(t, "dev", tags["Environment"])
}

func TestBuildSecurityGroups(t *testing.T) {
	m, _, err := build(t, defaultCompute(), "subnet-a")
	require.NoError(t, err)

	groups := m.OfType(mocks.SecurityGroup)
	require.Len(t, groups, 2)
	for _, sg := range groups {
		assert.Equal(t, "vpc-1", sg.Inputs["vpcId"], sg.Name)
		assert.Empty(t, sg.Inputs["ingress"], sg.Name)

		egress := sg.Inputs["egress"].([]interface{})
		require.Len(t, egress, 1, sg.Name)
		rule := egress[0].(map[string]interface{})
		assert.Equal(t, "-1", rule["protocol"])
		assert.Equal(t, []interface{}{"0.0.0.0/0"}, rule["cidrBlocks"])
	}
}

func TestBuildKeyName(t *testing.T) {
	cfg := defaultCompute()
	cfg.KeyName = "ops"

	m, _, err := build(t, cfg, "subnet-a")
	require.NoError(t, err)
	for _, inst := range m.OfType(mocks.Instance) {
		assert.Equal(t, "ops", inst.Inputs["keyName"], inst.Name)
	}
}

func TestBuildInstanceProfile(t *testing.T) {
	cfg := defaultCompute()
	cfg.NodeInstanceProfile = true

	m, topo, err := build(t, cfg, "subnet-a", "subnet-b")
	require.NoError(t, err)
	require.NotNil(t, topo.InstanceProfile)

	assert.Len(t, m.OfType(mocks.Role), 1)
	attachment, ok := m.Get(mocks.RolePolicyAttachment, "k8s-cluster-node-ssm")
	require.True(t, ok)
	assert.Equal(t, SSMPolicyArn, attachment.Inputs["policyArn"])

	for _, inst := range m.OfType(mocks.Instance) {
		assert.Equal(t, "k8s-cluster-node-profile", inst.Inputs["iamInstanceProfile"], inst.Name)
	}
}

func TestBuildWithoutSubnetsDeclaresNothing(t *testing.T) {
	m, topo, err := build(t, defaultCompute())

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Nil(t, topo)
	assert.Empty(t, m.OfType(mocks.Instance))
	assert.Empty(t, m.Records())
}

func TestInstanceTypeWarnings(t *testing.T) {
	assert.Len(t, InstanceTypeWarnings(defaultCompute()), 2)

	cfg := defaultCompute()
	cfg.InstanceTypeMaster = MasterInstanceType
	cfg.InstanceTypeWorker = WorkerInstanceType
	assert.Empty(t, InstanceTypeWarnings(cfg))
}
