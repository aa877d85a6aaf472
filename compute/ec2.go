// Package compute declares the Kubernetes node pool: one security group per
// role and a fixed number of instances spread over the private subnets.
package compute

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/zikster3262/pulumi-k8s/config"
)

// Role is the Kubernetes role of a node.
type Role string

const (
	RoleMaster Role = "master"
	RoleWorker Role = "worker"
)

// Instance sizes actually declared. They do not follow instance_type_1 and
// instance_type_2; see InstanceTypeWarnings.
const (
	MasterInstanceType = "c7gn.large"
	WorkerInstanceType = "c6g.medium"
)

// Subnet offsets per role, so masters and workers start on different subnets.
const (
	masterOffset = 0
	workerOffset = 1
)

// Placement is one planned instance.
type Placement struct {
	Role         Role
	Name         string
	SubnetIndex  int
	InstanceType string
}

// SubnetIndex is the round-robin subnet slot of the i-th instance of a role.
func SubnetIndex(i, offset, n int) int {
	return (i + offset) % n
}

// Plan assigns every instance to a subnet. It fails when there is no subnet
// to place instances in.
func Plan(prefix string, subnetCount int, cfg config.Compute) ([]Placement, error) {
	if subnetCount < 1 {
		return nil, &config.ConfigurationError{
			Field:  "private subnets",
			Reason: "at least one is required to place instances",
		}
	}

	placements := make([]Placement, 0, cfg.MasterCount+cfg.WorkerCount)
	for i := 0; i < cfg.MasterCount; i++ {
		placements = append(placements, Placement{
			Role:         RoleMaster,
			Name:         fmt.Sprintf("%s-master-%d", prefix, i+1),
			SubnetIndex:  SubnetIndex(i, masterOffset, subnetCount),
			InstanceType: MasterInstanceType,
		})
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		placements = append(placements, Placement{
			Role:         RoleWorker,
			Name:         fmt.Sprintf("%s-worker-%d", prefix, i+1),
			SubnetIndex:  SubnetIndex(i, workerOffset, subnetCount),
			InstanceType: WorkerInstanceType,
		})
	}
	return placements, nil
}

// Topology holds the declared compute resources.
type Topology struct {
	MasterSecurityGroup *ec2.SecurityGroup
	WorkerSecurityGroup *ec2.SecurityGroup
	Masters             []*ec2.Instance
	Workers             []*ec2.Instance

	// Set only when config.Compute.NodeInstanceProfile is enabled.
	NodeRole        *iam.Role
	InstanceProfile *iam.InstanceProfile
}

// Instances returns masters followed by workers.
func (t *Topology) Instances() []*ec2.Instance {
	all := make([]*ec2.Instance, 0, len(t.Masters)+len(t.Workers))
	all = append(all, t.Masters...)
	return append(all, t.Workers...)
}

// Build declares the security groups and instances. Nothing is declared when
// privateSubnetIDs is empty.
func Build(ctx *pulumi.Context, prefix string, vpcID pulumi.IDOutput, privateSubnetIDs []pulumi.IDOutput, cfg config.Compute, tags map[string]string) (*Topology, error) {
	placements, err := Plan(prefix, len(privateSubnetIDs), cfg)
	if err != nil {
		return nil, err
	}

	warnInstanceTypes(ctx, cfg)

	t := &Topology{}

	t.MasterSecurityGroup, err = newSecurityGroup(ctx, prefix, RoleMaster, vpcID, tags)
	if err != nil {
		return nil, err
	}

	t.WorkerSecurityGroup, err = newSecurityGroup(ctx, prefix, RoleWorker, vpcID, tags)
	if err != nil {
		return nil, err
	}

	if cfg.NodeInstanceProfile {
		t.NodeRole, t.InstanceProfile, err = newInstanceProfile(ctx, prefix, tags)
		if err != nil {
			return nil, err
		}
	}

	for _, p := range placements {
		sg := t.MasterSecurityGroup
		if p.Role == RoleWorker {
			sg = t.WorkerSecurityGroup
		}

		args := &ec2.InstanceArgs{
			Ami:                      pulumi.String(cfg.Ami),
			InstanceType:             pulumi.String(p.InstanceType),
			SubnetId:                 privateSubnetIDs[p.SubnetIndex],
			VpcSecurityGroupIds:      pulumi.StringArray{sg.ID()},
			AssociatePublicIpAddress: pulumi.Bool(false),
			RootBlockDevice: &ec2.InstanceRootBlockDeviceArgs{
				VolumeSize:          pulumi.Int(cfg.VolumeSize),
				VolumeType:          pulumi.String(cfg.VolumeType),
				DeleteOnTermination: pulumi.Bool(true),
			},
			Tags: pulumi.ToStringMap(config.MergeTags(tags, map[string]string{
				"Name":    p.Name,
				"Purpose": "kubernetes-node",
				"Type":    string(p.Role),
			})),
		}
		if cfg.HasKeyName() {
			args.KeyName = pulumi.String(cfg.KeyName)
		}
		if t.InstanceProfile != nil {
			args.IamInstanceProfile = t.InstanceProfile.Name
		}

		instance, err := ec2.NewInstance(ctx, p.Name, args)
		if err != nil {
			return nil, err
		}

		if p.Role == RoleMaster {
			t.Masters = append(t.Masters, instance)
		} else {
			t.Workers = append(t.Workers, instance)
		}
	}

	return t, nil
}

func newSecurityGroup(ctx *pulumi.Context, prefix string, role Role, vpcID pulumi.IDOutput, tags map[string]string) (*ec2.SecurityGroup, error) {
	name := SecurityGroupName(prefix, role)

	sg, err := ec2.NewSecurityGroup(ctx, name, &ec2.SecurityGroupArgs{
		Description: pulumi.String("Security group for EC2 instances in private subnets"),
		VpcId:       vpcID,
		Ingress:     ec2.SecurityGroupIngressArray{},
		Egress: ec2.SecurityGroupEgressArray{
			&ec2.SecurityGroupEgressArgs{
				Description: pulumi.String("All outbound traffic"),
				Protocol:    pulumi.String("-1"),
				FromPort:    pulumi.Int(0),
				ToPort:      pulumi.Int(0),
				CidrBlocks:  pulumi.StringArray{pulumi.String("0.0.0.0/0")},
			},
		},
		Tags: pulumi.ToStringMap(config.MergeTags(tags, map[string]string{
			"Name":    name,
			"Purpose": fmt.Sprintf("kubernetes-%s-nodes", role),
		})),
	})
	if err != nil {
		return nil, err
	}

	ctx.Log.Warn(NoIngressWarning(name), &pulumi.LogArgs{Resource: sg})

	return sg, nil
}

const ec2AssumeRolePolicy = `{
    "Version": "2012-10-17",
    "Statement": [{
        "Sid": "",
        "Effect": "Allow",
        "Principal": {
            "Service": "ec2.amazonaws.com"
        },
        "Action": "sts:AssumeRole"
    }]
}`

// SSMPolicyArn lets nodes be managed through Systems Manager without ingress rules.
const SSMPolicyArn = "arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"

// ProfileNames are the IAM resources declared for the node instance profile.
type ProfileNames struct {
	Role       string
	Attachment string
	Profile    string
}

// ProfileNamesFor derives the IAM resource names from prefix.
func ProfileNamesFor(prefix string) ProfileNames {
	return ProfileNames{
		Role:       prefix + "-node-role",
		Attachment: prefix + "-node-ssm",
		Profile:    prefix + "-node-profile",
	}
}

func newInstanceProfile(ctx *pulumi.Context, prefix string, tags map[string]string) (*iam.Role, *iam.InstanceProfile, error) {
	names := ProfileNamesFor(prefix)

	role, err := iam.NewRole(ctx, names.Role, &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(ec2AssumeRolePolicy),
		Tags:             pulumi.ToStringMap(config.MergeTags(tags, map[string]string{"Name": names.Role})),
	})
	if err != nil {
		return nil, nil, err
	}

	_, err = iam.NewRolePolicyAttachment(ctx, names.Attachment, &iam.RolePolicyAttachmentArgs{
		Role:      role.Name,
		PolicyArn: pulumi.String(SSMPolicyArn),
	})
	if err != nil {
		return nil, nil, err
	}

	profile, err := iam.NewInstanceProfile(ctx, names.Profile, &iam.InstanceProfileArgs{
		Role: role.Name,
		Tags: pulumi.ToStringMap(config.MergeTags(tags, map[string]string{"Name": names.Profile})),
	})
	if err != nil {
		return nil, nil, err
	}

	return role, profile, nil
}

// InstanceTypeWarnings lists the configured instance sizes that are not
// applied by Build.
func InstanceTypeWarnings(cfg config.Compute) []string {
	var warnings []string
	if cfg.InstanceTypeMaster != MasterInstanceType {
		warnings = append(warnings, fmt.Sprintf("instance_type_1=%s is not applied, masters are declared as %s",
			cfg.InstanceTypeMaster, MasterInstanceType))
	}
	if cfg.InstanceTypeWorker != WorkerInstanceType {
		warnings = append(warnings, fmt.Sprintf("instance_type_2=%s is not applied, workers are declared as %s",
			cfg.InstanceTypeWorker, WorkerInstanceType))
	}
	return warnings
}

// NoIngressWarning is reported for every security group Build declares.
func NoIngressWarning(securityGroup string) string {
	return securityGroup + " has no ingress rules: SSH and the Kubernetes API are unreachable until rules are added"
}

// SecurityGroupName is the name of the security group of role.
func SecurityGroupName(prefix string, role Role) string {
	return fmt.Sprintf("%s-%s-sg", prefix, role)
}

func warnInstanceTypes(ctx *pulumi.Context, cfg config.Compute) {
	for _, w := range InstanceTypeWarnings(cfg) {
		ctx.Log.Warn(w, nil)
	}
}
