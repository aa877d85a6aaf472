// Package config resolves the settings of the cluster program into an
// immutable snapshot that is passed by value to every builder.
package config

import (
	"strconv"
)

const (
	VariantCluster = "cluster"
	VariantStorage = "storage"
)

// Defaults for every recognized option.
const (
	DefaultVpcName            = "k8s-cluster"
	DefaultVpcCidr            = "10.0.0.0/16"
	DefaultRegion             = "us-east-1"
	DefaultPublicSubnet1Cidr  = "10.0.1.0/24"
	DefaultPublicSubnet2Cidr  = "10.0.2.0/24"
	DefaultPrivateSubnet1Cidr = "10.0.11.0/24"
	DefaultPrivateSubnet2Cidr = "10.0.12.0/24"
	DefaultInstanceTypeMaster = "t3.medium"
	DefaultInstanceTypeWorker = "t3.small"
	DefaultAmi                = "ami-001991993fd5323ab" // Amazon Linux 2023
	DefaultEnvironment        = "dev"
	DefaultBucketName         = "my-self-managed-k8s-bucket"
	DefaultBucketRegion       = "us-west-1"
)

// Settings is the resolved configuration snapshot.
type Settings struct {
	Variant     string
	Environment string
	Network     Network
	Compute     Compute
	Storage     Storage
}

// Network describes the VPC layout.
type Network struct {
	Name               string
	VpcCidr            string
	Region             string
	AvailabilityZones  []string
	PublicSubnetCidrs  []string
	PrivateSubnetCidrs []string
}

// Compute describes the node pool.
type Compute struct {
	InstanceTypeMaster string
	InstanceTypeWorker string
	// KeyName is empty when no SSH key pair is configured.
	KeyName             string
	Ami                 string
	MasterCount         int
	WorkerCount         int
	VolumeSize          int
	VolumeType          string
	NodeInstanceProfile bool
}

// HasKeyName reports whether an SSH key pair name was supplied.
func (c Compute) HasKeyName() bool {
	return c.KeyName != ""
}

// Storage describes the standalone bucket program.
type Storage struct {
	BucketName string
	// Region is resolved for config compatibility only. The bucket is
	// created in the provider's region, which bucket_region reports.
	Region string
}

// Load resolves every option against its default. It never fails.
func Load(src Source) Settings {
	region := or(src.provider("region"), DefaultRegion)

	return Settings{
		Variant:     or(src.project("variant"), VariantCluster),
		Environment: or(src.project("environment"), DefaultEnvironment),
		Network: Network{
			Name:    or(src.project("vpc_name"), DefaultVpcName),
			VpcCidr: or(src.project("vpc_cidr"), DefaultVpcCidr),
			Region:  region,
			AvailabilityZones: []string{
				region + "a",
				region + "b",
			},
			PublicSubnetCidrs: []string{
				or(src.project("public_subnet_1_cidr"), DefaultPublicSubnet1Cidr),
				or(src.project("public_subnet_2_cidr"), DefaultPublicSubnet2Cidr),
			},
			PrivateSubnetCidrs: []string{
				or(src.project("private_subnet_1_cidr"), DefaultPrivateSubnet1Cidr),
				or(src.project("private_subnet_2_cidr"), DefaultPrivateSubnet2Cidr),
			},
		},
		Compute: Compute{
			InstanceTypeMaster:  or(src.project("instance_type_1"), DefaultInstanceTypeMaster),
			InstanceTypeWorker:  or(src.project("instance_type_2"), DefaultInstanceTypeWorker),
			KeyName:             src.project("key_name"),
			Ami:                 or(src.project("ami"), DefaultAmi),
			MasterCount:         1,
			WorkerCount:         2,
			VolumeSize:          50,
			VolumeType:          "gp3",
			NodeInstanceProfile: boolOr(src.project("node_instance_profile"), false),
		},
		Storage: Storage{
			BucketName: or(src.project("bucket_name"), DefaultBucketName),
			Region:     or(src.project("region"), DefaultBucketRegion),
		},
	}
}

// Tags returns the tags shared by every declared resource.
func (s Settings) Tags() map[string]string {
	return map[string]string{
		"Environment": s.Environment,
		"Project":     "self-managed-k8s",
		"ManagedBy":   "pulumi",
	}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolOr(v string, def bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// MergeTags overlays own on top of base without touching either map.
func MergeTags(base, own map[string]string) map[string]string {
	tags := make(map[string]string, len(base)+len(own))
	for k, v := range base {
		tags[k] = v
	}
	for k, v := range own {
		tags[k] = v
	}
	return tags
}
