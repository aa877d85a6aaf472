package config

import (
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment override, e.g. K8S_VPC_CIDR.
const EnvPrefix = "k8s"

// Env holds overrides read from the process environment.
type Env struct {
	ClusterFile string `envconfig:"CLUSTER_FILE" default:"cluster.yaml"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Variant             string `envconfig:"VARIANT"`
	Environment         string `envconfig:"ENVIRONMENT"`
	VpcName             string `envconfig:"VPC_NAME"`
	VpcCidr             string `envconfig:"VPC_CIDR"`
	Region              string `envconfig:"REGION"`
	KeyName             string `envconfig:"KEY_NAME"`
	Ami                 string `envconfig:"AMI"`
	InstanceTypeMaster  string `envconfig:"INSTANCE_TYPE_1"`
	InstanceTypeWorker  string `envconfig:"INSTANCE_TYPE_2"`
	NodeInstanceProfile string `envconfig:"NODE_INSTANCE_PROFILE"`
	BucketName          string `envconfig:"BUCKET_NAME"`
	BucketRegion        string `envconfig:"BUCKET_REGION"`
}

// ReadEnv processes K8S_* variables.
func ReadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return Env{}, err
	}
	return e, nil
}

// Source exposes the overrides as configuration keys.
func (e Env) Source() Source {
	project := MapGetter{
		"variant":               e.Variant,
		"environment":           e.Environment,
		"vpc_name":              e.VpcName,
		"vpc_cidr":              e.VpcCidr,
		"key_name":              e.KeyName,
		"ami":                   e.Ami,
		"instance_type_1":       e.InstanceTypeMaster,
		"instance_type_2":       e.InstanceTypeWorker,
		"node_instance_profile": e.NodeInstanceProfile,
		"bucket_name":           e.BucketName,
		"region":                e.BucketRegion,
	}
	return Source{
		Project:  project,
		Provider: MapGetter{"region": e.Region},
	}
}
