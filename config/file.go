package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// File is the optional cluster.yaml overlay.
type File struct {
	Environment string `yaml:"environment"`
	Vpc         struct {
		Name           string   `yaml:"name"`
		CidrBlock      string   `yaml:"cidr_block"`
		Region         string   `yaml:"region"`
		PublicSubnets  []string `yaml:"public_subnets"`
		PrivateSubnets []string `yaml:"private_subnets"`
	} `yaml:"vpc"`
	Nodes struct {
		KeyName            string `yaml:"key_name"`
		Ami                string `yaml:"ami"`
		MasterInstanceType string `yaml:"master_instance_type"`
		WorkerInstanceType string `yaml:"worker_instance_type"`
		InstanceProfile    *bool  `yaml:"instance_profile"`
	} `yaml:"nodes"`
	Bucket struct {
		Name   string `yaml:"name"`
		Region string `yaml:"region"`
	} `yaml:"bucket"`
}

// ReadFile decodes path. A missing file is not an error and yields nil.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg File
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &cfg, nil
}

// Source exposes the file as configuration keys. A nil file yields an empty
// source.
func (f *File) Source() Source {
	project, provider := MapGetter{}, MapGetter{}
	if f == nil {
		return Source{Project: project, Provider: provider}
	}

	set := func(m MapGetter, key, value string) {
		if value != "" {
			m[key] = value
		}
	}

	set(project, "environment", f.Environment)
	set(project, "vpc_name", f.Vpc.Name)
	set(project, "vpc_cidr", f.Vpc.CidrBlock)
	set(provider, "region", f.Vpc.Region)
	for i, cidr := range f.Vpc.PublicSubnets {
		set(project, fmt.Sprintf("public_subnet_%d_cidr", i+1), cidr)
	}
	for i, cidr := range f.Vpc.PrivateSubnets {
		set(project, fmt.Sprintf("private_subnet_%d_cidr", i+1), cidr)
	}
	set(project, "key_name", f.Nodes.KeyName)
	set(project, "ami", f.Nodes.Ami)
	set(project, "instance_type_1", f.Nodes.MasterInstanceType)
	set(project, "instance_type_2", f.Nodes.WorkerInstanceType)
	if f.Nodes.InstanceProfile != nil {
		set(project, "node_instance_profile", strconv.FormatBool(*f.Nodes.InstanceProfile))
	}
	set(project, "bucket_name", f.Bucket.Name)
	set(project, "region", f.Bucket.Region)

	return Source{Project: project, Provider: provider}
}

// subnetsPerKind is the number of public and private subnets Load reads.
const subnetsPerKind = 2

// Ignored reports the subnet entries Load never reads, one message each.
func (f *File) Ignored() []string {
	if f == nil {
		return nil
	}

	var out []string
	extra := func(kind string, cidrs []string) {
		for i := subnetsPerKind; i < len(cidrs); i++ {
			out = append(out, fmt.Sprintf("vpc.%s_subnets[%d] %s is ignored: only %d %s subnets are built",
				kind, i, cidrs[i], subnetsPerKind, kind))
		}
	}
	extra("public", f.Vpc.PublicSubnets)
	extra("private", f.Vpc.PrivateSubnets)
	return out
}
