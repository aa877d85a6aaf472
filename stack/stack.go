// Package stack composes the builders into the two programs of the project
// and publishes their outputs.
package stack

import (
	"sort"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/zikster3262/pulumi-k8s/compute"
	"github.com/zikster3262/pulumi-k8s/config"
	"github.com/zikster3262/pulumi-k8s/network"
	"github.com/zikster3262/pulumi-k8s/storage"
)

// ClusterOutputs are the keys published by Run.
var ClusterOutputs = []string{
	"vpc_id",
	"vpc_cidr",
	"internet_gateway_id",
	"nat_gateway_id",
	"nat_eip",
	"public_subnet_ids",
	"private_subnet_ids",
	"public_route_table_id",
	"private_route_table_id",
	"master_security_group_id",
	"worker_security_group_id",
	"master_instance_ids",
	"worker_instance_ids",
	"all_instance_ids",
	"master_instance_private_ips",
	"worker_instance_private_ips",
	"all_instance_private_ips",
}

// StorageOutputs are the keys published by RunStorage.
var StorageOutputs = []string{
	"bucket_name",
	"bucket_arn",
	"bucket_region",
	"bucket_domain_name",
}

// Program runs the variant selected by s.Variant and exports its outputs.
// An unknown variant is rejected before anything is declared.
func Program(ctx *pulumi.Context, s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	var (
		outputs pulumi.Map
		err     error
	)
	switch s.Variant {
	case config.VariantCluster:
		outputs, err = Run(ctx, s)
	case config.VariantStorage:
		outputs, err = RunStorage(ctx, s)
	default:
		return &config.ConfigurationError{Field: "variant", Value: s.Variant, Reason: "unknown program"}
	}
	if err != nil {
		return err
	}

	Export(ctx, outputs)
	return nil
}

// Run declares the network and the node pool. The settings are validated
// before anything is declared; builder errors are returned unchanged.
func Run(ctx *pulumi.Context, s config.Settings) (pulumi.Map, error) {
	s.Variant = config.VariantCluster
	if err := s.Validate(); err != nil {
		return nil, err
	}
	tags := s.Tags()

	net, err := network.Build(ctx, s.Network, tags)
	if err != nil {
		return nil, err
	}

	nodes, err := compute.Build(ctx, s.Network.Name, net.Vpc.ID(), net.PrivateSubnetIDs(), s.Compute, tags)
	if err != nil {
		return nil, err
	}

	return pulumi.Map{
		"vpc_id":                      net.Vpc.ID(),
		"vpc_cidr":                    net.Vpc.CidrBlock,
		"internet_gateway_id":         net.InternetGateway.ID(),
		"nat_gateway_id":              net.NatGateway.ID(),
		"nat_eip":                     net.NatEip.PublicIp,
		"public_subnet_ids":           ids(net.PublicSubnetIDs()),
		"private_subnet_ids":          ids(net.PrivateSubnetIDs()),
		"public_route_table_id":       net.PublicRouteTable.ID(),
		"private_route_table_id":      net.PrivateRouteTable.ID(),
		"master_security_group_id":    nodes.MasterSecurityGroup.ID(),
		"worker_security_group_id":    nodes.WorkerSecurityGroup.ID(),
		"master_instance_ids":         instanceIDs(nodes.Masters),
		"worker_instance_ids":         instanceIDs(nodes.Workers),
		"all_instance_ids":            instanceIDs(nodes.Instances()),
		"master_instance_private_ips": privateIPs(nodes.Masters),
		"worker_instance_private_ips": privateIPs(nodes.Workers),
		"all_instance_private_ips":    privateIPs(nodes.Instances()),
	}, nil
}

// RunStorage declares the encrypted bucket.
func RunStorage(ctx *pulumi.Context, s config.Settings) (pulumi.Map, error) {
	s.Variant = config.VariantStorage
	if err := s.Validate(); err != nil {
		return nil, err
	}

	b, err := storage.Build(ctx, s.Storage, s.Tags())
	if err != nil {
		return nil, err
	}

	return pulumi.Map{
		"bucket_name":        b.Bucket.Bucket,
		"bucket_arn":         b.Bucket.Arn,
		"bucket_region":      b.Bucket.Region,
		"bucket_domain_name": b.Bucket.BucketDomainName,
	}, nil
}

// Export publishes outputs as stack outputs in key order.
func Export(ctx *pulumi.Context, outputs pulumi.Map) {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		ctx.Export(k, outputs[k])
	}
}

func ids(in []pulumi.IDOutput) pulumi.StringArray {
	out := make(pulumi.StringArray, 0, len(in))
	for _, id := range in {
		out = append(out, id)
	}
	return out
}

func instanceIDs(instances []*ec2.Instance) pulumi.StringArray {
	out := make(pulumi.StringArray, 0, len(instances))
	for _, i := range instances {
		out = append(out, i.ID())
	}
	return out
}

func privateIPs(instances []*ec2.Instance) pulumi.StringArray {
	out := make(pulumi.StringArray, 0, len(instances))
	for _, i := range instances {
		out = append(out, i.PrivateIp)
	}
	return out
}
