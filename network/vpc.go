// Package network declares the VPC, its subnets, gateways and route tables.
package network

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/zikster3262/pulumi-k8s/config"
)

// AnyIPv4 is the destination of every default route.
const AnyIPv4 = "0.0.0.0/0"

// Names are the logical names of every declared resource.
type Names struct {
	Vpc                 string
	InternetGateway     string
	PublicSubnets       []string
	PrivateSubnets      []string
	NatEip              string
	NatGateway          string
	PublicRouteTable    string
	PrivateRouteTable   string
	PublicAssociations  []string
	PrivateAssociations []string
}

// NamesFor derives resource names from the VPC name.
func NamesFor(cfg config.Network) Names {
	name := cfg.Name
	n := Names{
		Vpc:               name + "-vpc",
		InternetGateway:   name + "-igw",
		NatEip:            name + "-nat-eip",
		NatGateway:        name + "-nat",
		PublicRouteTable:  name + "-public-rt",
		PrivateRouteTable: name + "-private-rt",
	}
	for i := range cfg.PublicSubnetCidrs {
		n.PublicSubnets = append(n.PublicSubnets, fmt.Sprintf("%s-public-subnet-%d", name, i+1))
		n.PublicAssociations = append(n.PublicAssociations, fmt.Sprintf("%s-public-rta-%d", name, i+1))
	}
	for i := range cfg.PrivateSubnetCidrs {
		n.PrivateSubnets = append(n.PrivateSubnets, fmt.Sprintf("%s-private-subnet-%d", name, i+1))
		n.PrivateAssociations = append(n.PrivateAssociations, fmt.Sprintf("%s-private-rta-%d", name, i+1))
	}
	return n
}

// Topology holds the declared network resources.
type Topology struct {
	Vpc                 *ec2.Vpc
	InternetGateway     *ec2.InternetGateway
	PublicSubnets       []*ec2.Subnet
	PrivateSubnets      []*ec2.Subnet
	NatEip              *ec2.Eip
	NatGateway          *ec2.NatGateway
	PublicRouteTable    *ec2.RouteTable
	PrivateRouteTable   *ec2.RouteTable
	PublicAssociations  []*ec2.RouteTableAssociation
	PrivateAssociations []*ec2.RouteTableAssociation
}

// PublicSubnetIDs returns the IDs of the public subnets in declaration order.
func (t *Topology) PublicSubnetIDs() []pulumi.IDOutput {
	return subnetIDs(t.PublicSubnets)
}

// PrivateSubnetIDs returns the IDs of the private subnets in declaration order.
func (t *Topology) PrivateSubnetIDs() []pulumi.IDOutput {
	return subnetIDs(t.PrivateSubnets)
}

func subnetIDs(subnets []*ec2.Subnet) []pulumi.IDOutput {
	ids := make([]pulumi.IDOutput, 0, len(subnets))
	for _, s := range subnets {
		ids = append(ids, s.ID())
	}
	return ids
}

// Build declares the network. Every producer is declared before its
// consumers: the NAT gateway needs its Elastic IP and the first public
// subnet, the route tables need both gateways.
func Build(ctx *pulumi.Context, cfg config.Network, tags map[string]string) (*Topology, error) {
	if err := checkLayout(cfg); err != nil {
		return nil, err
	}

	names := NamesFor(cfg)
	t := &Topology{}
	var err error

	t.Vpc, err = ec2.NewVpc(ctx, names.Vpc, &ec2.VpcArgs{
		CidrBlock:          pulumi.String(cfg.VpcCidr),
		EnableDnsHostnames: pulumi.Bool(true),
		EnableDnsSupport:   pulumi.Bool(true),
		Tags: tagMap(tags, map[string]string{
			"Name":    names.Vpc,
			"Purpose": "kubernetes-cluster",
		}),
	})
	if err != nil {
		return nil, err
	}

	t.InternetGateway, err = ec2.NewInternetGateway(ctx, names.InternetGateway, &ec2.InternetGatewayArgs{
		VpcId: t.Vpc.ID(),
		Tags:  tagMap(tags, map[string]string{"Name": names.InternetGateway}),
	})
	if err != nil {
		return nil, err
	}

	t.PublicSubnets, err = declareSubnets(ctx, t.Vpc, cfg.AvailabilityZones, cfg.PublicSubnetCidrs, names.PublicSubnets, true, tags)
	if err != nil {
		return nil, err
	}

	t.PrivateSubnets, err = declareSubnets(ctx, t.Vpc, cfg.AvailabilityZones, cfg.PrivateSubnetCidrs, names.PrivateSubnets, false, tags)
	if err != nil {
		return nil, err
	}

	t.NatEip, err = ec2.NewEip(ctx, names.NatEip, &ec2.EipArgs{
		Domain: pulumi.String("vpc"),
		Tags:   tagMap(tags, map[string]string{"Name": names.NatEip}),
	})
	if err != nil {
		return nil, err
	}

	t.NatGateway, err = ec2.NewNatGateway(ctx, names.NatGateway, &ec2.NatGatewayArgs{
		AllocationId: t.NatEip.ID(),
		SubnetId:     t.PublicSubnets[0].ID(),
		Tags:         tagMap(tags, map[string]string{"Name": names.NatGateway}),
	})
	if err != nil {
		return nil, err
	}

	if err := t.declareRouting(ctx, names, tags); err != nil {
		return nil, err
	}

	ctx.Log.Debug(fmt.Sprintf("network %s: %d public and %d private subnets in %v",
		cfg.Name, len(t.PublicSubnets), len(t.PrivateSubnets), cfg.AvailabilityZones), nil)

	return t, nil
}

func declareSubnets(ctx *pulumi.Context, vpc *ec2.Vpc, zones, cidrs, names []string, public bool, tags map[string]string) ([]*ec2.Subnet, error) {
	kind := "private"
	if public {
		kind = "public"
	}

	subnets := make([]*ec2.Subnet, 0, len(cidrs))
	for i, cidr := range cidrs {
		subnet, err := ec2.NewSubnet(ctx, names[i], &ec2.SubnetArgs{
			VpcId:               vpc.ID(),
			CidrBlock:           pulumi.String(cidr),
			AvailabilityZone:    pulumi.String(zones[i]),
			MapPublicIpOnLaunch: pulumi.Bool(public),
			Tags: tagMap(tags, map[string]string{
				"Name": names[i],
				"Type": kind,
			}),
		})
		if err != nil {
			return nil, err
		}
		subnets = append(subnets, subnet)
	}
	return subnets, nil
}

func (t *Topology) declareRouting(ctx *pulumi.Context, names Names, tags map[string]string) error {
	var err error

	t.PublicRouteTable, err = ec2.NewRouteTable(ctx, names.PublicRouteTable, &ec2.RouteTableArgs{
		VpcId: t.Vpc.ID(),
		Routes: ec2.RouteTableRouteArray{
			&ec2.RouteTableRouteArgs{
				CidrBlock: pulumi.String(AnyIPv4),
				GatewayId: t.InternetGateway.ID(),
			},
		},
		Tags: tagMap(tags, map[string]string{"Name": names.PublicRouteTable}),
	})
	if err != nil {
		return err
	}

	t.PrivateRouteTable, err = ec2.NewRouteTable(ctx, names.PrivateRouteTable, &ec2.RouteTableArgs{
		VpcId: t.Vpc.ID(),
		Routes: ec2.RouteTableRouteArray{
			&ec2.RouteTableRouteArgs{
				CidrBlock:    pulumi.String(AnyIPv4),
				NatGatewayId: t.NatGateway.ID(),
			},
		},
		Tags: tagMap(tags, map[string]string{"Name": names.PrivateRouteTable}),
	})
	if err != nil {
		return err
	}

	t.PublicAssociations, err = associate(ctx, t.PublicSubnets, t.PublicRouteTable, names.PublicAssociations)
	if err != nil {
		return err
	}

	t.PrivateAssociations, err = associate(ctx, t.PrivateSubnets, t.PrivateRouteTable, names.PrivateAssociations)
	return err
}

func associate(ctx *pulumi.Context, subnets []*ec2.Subnet, table *ec2.RouteTable, names []string) ([]*ec2.RouteTableAssociation, error) {
	assocs := make([]*ec2.RouteTableAssociation, 0, len(subnets))
	for i, subnet := range subnets {
		a, err := ec2.NewRouteTableAssociation(ctx, names[i], &ec2.RouteTableAssociationArgs{
			SubnetId:     subnet.ID(),
			RouteTableId: table.ID(),
		})
		if err != nil {
			return nil, err
		}
		assocs = append(assocs, a)
	}
	return assocs, nil
}

func checkLayout(cfg config.Network) error {
	if len(cfg.PublicSubnetCidrs) == 0 {
		return &config.ConfigurationError{Field: "public subnets", Reason: "at least one is required for the NAT gateway"}
	}
	if len(cfg.PublicSubnetCidrs) != len(cfg.AvailabilityZones) || len(cfg.PrivateSubnetCidrs) != len(cfg.AvailabilityZones) {
		return &config.ConfigurationError{
			Field: "subnets",
			Reason: fmt.Sprintf("%d availability zones, %d public and %d private subnets",
				len(cfg.AvailabilityZones), len(cfg.PublicSubnetCidrs), len(cfg.PrivateSubnetCidrs)),
		}
	}
	return nil
}

func tagMap(common, own map[string]string) pulumi.StringMap {
	return pulumi.ToStringMap(config.MergeTags(common, own))
}
