package stack

import (
	"github.com/zikster3262/pulumi-k8s/compute"
	"github.com/zikster3262/pulumi-k8s/config"
	"github.com/zikster3262/pulumi-k8s/network"
)

// Declaration is one planned resource.
type Declaration struct {
	Type      string   `yaml:"type"`
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// Placement is a planned instance and the subnet it lands in.
type Placement struct {
	Name         string `yaml:"name"`
	Role         string `yaml:"role"`
	InstanceType string `yaml:"instance_type"`
	Subnet       string `yaml:"subnet"`
	SubnetCidr   string `yaml:"subnet_cidr"`
}

// Description is what a run would declare, computed without the engine.
type Description struct {
	Variant    string            `yaml:"variant"`
	Tags       map[string]string `yaml:"tags"`
	Resources  []Declaration     `yaml:"resources"`
	Placements []Placement       `yaml:"placements,omitempty"`
	Outputs    []string          `yaml:"outputs"`
	Warnings   []string          `yaml:"warnings,omitempty"`
}

// Describe validates s and lists the declarations of the selected variant in
// dependency order.
func Describe(s config.Settings) (*Description, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	d := &Description{
		Variant: s.Variant,
		Tags:    s.Tags(),
	}

	if s.Variant == config.VariantStorage {
		d.Resources = []Declaration{
			{Type: "aws:s3/bucket:Bucket", Name: "k8s-bucket"},
			{Type: "aws:s3/bucketServerSideEncryptionConfigurationV2:BucketServerSideEncryptionConfigurationV2", Name: "k8s-bucket-encryption", DependsOn: []string{"k8s-bucket"}},
			{Type: "aws:s3/bucketPolicy:BucketPolicy", Name: "k8s-bucket-policy", DependsOn: []string{"k8s-bucket"}},
		}
		d.Outputs = StorageOutputs
		return d, nil
	}

	n := network.NamesFor(s.Network)
	add := func(typ, name string, deps ...string) {
		d.Resources = append(d.Resources, Declaration{Type: typ, Name: name, DependsOn: deps})
	}

	add("aws:ec2/vpc:Vpc", n.Vpc)
	add("aws:ec2/internetGateway:InternetGateway", n.InternetGateway, n.Vpc)
	for _, name := range n.PublicSubnets {
		add("aws:ec2/subnet:Subnet", name, n.Vpc)
	}
	for _, name := range n.PrivateSubnets {
		add("aws:ec2/subnet:Subnet", name, n.Vpc)
	}
	add("aws:ec2/eip:Eip", n.NatEip)
	add("aws:ec2/natGateway:NatGateway", n.NatGateway, n.NatEip, n.PublicSubnets[0])
	add("aws:ec2/routeTable:RouteTable", n.PublicRouteTable, n.Vpc, n.InternetGateway)
	add("aws:ec2/routeTable:RouteTable", n.PrivateRouteTable, n.Vpc, n.NatGateway)
	for i, name := range n.PublicAssociations {
		add("aws:ec2/routeTableAssociation:RouteTableAssociation", name, n.PublicSubnets[i], n.PublicRouteTable)
	}
	for i, name := range n.PrivateAssociations {
		add("aws:ec2/routeTableAssociation:RouteTableAssociation", name, n.PrivateSubnets[i], n.PrivateRouteTable)
	}

	prefix := s.Network.Name
	sg := map[compute.Role]string{
		compute.RoleMaster: compute.SecurityGroupName(prefix, compute.RoleMaster),
		compute.RoleWorker: compute.SecurityGroupName(prefix, compute.RoleWorker),
	}
	add("aws:ec2/securityGroup:SecurityGroup", sg[compute.RoleMaster], n.Vpc)
	add("aws:ec2/securityGroup:SecurityGroup", sg[compute.RoleWorker], n.Vpc)

	var profile string
	if s.Compute.NodeInstanceProfile {
		p := compute.ProfileNamesFor(prefix)
		add("aws:iam/role:Role", p.Role)
		add("aws:iam/rolePolicyAttachment:RolePolicyAttachment", p.Attachment, p.Role)
		add("aws:iam/instanceProfile:InstanceProfile", p.Profile, p.Role)
		profile = p.Profile
	}

	placements, err := compute.Plan(prefix, len(n.PrivateSubnets), s.Compute)
	if err != nil {
		return nil, err
	}
	for _, p := range placements {
		deps := []string{n.PrivateSubnets[p.SubnetIndex], sg[p.Role]}
		if profile != "" {
			deps = append(deps, profile)
		}
		add("aws:ec2/instance:Instance", p.Name, deps...)

		d.Placements = append(d.Placements, Placement{
			Name:         p.Name,
			Role:         string(p.Role),
			InstanceType: p.InstanceType,
			Subnet:       n.PrivateSubnets[p.SubnetIndex],
			SubnetCidr:   s.Network.PrivateSubnetCidrs[p.SubnetIndex],
		})
	}

	d.Outputs = ClusterOutputs
	d.Warnings = append(d.Warnings, compute.NoIngressWarning(sg[compute.RoleMaster]), compute.NoIngressWarning(sg[compute.RoleWorker]))
	d.Warnings = append(d.Warnings, compute.InstanceTypeWarnings(s.Compute)...)

	return d, nil
}
