// Package mocks provides a recording resource monitor for running builders
// under pulumi.WithMocks.
package mocks

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pulumi/pulumi/sdk/v3/go/common/resource"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// Type tokens of the resources declared by this repository.
const (
	Vpc                   = "aws:ec2/vpc:Vpc"
	InternetGateway       = "aws:ec2/internetGateway:InternetGateway"
	Subnet                = "aws:ec2/subnet:Subnet"
	Eip                   = "aws:ec2/eip:Eip"
	NatGateway            = "aws:ec2/natGateway:NatGateway"
	RouteTable            = "aws:ec2/routeTable:RouteTable"
	RouteTableAssociation = "aws:ec2/routeTableAssociation:RouteTableAssociation"
	SecurityGroup         = "aws:ec2/securityGroup:SecurityGroup"
	Instance              = "aws:ec2/instance:Instance"
	Role                  = "aws:iam/role:Role"
	RolePolicyAttachment  = "aws:iam/rolePolicyAttachment:RolePolicyAttachment"
	InstanceProfile       = "aws:iam/instanceProfile:InstanceProfile"
	Bucket                = "aws:s3/bucket:Bucket"
	BucketEncryption      = "aws:s3/bucketServerSideEncryptionConfigurationV2:BucketServerSideEncryptionConfigurationV2"
	BucketPolicy          = "aws:s3/bucketPolicy:BucketPolicy"
)

// Record is one declared resource.
type Record struct {
	Type   string
	Name   string
	Inputs map[string]interface{}
}

// Monitor records every resource registration. IDs are the resource name
// with an "_id" suffix, so they are stable across runs.
type Monitor struct {
	mu      sync.Mutex
	records []Record
}

// New returns an empty Monitor.
func New() *Monitor {
	return &Monitor{}
}

// Option returns the RunOption installing m.
func (m *Monitor) Option() pulumi.RunOption {
	return pulumi.WithMocks("k8s-cluster", "test", m)
}

// NewResource implements pulumi.MockResourceMonitor.
func (m *Monitor) NewResource(args pulumi.MockResourceArgs) (string, resource.PropertyMap, error) {
	id := args.Name + "_id"
	outputs := args.Inputs.Copy()

	switch args.TypeToken {
	case Vpc:
		outputs["arn"] = resource.NewStringProperty("arn:aws:ec2:us-east-1:123456789012:vpc/" + id)
	case Eip:
		outputs["publicIp"] = resource.NewStringProperty("203.0.113.10")
	case Instance:
		outputs["privateIp"] = resource.NewStringProperty(privateIP(args.Name))
	case Bucket:
		name := id
		if b, ok := args.Inputs["bucket"]; ok && b.IsString() {
			name = b.StringValue()
		}
		outputs["bucket"] = resource.NewStringProperty(name)
		outputs["arn"] = resource.NewStringProperty("arn:aws:s3:::" + name)
		outputs["region"] = resource.NewStringProperty("us-west-1")
		outputs["bucketDomainName"] = resource.NewStringProperty(name + ".s3.amazonaws.com")
	case Role, InstanceProfile:
		outputs["name"] = resource.NewStringProperty(args.Name)
		outputs["arn"] = resource.NewStringProperty("arn:aws:iam::123456789012:role/" + args.Name)
	}

	m.mu.Lock()
	m.records = append(m.records, Record{
		Type:   args.TypeToken,
		Name:   args.Name,
		Inputs: args.Inputs.Mappable(),
	})
	m.mu.Unlock()

	return id, outputs, nil
}

// Call implements pulumi.MockResourceMonitor.
func (m *Monitor) Call(args pulumi.MockCallArgs) (resource.PropertyMap, error) {
	return args.Args, nil
}

// Records returns every registration sorted by type and name.
func (m *Monitor) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, len(m.records))
	copy(out, m.records)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// OfType returns the registrations of one type, sorted by name.
func (m *Monitor) OfType(typ string) []Record {
	var out []Record
	for _, r := range m.Records() {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

// Get returns the registration of name, if any.
func (m *Monitor) Get(typ, name string) (Record, bool) {
	for _, r := range m.OfType(typ) {
		if r.Name == name {
			return r, true
		}
	}
	return Record{}, false
}

// Await blocks until o resolves and returns its value. It must be called
// from inside the program passed to pulumi.RunErr.
func Await[T any](o pulumi.Output) T {
	ch := make(chan T, 1)
	o.ApplyT(func(v T) int {
		ch <- v
		return 0
	})
	return <-ch
}

func privateIP(name string) string {
	var sum int
	for _, c := range name {
		sum += int(c)
	}
	return fmt.Sprintf("10.0.11.%d", sum%250+2)
}
