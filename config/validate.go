package config

import (
	"fmt"
	"net/netip"
	"regexp"

	"github.com/hashicorp/go-multierror"
)

// ConfigurationError reports malformed or missing input that is caught before
// any resource is declared.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

var bucketNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Validate checks the snapshot for the selected variant. The returned error
// aggregates every *ConfigurationError found.
func (s Settings) Validate() error {
	var result *multierror.Error

	switch s.Variant {
	case VariantCluster:
		result = multierror.Append(result, s.Network.validate()...)
		result = multierror.Append(result, s.Compute.validate()...)
	case VariantStorage:
		result = multierror.Append(result, s.Storage.validate()...)
	default:
		result = multierror.Append(result, &ConfigurationError{
			Field:  "variant",
			Value:  s.Variant,
			Reason: fmt.Sprintf("must be %q or %q", VariantCluster, VariantStorage),
		})
	}

	return result.ErrorOrNil()
}

func (n Network) validate() []error {
	var errs []error

	if n.Name == "" {
		errs = append(errs, &ConfigurationError{Field: "vpc_name", Reason: "must not be empty"})
	}
	if n.Region == "" {
		errs = append(errs, &ConfigurationError{Field: "region", Reason: "must not be empty"})
	}
	if len(n.PublicSubnetCidrs) == 0 {
		errs = append(errs, &ConfigurationError{Field: "public subnets", Reason: "at least one is required for the NAT gateway"})
	}
	if len(n.PrivateSubnetCidrs) == 0 {
		errs = append(errs, &ConfigurationError{Field: "private subnets", Reason: "at least one is required for the nodes"})
	}
	if len(n.PublicSubnetCidrs) != len(n.AvailabilityZones) || len(n.PrivateSubnetCidrs) != len(n.AvailabilityZones) {
		errs = append(errs, &ConfigurationError{
			Field: "subnets",
			Reason: fmt.Sprintf("%d availability zones, %d public and %d private subnets",
				len(n.AvailabilityZones), len(n.PublicSubnetCidrs), len(n.PrivateSubnetCidrs)),
		})
	}

	vpc, err := parsePrefix("vpc_cidr", n.VpcCidr)
	if err != nil {
		return append(errs, err)
	}

	type subnet struct {
		field  string
		prefix netip.Prefix
	}
	var subnets []subnet
	collect := func(kind string, cidrs []string) {
		for i, cidr := range cidrs {
			field := fmt.Sprintf("%s_subnet_%d_cidr", kind, i+1)
			p, err := parsePrefix(field, cidr)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if p.Bits() < vpc.Bits() || !vpc.Contains(p.Addr()) {
				errs = append(errs, &ConfigurationError{Field: field, Value: cidr, Reason: "not within " + n.VpcCidr})
				continue
			}
			subnets = append(subnets, subnet{field: field, prefix: p})
		}
	}
	collect("public", n.PublicSubnetCidrs)
	collect("private", n.PrivateSubnetCidrs)

	for i := range subnets {
		for j := i + 1; j < len(subnets); j++ {
			if subnets[i].prefix.Overlaps(subnets[j].prefix) {
				errs = append(errs, &ConfigurationError{
					Field:  subnets[j].field,
					Value:  subnets[j].prefix.String(),
					Reason: "overlaps " + subnets[i].field,
				})
			}
		}
	}

	return errs
}

func (c Compute) validate() []error {
	var errs []error
	if c.Ami == "" {
		errs = append(errs, &ConfigurationError{Field: "ami", Reason: "must not be empty"})
	}
	if c.MasterCount < 1 {
		errs = append(errs, &ConfigurationError{Field: "master count", Value: fmt.Sprint(c.MasterCount), Reason: "must be positive"})
	}
	if c.WorkerCount < 0 {
		errs = append(errs, &ConfigurationError{Field: "worker count", Value: fmt.Sprint(c.WorkerCount), Reason: "must not be negative"})
	}
	return errs
}

func (s Storage) validate() []error {
	if !bucketNameRe.MatchString(s.BucketName) {
		return []error{&ConfigurationError{Field: "bucket_name", Value: s.BucketName, Reason: "not a valid S3 bucket name"}}
	}
	return nil
}

func parsePrefix(field, cidr string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return netip.Prefix{}, &ConfigurationError{Field: field, Value: cidr, Reason: err.Error()}
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, &ConfigurationError{Field: field, Value: cidr, Reason: "must be an IPv4 block"}
	}
	if p.Masked() != p {
		return netip.Prefix{}, &ConfigurationError{Field: field, Value: cidr, Reason: "host bits set"}
	}
	return p, nil
}
