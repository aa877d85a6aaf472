// Package storage declares the encrypted bucket program.
package storage

import (
	"encoding/json"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/s3"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/zikster3262/pulumi-k8s/config"
)

// SSEAlgorithm is the only server-side encryption accepted for uploads.
const SSEAlgorithm = "AES256"

// Bucket holds the declared storage resources.
type Bucket struct {
	Bucket     *s3.Bucket
	Encryption *s3.BucketServerSideEncryptionConfigurationV2
	Policy     *s3.BucketPolicy
}

// PolicyDocument is an IAM policy document.
type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is a single policy statement.
type Statement struct {
	Sid       string                       `json:"Sid"`
	Effect    string                       `json:"Effect"`
	Principal string                       `json:"Principal"`
	Action    string                       `json:"Action"`
	Resource  string                       `json:"Resource"`
	Condition map[string]map[string]string `json:"Condition"`
}

// Policy returns the deny policy for the objects of bucketArn.
func Policy(bucketArn string) PolicyDocument {
	objects := bucketArn + "/*"
	deny := func(sid string) Statement {
		return Statement{
			Sid:       sid,
			Effect:    "Deny",
			Principal: "*",
			Action:    "s3:PutObject",
			Resource:  objects,
			// TODO: confirm the condition intended for DenyIncorrectEncryptionHeader; both statements check the same key.
			Condition: map[string]map[string]string{
				"StringNotEquals": {
					"s3:x-amz-server-side-encryption": SSEAlgorithm,
				},
			},
		}
	}

	return PolicyDocument{
		Version: "2012-10-17",
		Statement: []Statement{
			deny("DenyUnencryptedObjectUploads"),
			deny("DenyIncorrectEncryptionHeader"),
		},
	}
}

// PolicyJSON renders Policy(bucketArn).
func PolicyJSON(bucketArn string) (string, error) {
	b, err := json.Marshal(Policy(bucketArn))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Build declares a private, versioned bucket encrypted by default and a
// policy denying uploads without SSE. The policy is derived from the bucket
// ARN once the engine has resolved it.
func Build(ctx *pulumi.Context, cfg config.Storage, tags map[string]string) (*Bucket, error) {
	b := &Bucket{}
	var err error

	b.Bucket, err = s3.NewBucket(ctx, "k8s-bucket", &s3.BucketArgs{
		Bucket: pulumi.String(cfg.BucketName),
		Acl:    pulumi.String("private"),
		Versioning: &s3.BucketVersioningArgs{
			Enabled: pulumi.Bool(true),
		},
		Tags: pulumi.ToStringMap(config.MergeTags(tags, map[string]string{
			"Name":    cfg.BucketName,
			"Purpose": "kubernetes-storage",
		})),
	})
	if err != nil {
		return nil, err
	}

	b.Encryption, err = s3.NewBucketServerSideEncryptionConfigurationV2(ctx, "k8s-bucket-encryption", &s3.BucketServerSideEncryptionConfigurationV2Args{
		Bucket: b.Bucket.ID(),
		Rules: s3.BucketServerSideEncryptionConfigurationV2RuleArray{
			&s3.BucketServerSideEncryptionConfigurationV2RuleArgs{
				ApplyServerSideEncryptionByDefault: &s3.BucketServerSideEncryptionConfigurationV2RuleApplyServerSideEncryptionByDefaultArgs{
					SseAlgorithm: pulumi.String(SSEAlgorithm),
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	policy := b.Bucket.Arn.ApplyT(PolicyJSON).(pulumi.StringOutput)

	b.Policy, err = s3.NewBucketPolicy(ctx, "k8s-bucket-policy", &s3.BucketPolicyArgs{
		Bucket: b.Bucket.ID(),
		Policy: policy,
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}
