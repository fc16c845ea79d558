package env

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds an S3 client for the Cloudflare R2 account. The client
// is safe for concurrent use and should be built once per credential set.
func (r CloudflareR2) NewS3Client() *s3.Client {
	region := r.RegionName
	if region == "" {
		region = "auto"
	}
	return s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(r.EndpointURL),
		UsePathStyle: true,
		Credentials: credentials.NewStaticCredentialsProvider(
			r.AWSAccessKeyID.Reveal(), r.AWSSecretAccessKey.Reveal(), ""),
		// R2 rejects the default CRC checksums on some operations.
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
}
