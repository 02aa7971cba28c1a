package awsclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
)

// USEast1 is the region assigned to buckets that report no location.
const USEast1 = "us-east-1"

// BucketLocator is the S3 call used to discover where a bucket lives.
type BucketLocator interface {
	GetBucketLocationWithContext(aws.Context, *s3.GetBucketLocationInput, ...request.Option) (*s3.GetBucketLocationOutput, error)
}

// NormalizeRegion maps a raw bucket location constraint to a region name.
// An empty constraint and the legacy "US" both mean us-east-1; the legacy
// "EU" means eu-west-1.
func NormalizeRegion(location string) string {
	location = strings.TrimSpace(location)
	if strings.EqualFold(location, "US") {
		return USEast1
	}
	return s3.NormalizeBucketLocation(location)
}

// ResolveBucketRegion asks api for the location of bucket.
func ResolveBucketRegion(ctx context.Context, api BucketLocator, bucket string) (string, error) {
	out, err := api.GetBucketLocationWithContext(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return "", fmt.Errorf("get location of bucket %s: %w", bucket, err)
	}
	return NormalizeRegion(aws.StringValue(out.LocationConstraint)), nil
}
