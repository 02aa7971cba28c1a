// Package awss3 deletes replica data held in Amazon S3.
package awss3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/rs/zerolog"

	"github.com/hivesync/hivesync/internal/awsclient"
	"github.com/hivesync/hivesync/internal/datamove"
)

// maxDeleteBatch is the DeleteObjects request limit.
const maxDeleteBatch = 1000

// folderSuffix marks the empty directory objects Hadoop filesystems create.
const folderSuffix = "_$folder$"

// Client deletes objects under S3 locations.
type Client struct {
	api    s3iface.S3API
	logger zerolog.Logger
}

// NewClient wraps an S3 API client.
func NewClient(api s3iface.S3API, logger zerolog.Logger) *Client {
	return &Client{
		api:    api,
		logger: logger.With().Str("component", "s3-data-client").Logger(),
	}
}

// Delete removes every object at or below location. Bucket roots are
// rejected with datamove.ErrUnsupportedOperation.
func (c *Client) Delete(ctx context.Context, location string) (bool, error) {
	bucket, key, err := awsclient.ParseLocation(location)
	if err != nil {
		return false, fmt.Errorf("%w: %v", datamove.ErrUnsupportedOperation, err)
	}
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return false, fmt.Errorf("%w: refusing to delete bucket root %s", datamove.ErrUnsupportedOperation, location)
	}

	keys, err := c.list(ctx, bucket, key)
	if err != nil {
		return false, err
	}
	if len(keys) == 0 {
		c.logger.Debug().Str("location", location).Msg("Nothing to delete")
		return false, nil
	}

	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		if err := c.deleteBatch(ctx, bucket, keys[start:end]); err != nil {
			return false, fmt.Errorf("delete %s: %w", location, err)
		}
	}

	c.logger.Debug().Str("location", location).Int("objects", len(keys)).Msg("Deleted replica data")
	return true, nil
}

// list returns the keys belonging to the directory key. Siblings sharing
// the prefix (key "a/b" vs "a/bc") are excluded.
func (c *Client) list(ctx context.Context, bucket, key string) ([]string, error) {
	var keys []string
	err := c.api.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(key),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			k := aws.StringValue(obj.Key)
			if k == key || k == key+folderSuffix || strings.HasPrefix(k, key+"/") {
				keys = append(keys, k)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, key, err)
	}
	return keys, nil
}

func (c *Client) deleteBatch(ctx context.Context, bucket string, keys []string) error {
	objects := make([]*s3.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(k)})
	}

	out, err := c.api.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return err
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return fmt.Errorf("%d objects not deleted, first %s: %s", len(out.Errors),
			aws.StringValue(first.Key), aws.StringValue(first.Message))
	}
	return nil
}
