// Package gcs deletes replica data held in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/hivesync/hivesync/internal/datamove"
)

// FactoryName identifies the GCS factory.
const FactoryName = "gcs"

// objectAPI is the subset of bucket operations the client needs.
type objectAPI interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Delete(ctx context.Context, bucket, name string) error
	Close() error
}

// Client deletes objects under gs:// locations.
type Client struct {
	api    objectAPI
	logger zerolog.Logger
}

// Delete removes every object at or below location. Bucket roots are
// rejected with datamove.ErrUnsupportedOperation.
func (c *Client) Delete(ctx context.Context, location string) (bool, error) {
	bucket, key, err := parseLocation(location)
	if err != nil {
		return false, err
	}

	names, err := c.api.List(ctx, bucket, key)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", location, err)
	}

	deleted := 0
	for _, name := range names {
		if name != key && !strings.HasPrefix(name, key+"/") {
			continue
		}
		if err := c.api.Delete(ctx, bucket, name); err != nil {
			if errors.Is(err, storage.ErrObjectNotExist) {
				continue
			}
			return false, fmt.Errorf("delete gs://%s/%s: %w", bucket, name, err)
		}
		deleted++
	}

	c.logger.Debug().Str("location", location).Int("objects", deleted).Msg("Deleted replica data")
	return deleted > 0, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.api.Close()
}

func parseLocation(location string) (bucket, key string, err error) {
	scheme, rest, ok := strings.Cut(location, "://")
	if !ok || !datamove.IsGCSScheme(scheme) {
		return "", "", fmt.Errorf("%w: %s is not a gs location", datamove.ErrUnsupportedOperation, location)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	key = strings.TrimSuffix(key, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: refusing to delete bucket root %s", datamove.ErrUnsupportedOperation, location)
	}
	return bucket, key, nil
}

// storageAPI adapts *storage.Client to objectAPI.
type storageAPI struct {
	client *storage.Client
}

func (s storageAPI) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	query := &storage.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, err
	}

	var names []string
	it := s.client.Bucket(bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
}

func (s storageAPI) Delete(ctx context.Context, bucket, name string) error {
	return s.client.Bucket(bucket).Object(name).Delete(ctx)
}

func (s storageAPI) Close() error {
	return s.client.Close()
}

// Config configures the GCS factory.
type Config struct {
	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string

	// ClientOptions are appended after the credential option.
	ClientOptions []option.ClientOption

	Logger zerolog.Logger
}

// Factory serves replication from any source into GCS.
type Factory struct {
	opts   []option.ClientOption
	logger zerolog.Logger
}

// NewFactory creates a GCS factory.
func NewFactory(cfg Config) *Factory {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, cfg.ClientOptions...)
	return &Factory{
		opts:   opts,
		logger: cfg.Logger.With().Str("component", "gcs-data-client").Logger(),
	}
}

func (f *Factory) Name() string { return FactoryName }

func (f *Factory) SupportsSchemes(_, replicaScheme string) bool {
	return datamove.IsGCSScheme(replicaScheme)
}

// NewInstance builds a client that owns its storage client. Callers close it.
func (f *Factory) NewInstance(ctx context.Context, _ string, _ map[string]any) (datamove.Client, error) {
	// The storage client outlives the construction deadline.
	client, err := storage.NewClient(context.WithoutCancel(ctx), f.opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Client{api: storageAPI{client: client}, logger: f.logger}, nil
}

var _ datamove.Factory = (*Factory)(nil)
