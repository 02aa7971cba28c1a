package awss3

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hivesync/hivesync/internal/awsclient"
	"github.com/hivesync/hivesync/internal/datamove"
)

// Factory names.
const (
	S3ToS3Name     = "s3-s3"
	HadoopToS3Name = "hadoop-s3"
)

// Factory builds S3 data clients.
type Factory struct {
	name     string
	supports func(sourceScheme, replicaScheme string) bool
	clients  *awsclient.ClientFactory
	logger   zerolog.Logger
}

// NewS3ToS3Factory serves S3 to S3 replication with clients bound to the
// replica bucket's region.
func NewS3ToS3Factory(clients *awsclient.ClientFactory, logger zerolog.Logger) *Factory {
	return &Factory{
		name: S3ToS3Name,
		supports: func(src, rep string) bool {
			return datamove.IsS3Scheme(src) && datamove.IsS3Scheme(rep)
		},
		clients: clients,
		logger:  logger,
	}
}

// NewHadoopToS3Factory serves any non-S3 source replicated into S3 and is
// registered as the fallback. Its clients are bound to the replica bucket's
// region like those of the S3 to S3 factory.
func NewHadoopToS3Factory(clients *awsclient.ClientFactory, logger zerolog.Logger) *Factory {
	return &Factory{
		name: HadoopToS3Name,
		supports: func(src, rep string) bool {
			return !datamove.IsS3Scheme(src) && datamove.IsS3Scheme(rep)
		},
		clients: clients,
		logger:  logger,
	}
}

func (f *Factory) Name() string { return f.name }

func (f *Factory) SupportsSchemes(sourceScheme, replicaScheme string) bool {
	return f.supports(sourceScheme, replicaScheme)
}

func (f *Factory) NewInstance(ctx context.Context, path string, options map[string]any) (datamove.Client, error) {
	opts, err := awsclient.ParseOptions(options)
	if err != nil {
		return nil, err
	}

	api, err := f.clients.NewInstance(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	return NewClient(api, f.logger), nil
}

var _ datamove.Factory = (*Factory)(nil)
