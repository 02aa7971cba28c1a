package awsclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/endpoints"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/rs/zerolog"

	"github.com/hivesync/hivesync/internal/metrics"
)

// ClientConstructor turns a fully populated SDK configuration into a client.
type ClientConstructor func(cfg *aws.Config) (s3iface.S3API, error)

// ClientFactoryConfig configures a ClientFactory.
type ClientFactoryConfig struct {
	Credentials *ChainBuilder
	Logger      zerolog.Logger
	Metrics     *metrics.ReplicaMetrics

	// NewClient defaults to s3.New over a fresh session.
	NewClient ClientConstructor
}

// ClientFactory builds S3 clients whose region matches the target bucket.
// Clients built with the same connection limit share one HTTP client.
type ClientFactory struct {
	creds     *ChainBuilder
	newClient ClientConstructor
	logger    zerolog.Logger
	metrics   *metrics.ReplicaMetrics

	mu          sync.Mutex
	httpClients map[int]*http.Client
}

// NewClientFactory creates a ClientFactory.
func NewClientFactory(cfg ClientFactoryConfig) *ClientFactory {
	f := &ClientFactory{
		creds:     cfg.Credentials,
		newClient: cfg.NewClient,
		logger:    cfg.Logger.With().Str("component", "s3-client-factory").Logger(),
		metrics:   cfg.Metrics,

		httpClients: make(map[int]*http.Client),
	}
	if f.creds == nil {
		f.creds = NewChainBuilder(ChainBuilderConfig{Logger: cfg.Logger})
	}
	if f.newClient == nil {
		f.newClient = newS3Client
	}
	return f
}

// NewGlobalInstance builds a region-agnostic client. It honours the explicit
// endpoint option and otherwise targets the legacy global endpoint.
func (f *ClientFactory) NewGlobalInstance(opts Options) (s3iface.S3API, error) {
	creds, err := f.creds.Build(opts)
	if err != nil {
		return nil, err
	}
	return f.newClient(f.globalConfig(opts, creds))
}

// NewInstance builds a client for the bucket named in uri. The bucket's
// region is looked up through a global client; if the lookup or the regional
// construction fails the global client is returned instead.
func (f *ClientFactory) NewInstance(ctx context.Context, uri string, opts Options) (s3iface.S3API, error) {
	bucket, _, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}

	creds, err := f.creds.Build(opts)
	if err != nil {
		return nil, err
	}
	global, err := f.newClient(f.globalConfig(opts, creds))
	if err != nil {
		return nil, fmt.Errorf("create global s3 client: %w", err)
	}

	region, err := ResolveBucketRegion(ctx, global, bucket)
	if err != nil {
		return f.fallback(global, bucket, err), nil
	}

	regional, err := f.newClient(f.regionalConfig(region, opts, creds))
	if err != nil {
		return f.fallback(global, bucket, fmt.Errorf("create s3 client for %s: %w", region, err)), nil
	}

	f.logger.Debug().Str("bucket", bucket).Str("region", region).Msg("Built regional S3 client")
	return regional, nil
}

func (f *ClientFactory) fallback(global s3iface.S3API, bucket string, cause error) s3iface.S3API {
	f.logger.Warn().Err(cause).Str("bucket", bucket).Msg("Using global S3 client")
	if f.metrics != nil {
		f.metrics.RegionFallbacks.Inc()
	}
	return global
}

func (f *ClientFactory) globalConfig(opts Options, creds *credentials.Credentials) *aws.Config {
	cfg := aws.NewConfig().
		WithCredentials(creds).
		WithRegion(USEast1).
		WithHTTPClient(f.httpClient(opts.MaxConnections))
	cfg.S3UsEast1RegionalEndpoint = endpoints.LegacyS3UsEast1Endpoint
	if opts.Endpoint != "" {
		cfg.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}
	return cfg
}

func (f *ClientFactory) regionalConfig(region string, opts Options, creds *credentials.Credentials) *aws.Config {
	cfg := aws.NewConfig().
		WithCredentials(creds).
		WithRegion(region).
		WithHTTPClient(f.httpClient(opts.MaxConnections))
	if ep := opts.EndpointFor(region); ep != "" {
		cfg.WithEndpoint(ep).WithS3ForcePathStyle(true)
	}
	return cfg
}

func newS3Client(cfg *aws.Config) (s3iface.S3API, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

// httpClient returns the shared HTTP client for a connection limit.
func (f *ClientFactory) httpClient(maxConns int) *http.Client {
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.httpClients[maxConns]; ok {
		return c
	}
	c := pooledHTTPClient(maxConns)
	f.httpClients[maxConns] = c
	return c
}

// pooledHTTPClient returns a client whose transport caps connections per host.
func pooledHTTPClient(maxConns int) *http.Client {
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxConns,
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport}
}
