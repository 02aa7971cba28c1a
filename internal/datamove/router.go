package datamove

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivesync/hivesync/internal/metrics"
)

// RouterConfig configures a Router.
type RouterConfig struct {
	// Factories in precedence order, highest first.
	Factories []Factory

	// Fallback is consulted after every other factory. Required.
	Fallback Factory

	// ConstructTimeout bounds client construction (0 = caller's context only).
	ConstructTimeout time.Duration

	Logger  zerolog.Logger
	Metrics *metrics.ReplicaMetrics
}

// Router resolves the factory serving a pair of storage schemes.
type Router struct {
	factories        []Factory
	constructTimeout time.Duration
	logger           zerolog.Logger
	metrics          *metrics.ReplicaMetrics
}

// NewRouter builds a Router from an explicit, ordered factory list.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Fallback == nil {
		return nil, errors.New("a fallback data manipulation client factory is required")
	}
	factories := make([]Factory, 0, len(cfg.Factories)+1)
	for i, f := range cfg.Factories {
		if f == nil {
			return nil, fmt.Errorf("factory %d is nil", i)
		}
		factories = append(factories, f)
	}
	factories = append(factories, cfg.Fallback)

	return &Router{
		factories:        factories,
		constructTimeout: cfg.ConstructTimeout,
		logger:           cfg.Logger.With().Str("component", "datamove-router").Logger(),
		metrics:          cfg.Metrics,
	}, nil
}

// Factories returns the factories in precedence order, fallback last.
func (r *Router) Factories() []Factory {
	out := make([]Factory, len(r.factories))
	copy(out, r.factories)
	return out
}

// Resolve returns the first factory supporting the scheme pair.
func (r *Router) Resolve(sourceScheme, replicaScheme string) (Factory, error) {
	for _, f := range r.factories {
		if f.SupportsSchemes(sourceScheme, replicaScheme) {
			r.logger.Debug().
				Str("source_scheme", sourceScheme).
				Str("replica_scheme", replicaScheme).
				Str("factory", f.Name()).
				Msg("Resolved data manipulation client factory")
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: source %q, replica %q", ErrSchemeResolution, sourceScheme, replicaScheme)
}

// Bind returns a PathResolver for one replication: data at replica paths is
// handled by the factory matching the source location's scheme.
func (r *Router) Bind(sourceLocation string, options map[string]any) *PathResolver {
	return &PathResolver{
		router:       r,
		sourceScheme: Scheme(sourceLocation),
		options:      options,
	}
}

// PathResolver hands out clients for replica paths of a single replication.
type PathResolver struct {
	router       *Router
	sourceScheme string
	options      map[string]any
}

// ClientForPath resolves and constructs a client bound to path. Scheme
// resolution failures wrap ErrSchemeResolution.
func (p *PathResolver) ClientForPath(ctx context.Context, path string) (Client, error) {
	f, err := p.router.Resolve(p.sourceScheme, Scheme(path))
	if err != nil {
		return nil, err
	}

	if p.router.constructTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.router.constructTimeout)
		defer cancel()
	}

	client, err := f.NewInstance(ctx, path, p.options)
	if err != nil {
		return nil, fmt.Errorf("%s client for %s: %w", f.Name(), path, err)
	}
	if p.router.metrics != nil {
		p.router.metrics.ClientsBuilt.WithLabelValues(f.Name()).Inc()
	}
	return client, nil
}
