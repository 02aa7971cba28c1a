// Package datamove routes replica data operations to a storage-specific client.
//
// Factories are registered in a fixed precedence order when the router is
// built. For each (source scheme, replica scheme) pair the first factory whose
// SupportsSchemes returns true is used, and a fallback factory at the lowest
// precedence is mandatory. Only the resolved factory ever constructs a client,
// since construction can involve network calls (credential exchange, bucket
// region lookups).
package datamove

import (
	"context"
	"errors"
)

// Error kinds returned by clients and the router.
var (
	// ErrSchemeResolution means no registered factory serves a scheme pair.
	ErrSchemeResolution = errors.New("no data manipulation client factory for schemes")

	// ErrUnsupportedOperation means the client cannot perform the request for
	// that location at all. Other errors are IO failures.
	ErrUnsupportedOperation = errors.New("operation not supported")
)

// Client manipulates replica data at a location.
type Client interface {
	// Delete removes all data at location. It reports whether anything was
	// deleted.
	Delete(ctx context.Context, location string) (bool, error)
}

// Factory builds Clients for the scheme pairs it supports.
type Factory interface {
	// Name identifies the factory in logs and metrics.
	Name() string

	// SupportsSchemes reports whether the factory can serve data replicated
	// from sourceScheme to replicaScheme.
	SupportsSchemes(sourceScheme, replicaScheme string) bool

	// NewInstance builds a client bound to path. options are the free-form
	// copier options of the replication.
	NewInstance(ctx context.Context, path string, options map[string]any) (Client, error)
}

// IsUnsupported reports whether err is an unsupported-operation failure.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedOperation)
}
