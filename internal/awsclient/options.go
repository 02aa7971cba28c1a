// Package awsclient builds credentialed, region-correct AWS clients for
// replica storage.
package awsclient

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Copier option keys understood by this package.
const (
	OptionAssumeRole         = "assume_role"
	OptionAssumeRoleDuration = "assume_role_credential_duration"
	OptionMaxConnections     = "max_connections"
	OptionEndpoint           = "s3_endpoint_uri"

	// OptionEndpoint + "_" + region overrides the endpoint for one region.
	regionEndpointPrefix = OptionEndpoint + "_"
)

// Defaults applied by ParseOptions.
const (
	DefaultAssumeRoleDuration = 12 * time.Hour
	DefaultMaxConnections     = 50
)

// Options are the per-replication settings a client is built with.
type Options struct {
	AssumedRole         string
	AssumedRoleDuration time.Duration
	MaxConnections      int

	// Endpoint replaces default endpoint resolution for the global client.
	Endpoint string

	// RegionEndpoints replaces default endpoint resolution per bucket region.
	RegionEndpoints map[string]string
}

// ParseOptions reads Options from free-form copier options. Unknown keys are
// ignored since the same map feeds the copy engines.
func ParseOptions(params map[string]any) (Options, error) {
	opts := Options{
		AssumedRole:         stringOption(params, OptionAssumeRole),
		AssumedRoleDuration: DefaultAssumeRoleDuration,
		MaxConnections:      DefaultMaxConnections,
		Endpoint:            stringOption(params, OptionEndpoint),
	}

	if v, ok := params[OptionAssumeRoleDuration]; ok {
		secs, err := intValue(v)
		if err != nil {
			return Options{}, fmt.Errorf("%s: %w", OptionAssumeRoleDuration, err)
		}
		if secs <= 0 {
			return Options{}, fmt.Errorf("%s must be positive, got %d", OptionAssumeRoleDuration, secs)
		}
		opts.AssumedRoleDuration = time.Duration(secs) * time.Second
	}

	if v, ok := params[OptionMaxConnections]; ok {
		n, err := intValue(v)
		if err != nil {
			return Options{}, fmt.Errorf("%s: %w", OptionMaxConnections, err)
		}
		if n <= 0 {
			return Options{}, fmt.Errorf("%s must be positive, got %d", OptionMaxConnections, n)
		}
		opts.MaxConnections = n
	}

	for k := range params {
		region, ok := strings.CutPrefix(k, regionEndpointPrefix)
		if !ok || region == "" {
			continue
		}
		if opts.RegionEndpoints == nil {
			opts.RegionEndpoints = make(map[string]string)
		}
		opts.RegionEndpoints[region] = stringOption(params, k)
	}

	for _, ep := range append([]string{opts.Endpoint}, mapValues(opts.RegionEndpoints)...) {
		if ep == "" {
			continue
		}
		if _, err := url.Parse(ep); err != nil {
			return Options{}, fmt.Errorf("invalid endpoint %q: %w", ep, err)
		}
	}

	return opts, nil
}

// EndpointFor returns the explicit endpoint configured for region, if any.
func (o Options) EndpointFor(region string) string {
	return o.RegionEndpoints[region]
}

func stringOption(params map[string]any, key string) string {
	switch t := params[key].(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	}
	return ""
}

func intValue(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("expected a whole number, got %v", t)
		}
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func mapValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
