package datamove

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivesync/hivesync/internal/metrics"
)

type nopClient struct{}

func (nopClient) Delete(context.Context, string) (bool, error) { return true, nil }

// stubFactory supports a fixed predicate and counts constructions.
type stubFactory struct {
	name     string
	supports func(src, rep string) bool
	built    []string
	err      error
	deadline bool
}

func (f *stubFactory) Name() string { return f.name }

func (f *stubFactory) SupportsSchemes(src, rep string) bool { return f.supports(src, rep) }

func (f *stubFactory) NewInstance(ctx context.Context, path string, _ map[string]any) (Client, error) {
	_, f.deadline = ctx.Deadline()
	f.built = append(f.built, path)
	if f.err != nil {
		return nil, f.err
	}
	return nopClient{}, nil
}

func newTestRouter(t *testing.T, fallback Factory, factories ...Factory) *Router {
	t.Helper()
	r, err := NewRouter(RouterConfig{
		Factories: factories,
		Fallback:  fallback,
		Logger:    zerolog.New(zerolog.NewTestWriter(t)),
	})
	require.NoError(t, err)
	return r
}

func hdfsToS3() *stubFactory {
	return &stubFactory{name: "hdfs-s3", supports: func(src, rep string) bool { return src == "hdfs" && rep == "s3" }}
}

func s3ToS3() *stubFactory {
	return &stubFactory{name: "s3-s3", supports: func(src, rep string) bool { return IsS3Scheme(src) && IsS3Scheme(rep) }}
}

func nonS3ToS3() *stubFactory {
	return &stubFactory{name: "fallback", supports: func(src, rep string) bool { return !IsS3Scheme(src) && IsS3Scheme(rep) }}
}

func TestNewRouter_RequiresFallback(t *testing.T) {
	_, err := NewRouter(RouterConfig{Factories: []Factory{s3ToS3()}})
	assert.Error(t, err)
}

func TestNewRouter_RejectsNilFactory(t *testing.T) {
	_, err := NewRouter(RouterConfig{Factories: []Factory{nil}, Fallback: nonS3ToS3()})
	assert.Error(t, err)
}

func TestRouter_ResolveSupportedPair(t *testing.T) {
	hdfsS3 := hdfsToS3()
	r := newTestRouter(t, nonS3ToS3(), hdfsS3)

	f, err := r.Resolve("hdfs", "s3")
	require.NoError(t, err)
	assert.Same(t, hdfsS3, f)
}

func TestRouter_ResolveSkipsFactoryForOtherPair(t *testing.T) {
	hdfsS3 := hdfsToS3()
	r := newTestRouter(t, nonS3ToS3(), hdfsS3)

	_, err := r.Resolve("s3", "s3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemeResolution)
}

func TestRouter_PrecedenceIsRegistrationOrder(t *testing.T) {
	first := &stubFactory{name: "first", supports: func(string, string) bool { return true }}
	second := &stubFactory{name: "second", supports: func(string, string) bool { return true }}
	fallback := nonS3ToS3()
	r := newTestRouter(t, fallback, first, second)

	f, err := r.Resolve("hdfs", "s3")
	require.NoError(t, err)
	assert.Equal(t, "first", f.Name())

	names := make([]string, 0, 3)
	for _, f := range r.Factories() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"first", "second", "fallback"}, names)
}

func TestRouter_FallbackIsLast(t *testing.T) {
	s3s3 := s3ToS3()
	fallback := nonS3ToS3()
	r := newTestRouter(t, fallback, s3s3)

	f, err := r.Resolve("hdfs", "s3a")
	require.NoError(t, err)
	assert.Equal(t, "fallback", f.Name())

	f, err = r.Resolve("s3", "s3")
	require.NoError(t, err)
	assert.Equal(t, "s3-s3", f.Name())
}

func TestPathResolver_OnlyResolvedFactoryConstructs(t *testing.T) {
	s3s3 := s3ToS3()
	fallback := nonS3ToS3()
	reg := prometheus.NewRegistry()
	m := metrics.NewReplicaMetrics(reg)

	r, err := NewRouter(RouterConfig{
		Factories: []Factory{s3s3},
		Fallback:  fallback,
		Logger:    zerolog.Nop(),
		Metrics:   m,
	})
	require.NoError(t, err)

	client, err := r.Bind("hdfs://nn/warehouse/t", nil).ClientForPath(context.Background(), "s3://bucket/db/t")
	require.NoError(t, err)
	assert.NotNil(t, client)

	assert.Empty(t, s3s3.built)
	assert.Equal(t, []string{"s3://bucket/db/t"}, fallback.built)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.ClientsBuilt.WithLabelValues("fallback")))
}

func TestPathResolver_SchemeResolutionError(t *testing.T) {
	r := newTestRouter(t, nonS3ToS3())

	_, err := r.Bind("s3://src/t", nil).ClientForPath(context.Background(), "hdfs://nn/t")
	assert.ErrorIs(t, err, ErrSchemeResolution)
}

func TestPathResolver_ConstructionError(t *testing.T) {
	fallback := nonS3ToS3()
	fallback.err = errors.New("sts: access denied")
	r := newTestRouter(t, fallback)

	_, err := r.Bind("hdfs://nn/t", nil).ClientForPath(context.Background(), "s3://b/t")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchemeResolution)
	assert.Contains(t, err.Error(), "fallback client for s3://b/t")
}

func TestPathResolver_ConstructTimeout(t *testing.T) {
	fallback := nonS3ToS3()
	r, err := NewRouter(RouterConfig{
		Fallback:         fallback,
		ConstructTimeout: time.Minute,
		Logger:           zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = r.Bind("hdfs://nn/t", nil).ClientForPath(context.Background(), "s3://b/t")
	require.NoError(t, err)
	assert.True(t, fallback.deadline)
}

func TestScheme(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"s3://bucket/key", "s3"},
		{"S3A://bucket/key", "s3a"},
		{"hdfs://nn:8020/warehouse", "hdfs"},
		{"gs://bucket/x", "gs"},
		{"/warehouse/db/t", ""},
		{"hdfs://nn/warehouse/dt=2020 01 01%", "hdfs"},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, Scheme(tt.location))
		})
	}
}

func TestSchemePredicates(t *testing.T) {
	assert.True(t, IsS3Scheme("s3n"))
	assert.True(t, IsS3Scheme("S3"))
	assert.False(t, IsS3Scheme("hdfs"))
	assert.True(t, IsGCSScheme("gs"))
	assert.True(t, IsCloudScheme("gs"))
	assert.False(t, IsCloudScheme(""))
}
