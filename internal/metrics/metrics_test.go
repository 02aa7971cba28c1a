package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReplicaMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReplicaMetrics(reg)
	require.NotNil(t, m)

	m.LocationsDeleted.Add(3)
	m.DeleteFailures.WithLabelValues(ReasonIO).Inc()
	m.DeleteFailures.WithLabelValues(ReasonUnsupported).Inc()
	m.ClientsBuilt.WithLabelValues("s3-s3").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.LocationsDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeleteFailures.WithLabelValues(ReasonIO)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientsBuilt.WithLabelValues("s3-s3")))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["hivesync_replica_locations_deleted_total"])
	assert.True(t, names["hivesync_replica_delete_failures_total"])
	assert.True(t, names["hivesync_datamove_clients_built_total"])
}

func TestNewReplicaMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewReplicaMetrics(reg)

	assert.Panics(t, func() { NewReplicaMetrics(reg) })
}
