// Package metrics provides Prometheus metrics for hivesync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry for all hivesync metrics.
var Registry = prometheus.NewRegistry()

// Deletion failure reasons.
const (
	ReasonIO          = "io"
	ReasonUnsupported = "unsupported"
	ReasonClient      = "client"
)

// ReplicaMetrics holds the metrics recorded while tearing down and
// transforming replica tables.
type ReplicaMetrics struct {
	// Teardown
	LocationsDeleted   prometheus.Counter     // hivesync_replica_locations_deleted_total
	LocationsEmpty     prometheus.Counter     // hivesync_replica_locations_empty_total
	DeleteFailures     *prometheus.CounterVec // hivesync_replica_delete_failures_total{reason}
	PartitionListFails prometheus.Counter     // hivesync_replica_partition_list_failures_total
	TablesDropped      prometheus.Counter     // hivesync_replica_tables_dropped_total

	// Client construction
	ClientsBuilt    *prometheus.CounterVec // hivesync_datamove_clients_built_total{factory}
	RegionFallbacks prometheus.Counter     // hivesync_s3_region_fallbacks_total

	// Transformation
	ParameterOverrides prometheus.Counter // hivesync_table_parameter_overrides_total
}

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// NewReplicaMetrics creates and registers the replica metrics on registry.
// A nil registry falls back to Registry.
func NewReplicaMetrics(registry prometheus.Registerer) *ReplicaMetrics {
	if registry == nil {
		registry = Registry
	}
	f := promauto.With(registry)

	return &ReplicaMetrics{
		LocationsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "hivesync_replica_locations_deleted_total",
			Help: "Replica data locations deleted before a table drop",
		}),
		LocationsEmpty: f.NewCounter(prometheus.CounterOpts{
			Name: "hivesync_replica_locations_empty_total",
			Help: "Replica data locations that held nothing to delete",
		}),
		DeleteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hivesync_replica_delete_failures_total",
			Help: "Replica data deletions that failed, by reason",
		}, []string{"reason"}),
		PartitionListFails: f.NewCounter(prometheus.CounterOpts{
			Name: "hivesync_replica_partition_list_failures_total",
			Help: "Partition listings that failed and were treated as empty",
		}),
		TablesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "hivesync_replica_tables_dropped_total",
			Help: "Replica tables dropped from the catalog",
		}),
		ClientsBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hivesync_datamove_clients_built_total",
			Help: "Data manipulation clients built, by factory",
		}, []string{"factory"}),
		RegionFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "hivesync_s3_region_fallbacks_total",
			Help: "S3 clients that fell back to the global client after region lookup failed",
		}),
		ParameterOverrides: f.NewCounter(prometheus.CounterOpts{
			Name: "hivesync_table_parameter_overrides_total",
			Help: "Replication runs that carried a table parameter override",
		}),
	}
}
