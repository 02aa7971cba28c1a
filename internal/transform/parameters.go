// Package transform overrides replica table parameters per replication run.
//
// TableParameters holds a baseline mapping from static configuration. Every
// Start event opens a RunContext carrying that run's override, taken from the
// event's transform options. Callers that run replications concurrently on
// one TableParameters must pass the RunContext returned by Start to
// Parameters; CurrentParameters only reflects the latest Start.
package transform

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hivesync/hivesync/internal/catalog"
	"github.com/hivesync/hivesync/internal/event"
	"github.com/hivesync/hivesync/internal/logging/audit"
	"github.com/hivesync/hivesync/internal/metrics"
)

// TablePropertiesKey is the transform option holding parameter overrides.
const TablePropertiesKey = "table_properties"

// RunContext is the transformation state of one replication run.
type RunContext struct {
	ReplicationID string
	EventID       string
	overrides     map[string]string
}

// Overrides returns a copy of the run's parameter override.
func (r *RunContext) Overrides() map[string]string {
	if r == nil {
		return map[string]string{}
	}
	return cloneOrEmpty(r.overrides)
}

func (r *RunContext) replicationID() string {
	if r == nil {
		return ""
	}
	return r.ReplicationID
}

// Config configures TableParameters.
type Config struct {
	// TransformOptions are the static transform options.
	TransformOptions map[string]any

	Logger  zerolog.Logger
	Metrics *metrics.ReplicaMetrics
	// Audit records parameter changes written by Apply (default: discard).
	Audit *audit.Logger
}

// TableParameters supplies the parameters applied to replica tables.
type TableParameters struct {
	baseline map[string]string
	logger   zerolog.Logger
	metrics  *metrics.ReplicaMetrics
	audit    *audit.Logger

	mu     sync.Mutex
	active *RunContext
}

// New creates TableParameters. A baseline that is not a string mapping is
// logged and replaced by an empty one.
func New(cfg Config) *TableParameters {
	logger := cfg.Logger.With().Str("component", "table-parameters").Logger()

	baseline := map[string]string{}
	if raw, ok := cfg.TransformOptions[TablePropertiesKey]; ok && raw != nil {
		if m, ok := StringMap(raw); ok {
			baseline = m
		} else {
			logger.Warn().
				Str("type", fmt.Sprintf("%T", raw)).
				Msg("Ignoring table_properties baseline that is not a string mapping")
		}
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop()
	}
	return &TableParameters{
		baseline: baseline,
		logger:   logger,
		metrics:  cfg.Metrics,
		audit:    cfg.Audit,
	}
}

// Start resets the override and adopts the event's table_properties when it
// is a string mapping. The returned RunContext becomes the current one.
func (p *TableParameters) Start(e event.Start) *RunContext {
	run := &RunContext{
		ReplicationID: e.ReplicationID,
		EventID:       e.EventID,
		overrides:     map[string]string{},
	}

	if raw, ok := e.TransformOptions[TablePropertiesKey]; ok {
		if m, ok := StringMap(raw); ok {
			run.overrides = m
		} else {
			p.logger.Warn().
				Str("replication", e.ReplicationID).
				Str("type", fmt.Sprintf("%T", raw)).
				Msg("Ignoring table_properties override that is not a string mapping")
		}
	}

	if len(run.overrides) > 0 {
		p.logger.Debug().Str("replication", e.ReplicationID).Int("overrides", len(run.overrides)).Msg("Table parameter override active")
		if p.metrics != nil {
			p.metrics.ParameterOverrides.Inc()
		}
	}

	p.mu.Lock()
	p.active = run
	p.mu.Unlock()
	return run
}

// Handlers wires Start events into p. Success and Failure leave the current
// override in place until the next Start.
func (p *TableParameters) Handlers() event.Handlers {
	return event.Handlers{
		OnStart: func(e event.Start) { p.Start(e) },
	}
}

// CurrentParameters returns the override of the latest run if non-empty,
// else the baseline.
func (p *TableParameters) CurrentParameters() map[string]string {
	p.mu.Lock()
	run := p.active
	p.mu.Unlock()
	return p.Parameters(run)
}

// Parameters returns the override of run if non-empty, else the baseline.
func (p *TableParameters) Parameters(run *RunContext) map[string]string {
	if run != nil && len(run.overrides) > 0 {
		return maps.Clone(run.overrides)
	}
	return maps.Clone(p.baseline)
}

// Transform returns a copy of table with the run's parameters merged in.
func (p *TableParameters) Transform(run *RunContext, table *catalog.Table) *catalog.Table {
	out := table.Clone()
	params := p.Parameters(run)
	if len(params) == 0 {
		return out
	}
	if out.Parameters == nil {
		out.Parameters = make(map[string]string, len(params))
	}
	maps.Copy(out.Parameters, params)
	return out
}

// Apply transforms the replica table db.table in the catalog. It reports
// whether the table was altered; a missing table is not an error.
func (p *TableParameters) Apply(ctx context.Context, client catalog.Client, run *RunContext, databaseName, tableName string) (bool, error) {
	table, err := client.GetTable(ctx, databaseName, tableName)
	if catalog.IsNotFound(err) {
		p.logger.Debug().Str("table", databaseName+"."+tableName).Msg("Replica table absent, nothing to transform")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get table %s.%s: %w", databaseName, tableName, err)
	}

	out := p.Transform(run, table)
	if maps.Equal(out.Parameters, table.Parameters) {
		return false, nil
	}
	keys := slices.Sorted(maps.Keys(p.Parameters(run)))
	if err := client.AlterTable(ctx, databaseName, tableName, out); err != nil {
		p.audit.LogParameterChange(table.QualifiedName(), run.replicationID(), keys, audit.ResultFailed, err.Error())
		return false, fmt.Errorf("alter table %s.%s: %w", databaseName, tableName, err)
	}
	p.audit.LogParameterChange(table.QualifiedName(), run.replicationID(), keys, audit.ResultUpdated, "")
	p.logger.Info().Str("table", table.QualifiedName()).Msg("Applied table parameters")
	return true, nil
}

// StringMap converts v to a string mapping. YAML decodes mappings as
// map[string]any, which qualifies when every value is a string.
func StringMap(v any) (map[string]string, bool) {
	switch m := v.(type) {
	case map[string]string:
		return cloneOrEmpty(m), true
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

func cloneOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
