// Package replica tears down replica tables and the data they reference.
//
// Data is always deleted explicitly before the catalog drop. The table's
// parameters are first reduced to the external marker (or cleared) so the
// catalog never deletes managed data on its own.
package replica

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hivesync/hivesync/internal/catalog"
	"github.com/hivesync/hivesync/internal/datamove"
	"github.com/hivesync/hivesync/internal/logging/audit"
	"github.com/hivesync/hivesync/internal/metrics"
)

// DefaultWorkers bounds concurrent partition deletions.
const DefaultWorkers = 4

// ClientResolver hands out data clients for replica paths.
type ClientResolver interface {
	ClientForPath(ctx context.Context, path string) (datamove.Client, error)
}

// Config configures a DropTableService.
type Config struct {
	// Workers bounds concurrent partition deletions (default 4).
	Workers int
	// DeletesPerSecond throttles deletions; 0 disables throttling.
	DeletesPerSecond float64

	Logger  zerolog.Logger
	Metrics *metrics.ReplicaMetrics
	// Audit records every deletion and drop (default: discard).
	Audit *audit.Logger
}

// DropTableService drops replica tables.
type DropTableService struct {
	workers int
	limiter *rate.Limiter
	logger  zerolog.Logger
	metrics *metrics.ReplicaMetrics
	audit   *audit.Logger
}

// NewDropTableService creates a DropTableService.
func NewDropTableService(cfg Config) *DropTableService {
	s := &DropTableService{
		workers: cfg.Workers,
		logger:  cfg.Logger.With().Str("component", "replica-drop").Logger(),
		metrics: cfg.Metrics,
		audit:   cfg.Audit,
	}
	if s.audit == nil {
		s.audit = audit.Nop()
	}
	if s.workers <= 0 {
		s.workers = DefaultWorkers
	}
	if cfg.DeletesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.DeletesPerSecond), 1)
	}
	return s
}

// RemoveParametersAndDrop drops the table metadata without touching data.
// A missing table is a no-op.
func (s *DropTableService) RemoveParametersAndDrop(ctx context.Context, client catalog.Client, databaseName, tableName string) error {
	table, err := s.getTable(ctx, client, databaseName, tableName)
	if err != nil || table == nil {
		return err
	}
	return s.normalizeAndDrop(ctx, client, table)
}

// DropTableAndData deletes the table's data, then drops its metadata.
//
// Data deletion failures are recorded in the report and never prevent the
// drop. Only a scheme with no data client, or a failing alter or drop, is
// returned as an error. A missing table is a no-op.
func (s *DropTableService) DropTableAndData(ctx context.Context, client catalog.Client, databaseName, tableName string, resolver ClientResolver) (*Report, error) {
	report := &Report{Table: databaseName + "." + tableName}

	table, err := s.getTable(ctx, client, databaseName, tableName)
	if err != nil || table == nil {
		return report, err
	}
	report.Found = true
	report.Partitioned = table.Partitioned()

	locations := s.dataLocations(ctx, client, table, report)
	if len(locations) > 0 {
		if err := s.deleteData(ctx, table, locations, resolver, report); err != nil {
			return report, err
		}
	}

	if err := s.normalizeAndDrop(ctx, client, table); err != nil {
		return report, err
	}
	report.Dropped = true
	return report, nil
}

func (s *DropTableService) getTable(ctx context.Context, client catalog.Client, databaseName, tableName string) (*catalog.Table, error) {
	table, err := client.GetTable(ctx, databaseName, tableName)
	if catalog.IsNotFound(err) {
		s.logger.Debug().Str("table", databaseName+"."+tableName).Msg("Replica table does not exist")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get table %s.%s: %w", databaseName, tableName, err)
	}
	return table, nil
}

// dataLocations lists the locations to delete. A partition listing failure
// yields no locations: the data stays behind and is reported.
func (s *DropTableService) dataLocations(ctx context.Context, client catalog.Client, table *catalog.Table, report *Report) []string {
	if !table.Partitioned() {
		if table.Location == "" {
			return nil
		}
		return []string{table.Location}
	}

	partitions, err := client.ListPartitions(ctx, table.DatabaseName, table.TableName, -1)
	if err != nil {
		report.ListingFailed = true
		s.logger.Warn().Err(err).Str("table", table.QualifiedName()).
			Msg("Could not list partitions, partition data will not be deleted")
		if s.metrics != nil {
			s.metrics.PartitionListFails.Inc()
		}
		return nil
	}

	locations := make([]string, 0, len(partitions))
	for _, p := range partitions {
		if p.Location != "" {
			locations = append(locations, p.Location)
		}
	}
	return locations
}

func (s *DropTableService) deleteData(ctx context.Context, table *catalog.Table, locations []string, resolver ClientResolver, report *Report) error {
	base := table.Location
	if base == "" {
		base = locations[0]
	}

	dataClient, err := resolver.ClientForPath(ctx, base)
	if errors.Is(err, datamove.ErrSchemeResolution) {
		return err
	}
	if err != nil {
		report.ClientErr = err
		s.logger.Error().Err(err).Str("table", table.QualifiedName()).Msg("Could not create data client, replica data not deleted")
		if s.metrics != nil {
			s.metrics.DeleteFailures.WithLabelValues(metrics.ReasonClient).Inc()
		}
		return nil
	}
	if c, ok := dataClient.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				s.logger.Debug().Err(err).Msg("Closing data client")
			}
		}()
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, loc := range locations {
		g.Go(func() error {
			deleted, err := s.deleteLocation(ctx, dataClient, table.QualifiedName(), loc)
			mu.Lock()
			report.record(loc, deleted, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info().
		Str("table", table.QualifiedName()).
		Int("attempted", report.Attempted).
		Int("deleted", report.Deleted).
		Int("failed", len(report.Failures)).
		Msg("Replica data deletion finished")
	return nil
}

func (s *DropTableService) deleteLocation(ctx context.Context, client datamove.Client, table, location string) (bool, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	deleted, err := client.Delete(ctx, location)
	switch {
	case datamove.IsUnsupported(err):
		s.logger.Warn().Err(err).Str("location", location).Msg("Deletion not supported for replica location")
		s.countFailure(metrics.ReasonUnsupported)
		s.audit.LogDataDelete(table, location, audit.ResultUnsupported, err.Error())
	case err != nil:
		s.logger.Error().Err(err).Str("location", location).Msg("Could not delete replica data")
		s.countFailure(metrics.ReasonIO)
		s.audit.LogDataDelete(table, location, audit.ResultFailed, err.Error())
	case deleted:
		s.logger.Debug().Str("location", location).Msg("Deleted replica data")
		if s.metrics != nil {
			s.metrics.LocationsDeleted.Inc()
		}
		s.audit.LogDataDelete(table, location, audit.ResultDeleted, "")
	default:
		s.logger.Debug().Str("location", location).Msg("No replica data at location")
		if s.metrics != nil {
			s.metrics.LocationsEmpty.Inc()
		}
		s.audit.LogDataDelete(table, location, audit.ResultEmpty, "")
	}
	return deleted, err
}

func (s *DropTableService) countFailure(reason string) {
	if s.metrics != nil {
		s.metrics.DeleteFailures.WithLabelValues(reason).Inc()
	}
}

// normalizeAndDrop reduces the parameters to the external marker, then drops
// the metadata only.
func (s *DropTableService) normalizeAndDrop(ctx context.Context, client catalog.Client, table *catalog.Table) error {
	name := table.QualifiedName()

	if len(table.Parameters) > 0 {
		altered := table.Clone()
		altered.Parameters = catalog.DropParameters(table.Parameters)
		if err := client.AlterTable(ctx, table.DatabaseName, table.TableName, altered); err != nil {
			return fmt.Errorf("alter table %s: %w", name, err)
		}
	}

	if err := client.DropTable(ctx, table.DatabaseName, table.TableName, true, false); err != nil {
		s.audit.LogTableDrop(name, table.IsExternal(), audit.ResultFailed, err.Error())
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	s.audit.LogTableDrop(name, table.IsExternal(), audit.ResultDropped, "")
	if s.metrics != nil {
		s.metrics.TablesDropped.Inc()
	}
	s.logger.Info().Str("table", name).Bool("external", table.IsExternal()).Msg("Dropped replica table")
	return nil
}
