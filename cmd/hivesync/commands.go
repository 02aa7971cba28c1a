package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hivesync/hivesync/internal/awsclient"
	"github.com/hivesync/hivesync/internal/config"
	"github.com/hivesync/hivesync/internal/datamove"
	"github.com/hivesync/hivesync/internal/event"
	"github.com/hivesync/hivesync/internal/replica"
)

func runDropTable(ctx context.Context, a *app, out io.Writer, databaseName, tableName string) error {
	if err := a.drops.RemoveParametersAndDrop(ctx, a.catalog, databaseName, tableName); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Dropped %s.%s (data kept)\n", databaseName, tableName)
	return nil
}

// runDropTableAndData drops one replica table. The source location and
// copier options come from the matching configured replication unless
// sourceLocation is given.
func runDropTableAndData(ctx context.Context, a *app, out io.Writer, databaseName, tableName, sourceLocation string) error {
	copierOptions := a.cfg.CopierOptions
	if r, ok := a.cfg.Replication(databaseName, tableName); ok {
		copierOptions = r.MergedCopierOptions(a.cfg.CopierOptions)
		if sourceLocation == "" {
			sourceLocation = r.SourceTable.Location
		}
	}

	resolver := a.router.Bind(sourceLocation, copierOptions)
	report, err := a.drops.DropTableAndData(ctx, a.catalog, databaseName, tableName, resolver)
	printReport(out, report)
	return err
}

// runTeardown drops every configured replica table and its data, emitting
// lifecycle events per replication. A failing replication does not stop the
// others.
func runTeardown(ctx context.Context, a *app, out io.Writer) error {
	var errs []error
	for _, r := range a.cfg.TableReplications {
		start := event.Start{Meta: event.NewMeta(r.ReplicationID(), r.MergedTransformOptions(a.cfg.TransformOptions))}
		a.events.Emit(start)

		resolver := a.router.Bind(r.SourceTable.Location, r.MergedCopierOptions(a.cfg.CopierOptions))
		report, err := a.drops.DropTableAndData(ctx, a.catalog, r.ReplicaTable.DatabaseName, r.ReplicaTable.TableName, resolver)
		printReport(out, report)

		if err != nil {
			a.events.Emit(event.Failure{Meta: withEventID(start.Meta), Err: err})
			errs = append(errs, fmt.Errorf("%s: %w", r.ReplicationID(), err))
			continue
		}
		a.events.Emit(event.Success{Meta: withEventID(start.Meta)})
	}
	return errors.Join(errs...)
}

// runApplyParameters applies each replication's table parameters to its
// replica table.
func runApplyParameters(ctx context.Context, a *app, out io.Writer) error {
	var errs []error
	for _, r := range a.cfg.TableReplications {
		start := event.Start{Meta: event.NewMeta(r.ReplicationID(), r.MergedTransformOptions(a.cfg.TransformOptions))}
		run := a.params.Start(start)
		a.events.Emit(start)

		changed, err := a.params.Apply(ctx, a.catalog, run, r.ReplicaTable.DatabaseName, r.ReplicaTable.TableName)
		if err != nil {
			a.events.Emit(event.Failure{Meta: withEventID(start.Meta), Err: err})
			errs = append(errs, fmt.Errorf("%s: %w", r.ReplicationID(), err))
			continue
		}
		a.events.Emit(event.Success{Meta: withEventID(start.Meta)})

		status := "unchanged"
		if changed {
			status = "updated"
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\n", r.ReplicaQualifiedName(), status)
	}
	return errors.Join(errs...)
}

func runSchemes(a *app, out io.Writer, sourceLocation, replicaLocation string) error {
	if sourceLocation == "" && replicaLocation == "" {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ORDER\tFACTORY")
		for i, f := range a.router.Factories() {
			_, _ = fmt.Fprintf(w, "%d\t%s\n", i+1, f.Name())
		}
		return w.Flush()
	}

	f, err := a.router.Resolve(datamove.Scheme(sourceLocation), datamove.Scheme(replicaLocation))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, f.Name())
	return nil
}

func runBucketRegion(ctx context.Context, a *app, out io.Writer, location string) error {
	bucket, _, err := awsclient.ParseLocation(location)
	if err != nil {
		return err
	}
	opts, err := awsclient.ParseOptions(a.cfg.CopierOptions)
	if err != nil {
		return err
	}
	global, err := a.clients.NewGlobalInstance(opts)
	if err != nil {
		return err
	}
	region, err := awsclient.ResolveBucketRegion(ctx, global, bucket)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, region)
	return nil
}

func printReport(out io.Writer, r *replica.Report) {
	if r == nil {
		return
	}
	if !r.Found {
		_, _ = fmt.Fprintf(out, "%s: not found, nothing to do\n", r.Table)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "TABLE\tDROPPED\tATTEMPTED\tDELETED\tEMPTY\tFAILED\n")
	_, _ = fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\t%d\n", r.Table, r.Dropped, r.Attempted, r.Deleted, r.Empty, len(r.Failures))
	_ = w.Flush()

	if r.ListingFailed {
		_, _ = fmt.Fprintf(out, "warning: partitions of %s could not be listed, their data was not deleted\n", r.Table)
	}
	if r.ClientErr != nil {
		_, _ = fmt.Fprintf(out, "warning: no data client for %s: %v\n", r.Table, r.ClientErr)
	}
	for _, f := range r.Failures {
		_, _ = fmt.Fprintf(out, "failed (%s): %s: %v\n", f.Reason, f.Location, f.Err)
	}
}

// withEventID returns m with a fresh event id.
func withEventID(m event.Meta) event.Meta {
	return event.NewMeta(m.ReplicationID, m.TransformOptions)
}

// loadConfig loads and validates the configuration file.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
