package replica

import (
	"sort"

	"github.com/hivesync/hivesync/internal/datamove"
	"github.com/hivesync/hivesync/internal/metrics"
)

// LocationFailure is a data location that could not be deleted.
type LocationFailure struct {
	Location string
	// Reason is metrics.ReasonUnsupported or metrics.ReasonIO.
	Reason string
	Err    error
}

// Report summarizes one DropTableAndData call.
type Report struct {
	Table string

	Found       bool
	Partitioned bool
	// ListingFailed is set when partitions could not be listed and their
	// data was left in place.
	ListingFailed bool

	Attempted int
	Deleted   int
	Empty     int
	Failures  []LocationFailure

	// ClientErr is set when no data client could be built.
	ClientErr error

	Dropped bool
}

// Complete reports whether every known data location was handled.
func (r *Report) Complete() bool {
	return !r.ListingFailed && r.ClientErr == nil && len(r.Failures) == 0
}

// FailedLocations returns the failed locations in sorted order.
func (r *Report) FailedLocations() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Location)
	}
	sort.Strings(out)
	return out
}

func (r *Report) record(location string, deleted bool, err error) {
	r.Attempted++
	switch {
	case err != nil:
		reason := metrics.ReasonIO
		if datamove.IsUnsupported(err) {
			reason = metrics.ReasonUnsupported
		}
		r.Failures = append(r.Failures, LocationFailure{Location: location, Reason: reason, Err: err})
	case deleted:
		r.Deleted++
	default:
		r.Empty++
	}
}
