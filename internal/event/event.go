// Package event defines the lifecycle events of a replication run.
//
// Event is a closed set: Start, Success and Failure. Consumers register
// explicit handlers through Handlers; there is no listener discovery.
package event

import (
	"fmt"
	"maps"

	"github.com/google/uuid"
)

// Meta is shared by every event of a run.
type Meta struct {
	// EventID is unique per event.
	EventID string
	// ReplicationID identifies the configured replication.
	ReplicationID string
	// TransformOptions are the free-form per-run options.
	TransformOptions map[string]any
}

// Event is one of Start, Success or Failure.
type Event interface {
	Metadata() Meta
	isEvent()
}

// Start is emitted before a run touches the replica.
type Start struct{ Meta }

// Success is emitted after a run completes.
type Success struct{ Meta }

// Failure is emitted when a run stops with Err.
type Failure struct {
	Meta
	Err error
}

func (e Start) Metadata() Meta   { return e.Meta }
func (e Success) Metadata() Meta { return e.Meta }
func (e Failure) Metadata() Meta { return e.Meta }

func (Start) isEvent()   {}
func (Success) isEvent() {}
func (Failure) isEvent() {}

// NewMeta creates metadata with a fresh event id. options are copied.
func NewMeta(replicationID string, options map[string]any) Meta {
	return Meta{
		EventID:          uuid.NewString(),
		ReplicationID:    replicationID,
		TransformOptions: maps.Clone(options),
	}
}

// Handlers receive events of one kind each. Nil handlers are skipped.
type Handlers struct {
	OnStart   func(Start)
	OnSuccess func(Success)
	OnFailure func(Failure)
}

// Dispatch routes e to the matching handler.
func (h Handlers) Dispatch(e Event) {
	switch ev := e.(type) {
	case Start:
		if h.OnStart != nil {
			h.OnStart(ev)
		}
	case Success:
		if h.OnSuccess != nil {
			h.OnSuccess(ev)
		}
	case Failure:
		if h.OnFailure != nil {
			h.OnFailure(ev)
		}
	default:
		panic(fmt.Sprintf("event: unknown event type %T", e))
	}
}

// Dispatcher fans events out to registered handlers in registration order.
// It is not safe for concurrent registration.
type Dispatcher struct {
	handlers []Handlers
}

// Register appends handlers.
func (d *Dispatcher) Register(h Handlers) {
	d.handlers = append(d.handlers, h)
}

// Emit delivers e to every registered handler.
func (d *Dispatcher) Emit(e Event) {
	for _, h := range d.handlers {
		h.Dispatch(e)
	}
}
