// Package loki provides a zerolog writer that pushes hivesync run logs to
// Grafana Loki.
//
// Entries are buffered and pushed in batches, one stream per log level, so a
// teardown's warnings and errors can be queried without parsing every line.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds configuration for the Loki writer.
type Config struct {
	URL           string            // Loki base URL (e.g., "http://loki:3100")
	Labels        map[string]string // Static labels added to every stream
	BatchSize     int               // Max entries before flush (default: 100)
	FlushInterval time.Duration     // Flush interval (default: 5s)
	Timeout       time.Duration     // HTTP timeout (default: 10s)

	// OnError is called for failed pushes. It must not log through the
	// writer itself.
	OnError func(error)
}

// Writer implements io.Writer and pushes zerolog JSON lines to Loki.
type Writer struct {
	url     string
	client  *http.Client
	onError func(error)

	mu        sync.Mutex
	labels    map[string]string
	buffer    []entry
	batchSize int

	flushInterval time.Duration
	flushTrigger  chan struct{}
	flushing      atomic.Bool
	stop          chan struct{}
	done          chan struct{}
	started       bool

	pushErrors atomic.Uint64
}

type entry struct {
	timestamp time.Time
	level     string
	line      string
}

type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// NewWriter creates a Loki writer. Call Start to begin periodic flushing.
func NewWriter(cfg Config) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	labels := make(map[string]string, len(cfg.Labels)+1)
	maps.Copy(labels, cfg.Labels)
	if _, ok := labels["job"]; !ok {
		labels["job"] = "hivesync"
	}

	return &Writer{
		url:           cfg.URL,
		client:        &http.Client{Timeout: cfg.Timeout},
		onError:       cfg.OnError,
		labels:        labels,
		buffer:        make([]entry, 0, cfg.BatchSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		flushTrigger:  make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Write buffers one log line. It never fails so that an unreachable Loki
// cannot break a run.
func (w *Writer) Write(p []byte) (int, error) {
	line := string(bytes.TrimSpace(p))
	if line == "" {
		return len(p), nil
	}

	w.mu.Lock()
	w.buffer = append(w.buffer, entry{
		timestamp: time.Now(),
		level:     levelOf(line),
		line:      line,
	})
	full := len(w.buffer) >= w.batchSize
	w.mu.Unlock()

	if full {
		select {
		case w.flushTrigger <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

// Start begins the background flush goroutine.
func (w *Writer) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.Flush(context.Background())
			case <-w.flushTrigger:
				w.Flush(context.Background())
			}
		}
	}()
}

// Stop ends background flushing and pushes what is left, bounded by ctx.
func (w *Writer) Stop(ctx context.Context) {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	if started {
		select {
		case <-w.stop:
		default:
			close(w.stop)
		}
		<-w.done
	}
	w.Flush(ctx)
}

// Flush pushes buffered entries. Concurrent calls return immediately while
// a push is in flight.
func (w *Writer) Flush(ctx context.Context) {
	if !w.flushing.CompareAndSwap(false, true) {
		return
	}
	defer w.flushing.Store(false)

	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return
	}
	entries := w.buffer
	w.buffer = make([]entry, 0, w.batchSize)
	labels := maps.Clone(w.labels)
	w.mu.Unlock()

	if err := w.push(ctx, buildRequest(labels, entries)); err != nil {
		w.pushErrors.Add(1)
		if w.onError != nil {
			w.onError(err)
		}
	}
}

func (w *Writer) push(ctx context.Context, payload pushRequest) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("loki: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url+"/loki/api/v1/push", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("loki: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("loki: push: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("loki: server returned status %d", resp.StatusCode)
	}
	return nil
}

// PushErrors returns the number of failed pushes.
func (w *Writer) PushErrors() uint64 {
	return w.pushErrors.Load()
}

// SetLabels adds labels to streams pushed from now on.
func (w *Writer) SetLabels(labels map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	maps.Copy(w.labels, labels)
}

// buildRequest groups entries into one stream per level, keeping the order
// in which levels first appear.
func buildRequest(labels map[string]string, entries []entry) pushRequest {
	var req pushRequest
	index := make(map[string]int)
	for _, e := range entries {
		i, ok := index[e.level]
		if !ok {
			s := stream{Stream: maps.Clone(labels)}
			if e.level != "" {
				s.Stream["level"] = e.level
			}
			req.Streams = append(req.Streams, s)
			i = len(req.Streams) - 1
			index[e.level] = i
		}
		req.Streams[i].Values = append(req.Streams[i].Values, []string{
			strconv.FormatInt(e.timestamp.UnixNano(), 10),
			e.line,
		})
	}
	return req
}

// levelOf extracts the zerolog level field of a JSON line, or "".
func levelOf(line string) string {
	var v struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		return ""
	}
	return v.Level
}
