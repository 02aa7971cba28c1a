package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hivesync/hivesync/internal/catalog"
	"github.com/hivesync/hivesync/internal/datamove"
)

// DropCall records one FakeCatalog.DropTable invocation.
type DropCall struct {
	Database      string
	Table         string
	IgnoreUnknown bool
	DeleteData    bool
}

// FakeCatalog is an in-memory catalog.Client.
type FakeCatalog struct {
	mu         sync.Mutex
	tables     map[string]*catalog.Table
	partitions map[string][]catalog.Partition

	// Err* force failures on the matching call.
	GetErr   error
	AlterErr error
	DropErr  error
	ListErr  error

	Alters []catalog.Table
	Drops  []DropCall
}

// NewFakeCatalog creates a FakeCatalog holding tables.
func NewFakeCatalog(tables ...*catalog.Table) *FakeCatalog {
	c := &FakeCatalog{
		tables:     make(map[string]*catalog.Table),
		partitions: make(map[string][]catalog.Partition),
	}
	for _, t := range tables {
		c.tables[t.QualifiedName()] = t.Clone()
	}
	return c
}

// AddPartitions registers partitions of db.table.
func (c *FakeCatalog) AddPartitions(db, table string, parts ...catalog.Partition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := db + "." + table
	c.partitions[key] = append(c.partitions[key], parts...)
}

// Table returns a copy of a stored table, or nil.
func (c *FakeCatalog) Table(db, table string) *catalog.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[db+"."+table]
	if !ok {
		return nil
	}
	return t.Clone()
}

func (c *FakeCatalog) GetTable(_ context.Context, db, table string) (*catalog.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	t, ok := c.tables[db+"."+table]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return t.Clone(), nil
}

func (c *FakeCatalog) AlterTable(_ context.Context, db, table string, t *catalog.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AlterErr != nil {
		return c.AlterErr
	}
	if _, ok := c.tables[db+"."+table]; !ok {
		return catalog.ErrNotFound
	}
	c.Alters = append(c.Alters, *t.Clone())
	c.tables[db+"."+table] = t.Clone()
	return nil
}

func (c *FakeCatalog) DropTable(_ context.Context, db, table string, ignoreUnknown, deleteData bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Drops = append(c.Drops, DropCall{Database: db, Table: table, IgnoreUnknown: ignoreUnknown, DeleteData: deleteData})
	if c.DropErr != nil {
		return c.DropErr
	}
	key := db + "." + table
	if _, ok := c.tables[key]; !ok {
		if ignoreUnknown {
			return nil
		}
		return catalog.ErrNotFound
	}
	delete(c.tables, key)
	delete(c.partitions, key)
	return nil
}

func (c *FakeCatalog) ListPartitions(_ context.Context, db, table string, max int) ([]catalog.Partition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	key := db + "." + table
	if _, ok := c.tables[key]; !ok {
		return nil, catalog.ErrNotFound
	}
	parts := append([]catalog.Partition(nil), c.partitions[key]...)
	if max >= 0 && len(parts) > max {
		parts = parts[:max]
	}
	return parts, nil
}

// FakeDataClient is a datamove.Client recording deleted locations.
type FakeDataClient struct {
	mu sync.Mutex

	// Empty lists locations that hold no data.
	Empty map[string]bool
	// Fail maps locations to the error their deletion returns.
	Fail map[string]error

	deleted []string
	Closed  bool
}

// Delete records location unless it is configured to fail.
func (c *FakeDataClient) Delete(ctx context.Context, location string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.Fail[location]; ok {
		return false, err
	}
	if c.Empty[location] {
		return false, nil
	}
	c.deleted = append(c.deleted, location)
	return true, nil
}

// Close marks the client closed.
func (c *FakeDataClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Closed {
		return errors.New("already closed")
	}
	c.Closed = true
	return nil
}

// Deleted returns the deleted locations in sorted order.
func (c *FakeDataClient) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]string(nil), c.deleted...)
	sort.Strings(out)
	return out
}

var _ catalog.Client = (*FakeCatalog)(nil)
var _ datamove.Client = (*FakeDataClient)(nil)
