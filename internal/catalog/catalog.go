// Package catalog models the replica-side view of a Hive-compatible metastore.
//
// The package only holds the table/partition shapes and the Client interface
// the lifecycle code consumes. Concrete catalogs live in subpackages.
package catalog

import (
	"context"
	"errors"
	"maps"
	"slices"
)

// ErrNotFound is wrapped by Client implementations when a table or partition
// does not exist. It is distinct from transport failures.
var ErrNotFound = errors.New("no such object")

// Table is a handle on a catalog table.
type Table struct {
	DatabaseName  string
	TableName     string
	Location      string
	PartitionKeys []string
	Parameters    map[string]string
}

// Partition is a single partition of a table.
type Partition struct {
	Values   []string
	Location string
}

// Client is the subset of metastore operations used on the replica side.
type Client interface {
	// GetTable returns the table or an error wrapping ErrNotFound.
	GetTable(ctx context.Context, databaseName, tableName string) (*Table, error)

	// AlterTable replaces the table definition.
	AlterTable(ctx context.Context, databaseName, tableName string, table *Table) error

	// DropTable removes the table metadata. When ignoreUnknown is set a missing
	// table is not an error. deleteData asks the catalog to remove managed data.
	DropTable(ctx context.Context, databaseName, tableName string, ignoreUnknown, deleteData bool) error

	// ListPartitions lists up to max partitions; max < 0 lists all of them.
	ListPartitions(ctx context.Context, databaseName, tableName string, max int) ([]Partition, error)
}

// QualifiedName returns "db.table".
func (t *Table) QualifiedName() string {
	return t.DatabaseName + "." + t.TableName
}

// Partitioned reports whether the table declares partition keys.
func (t *Table) Partitioned() bool {
	return len(t.PartitionKeys) > 0
}

// IsExternal reports whether the parameters mark the table as external.
func (t *Table) IsExternal() bool {
	return IsExternal(t.Parameters)
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := *t
	c.PartitionKeys = slices.Clone(t.PartitionKeys)
	if t.Parameters != nil {
		c.Parameters = maps.Clone(t.Parameters)
	}
	return &c
}

// IsNotFound reports whether err signals a missing catalog object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
