package glue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivesync/hivesync/internal/catalog"
)

// fakeGlue implements only the calls the adapter makes.
type fakeGlue struct {
	glueiface.GlueAPI

	tables     map[string]*glue.TableData
	pages      [][]*glue.Partition
	getErr     error
	updated    []*glue.UpdateTableInput
	deleted    []string
	pagesCalls int
}

func notFound() error {
	return awserr.New(glue.ErrCodeEntityNotFoundException, "Table not found", nil)
}

func (f *fakeGlue) GetTableWithContext(_ aws.Context, in *glue.GetTableInput, _ ...request.Option) (*glue.GetTableOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.tables[aws.StringValue(in.DatabaseName)+"."+aws.StringValue(in.Name)]
	if !ok {
		return nil, notFound()
	}
	return &glue.GetTableOutput{Table: t}, nil
}

func (f *fakeGlue) UpdateTableWithContext(_ aws.Context, in *glue.UpdateTableInput, _ ...request.Option) (*glue.UpdateTableOutput, error) {
	f.updated = append(f.updated, in)
	return &glue.UpdateTableOutput{}, nil
}

func (f *fakeGlue) DeleteTableWithContext(_ aws.Context, in *glue.DeleteTableInput, _ ...request.Option) (*glue.DeleteTableOutput, error) {
	key := aws.StringValue(in.DatabaseName) + "." + aws.StringValue(in.Name)
	if _, ok := f.tables[key]; !ok {
		return nil, notFound()
	}
	delete(f.tables, key)
	f.deleted = append(f.deleted, key)
	return &glue.DeleteTableOutput{}, nil
}

func (f *fakeGlue) GetPartitionsPagesWithContext(_ aws.Context, _ *glue.GetPartitionsInput, fn func(*glue.GetPartitionsOutput, bool) bool, _ ...request.Option) error {
	for i, page := range f.pages {
		f.pagesCalls++
		if !fn(&glue.GetPartitionsOutput{Partitions: page}, i == len(f.pages)-1) {
			break
		}
	}
	return nil
}

func newTableData(db, name, location string, params map[string]string, partKeys ...string) *glue.TableData {
	data := &glue.TableData{
		DatabaseName:      aws.String(db),
		Name:              aws.String(name),
		Owner:             aws.String("etl"),
		TableType:         aws.String("EXTERNAL_TABLE"),
		StorageDescriptor: &glue.StorageDescriptor{Location: aws.String(location)},
		Parameters:        aws.StringMap(params),
	}
	for _, k := range partKeys {
		data.PartitionKeys = append(data.PartitionKeys, &glue.Column{Name: aws.String(k), Type: aws.String("string")})
	}
	return data
}

func newPartition(location string, values ...string) *glue.Partition {
	return &glue.Partition{
		Values:            aws.StringSlice(values),
		StorageDescriptor: &glue.StorageDescriptor{Location: aws.String(location)},
	}
}

func newTestClient(f *fakeGlue) *Client {
	return NewWithAPI(f, Config{Logger: zerolog.Nop()})
}

func TestGetTable(t *testing.T) {
	f := &fakeGlue{tables: map[string]*glue.TableData{
		"db.t": newTableData("db", "t", "s3://bucket/db/t", map[string]string{"EXTERNAL": "TRUE"}, "dt"),
	}}
	c := newTestClient(f)

	table, err := c.GetTable(context.Background(), "db", "t")
	require.NoError(t, err)
	assert.Equal(t, "db", table.DatabaseName)
	assert.Equal(t, "t", table.TableName)
	assert.Equal(t, "s3://bucket/db/t", table.Location)
	assert.Equal(t, []string{"dt"}, table.PartitionKeys)
	assert.True(t, table.IsExternal())
}

func TestGetTable_NotFound(t *testing.T) {
	c := newTestClient(&fakeGlue{tables: map[string]*glue.TableData{}})

	_, err := c.GetTable(context.Background(), "db", "missing")
	require.Error(t, err)
	assert.True(t, catalog.IsNotFound(err))
}

func TestGetTable_TransportErrorIsNotNotFound(t *testing.T) {
	c := newTestClient(&fakeGlue{getErr: errors.New("connection reset")})

	_, err := c.GetTable(context.Background(), "db", "t")
	require.Error(t, err)
	assert.False(t, catalog.IsNotFound(err))
}

func TestAlterTable_KeepsDescriptor(t *testing.T) {
	f := &fakeGlue{tables: map[string]*glue.TableData{
		"db.t": newTableData("db", "t", "s3://bucket/db/t", map[string]string{"EXTERNAL": "TRUE", "x": "1"}),
	}}
	c := newTestClient(f)

	err := c.AlterTable(context.Background(), "db", "t", &catalog.Table{
		DatabaseName: "db",
		TableName:    "t",
		Parameters:   map[string]string{"EXTERNAL": "TRUE"},
	})
	require.NoError(t, err)

	require.Len(t, f.updated, 1)
	in := f.updated[0].TableInput
	assert.Equal(t, map[string]string{"EXTERNAL": "TRUE"}, aws.StringValueMap(in.Parameters))
	assert.Equal(t, "s3://bucket/db/t", aws.StringValue(in.StorageDescriptor.Location))
	assert.Equal(t, "etl", aws.StringValue(in.Owner))
	assert.Equal(t, "EXTERNAL_TABLE", aws.StringValue(in.TableType))
}

func TestDropTable(t *testing.T) {
	f := &fakeGlue{tables: map[string]*glue.TableData{
		"db.t": newTableData("db", "t", "s3://bucket/db/t", nil),
	}}
	c := newTestClient(f)

	require.NoError(t, c.DropTable(context.Background(), "db", "t", true, false))
	assert.Equal(t, []string{"db.t"}, f.deleted)

	// Second drop hits EntityNotFound and is ignored.
	require.NoError(t, c.DropTable(context.Background(), "db", "t", true, false))

	err := c.DropTable(context.Background(), "db", "t", false, false)
	require.Error(t, err)
	assert.True(t, catalog.IsNotFound(err))
}

func TestDropTable_DeleteDataUnsupported(t *testing.T) {
	c := newTestClient(&fakeGlue{tables: map[string]*glue.TableData{}})

	err := c.DropTable(context.Background(), "db", "t", true, true)
	assert.ErrorIs(t, err, ErrDeleteDataUnsupported)
}

func TestListPartitions(t *testing.T) {
	f := &fakeGlue{pages: [][]*glue.Partition{
		{newPartition("s3://b/t/dt=1", "1"), newPartition("s3://b/t/dt=2", "2")},
		{newPartition("s3://b/t/dt=3", "3")},
	}}
	c := newTestClient(f)

	parts, err := c.ListPartitions(context.Background(), "db", "t", -1)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, "s3://b/t/dt=3", parts[2].Location)
	assert.Equal(t, []string{"1"}, parts[0].Values)
}

func TestListPartitions_Max(t *testing.T) {
	f := &fakeGlue{pages: [][]*glue.Partition{
		{newPartition("s3://b/t/dt=1", "1"), newPartition("s3://b/t/dt=2", "2")},
		{newPartition("s3://b/t/dt=3", "3")},
	}}
	c := newTestClient(f)

	parts, err := c.ListPartitions(context.Background(), "db", "t", 1)
	require.NoError(t, err)
	assert.Len(t, parts, 1)
	assert.Equal(t, 1, f.pagesCalls)

	parts, err = c.ListPartitions(context.Background(), "db", "t", 0)
	require.NoError(t, err)
	assert.Empty(t, parts)
}
