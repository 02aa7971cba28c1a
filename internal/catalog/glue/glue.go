// Package glue implements catalog.Client on top of the AWS Glue Data Catalog,
// which speaks the Hive table model.
package glue

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
	"github.com/rs/zerolog"

	"github.com/hivesync/hivesync/internal/catalog"
)

// Glue returns at most this many partitions per page.
const maxPartitionsPerPage = 1000

// ErrDeleteDataUnsupported is returned when a drop asks Glue to remove data.
// Glue never owns table data.
var ErrDeleteDataUnsupported = errors.New("glue catalog cannot delete table data")

// Client is a catalog.Client backed by Glue.
type Client struct {
	api       glueiface.GlueAPI
	catalogID *string
	logger    zerolog.Logger
}

var _ catalog.Client = (*Client)(nil)

// Config configures a Glue catalog client.
type Config struct {
	// CatalogID selects a catalog other than the caller's account default.
	CatalogID string
	Logger    zerolog.Logger
}

// New creates a Client from an AWS session.
func New(sess client.ConfigProvider, cfg Config) *Client {
	return NewWithAPI(glue.New(sess), cfg)
}

// NewWithAPI creates a Client over an existing Glue API implementation.
func NewWithAPI(api glueiface.GlueAPI, cfg Config) *Client {
	c := &Client{
		api:    api,
		logger: cfg.Logger.With().Str("component", "glue-catalog").Logger(),
	}
	if cfg.CatalogID != "" {
		c.catalogID = aws.String(cfg.CatalogID)
	}
	return c
}

// GetTable fetches a table.
func (c *Client) GetTable(ctx context.Context, databaseName, tableName string) (*catalog.Table, error) {
	data, err := c.getTableData(ctx, databaseName, tableName)
	if err != nil {
		return nil, err
	}
	return fromTableData(data), nil
}

// AlterTable rewrites the location and parameters of a table. Columns and the
// rest of the storage descriptor are carried over from the current definition.
func (c *Client) AlterTable(ctx context.Context, databaseName, tableName string, table *catalog.Table) error {
	current, err := c.getTableData(ctx, databaseName, tableName)
	if err != nil {
		return err
	}

	input := toTableInput(current)
	input.Parameters = aws.StringMap(table.Parameters)
	if table.Location != "" {
		if input.StorageDescriptor == nil {
			input.StorageDescriptor = &glue.StorageDescriptor{}
		}
		input.StorageDescriptor.Location = aws.String(table.Location)
	}

	_, err = c.api.UpdateTableWithContext(ctx, &glue.UpdateTableInput{
		CatalogId:    c.catalogID,
		DatabaseName: aws.String(databaseName),
		TableInput:   input,
	})
	if err != nil {
		return fmt.Errorf("update table %s.%s: %w", databaseName, tableName, classify(err))
	}
	return nil
}

// DropTable deletes the table metadata.
func (c *Client) DropTable(ctx context.Context, databaseName, tableName string, ignoreUnknown, deleteData bool) error {
	if deleteData {
		return fmt.Errorf("drop table %s.%s: %w", databaseName, tableName, ErrDeleteDataUnsupported)
	}

	_, err := c.api.DeleteTableWithContext(ctx, &glue.DeleteTableInput{
		CatalogId:    c.catalogID,
		DatabaseName: aws.String(databaseName),
		Name:         aws.String(tableName),
	})
	if err != nil {
		err = classify(err)
		if ignoreUnknown && catalog.IsNotFound(err) {
			c.logger.Debug().Str("table", databaseName+"."+tableName).Msg("Table already gone")
			return nil
		}
		return fmt.Errorf("delete table %s.%s: %w", databaseName, tableName, err)
	}
	return nil
}

// ListPartitions pages through the table partitions.
func (c *Client) ListPartitions(ctx context.Context, databaseName, tableName string, max int) ([]catalog.Partition, error) {
	var partitions []catalog.Partition
	if max == 0 {
		return partitions, nil
	}

	pageSize := int64(maxPartitionsPerPage)
	if max > 0 && max < maxPartitionsPerPage {
		pageSize = int64(max)
	}

	input := &glue.GetPartitionsInput{
		CatalogId:    c.catalogID,
		DatabaseName: aws.String(databaseName),
		TableName:    aws.String(tableName),
		MaxResults:   aws.Int64(pageSize),
	}
	err := c.api.GetPartitionsPagesWithContext(ctx, input, func(page *glue.GetPartitionsOutput, lastPage bool) bool {
		for _, p := range page.Partitions {
			partitions = append(partitions, fromPartition(p))
			if max > 0 && len(partitions) >= max {
				return false
			}
		}
		return !lastPage
	})
	if err != nil {
		return nil, fmt.Errorf("get partitions %s.%s: %w", databaseName, tableName, classify(err))
	}
	return partitions, nil
}

func (c *Client) getTableData(ctx context.Context, databaseName, tableName string) (*glue.TableData, error) {
	out, err := c.api.GetTableWithContext(ctx, &glue.GetTableInput{
		CatalogId:    c.catalogID,
		DatabaseName: aws.String(databaseName),
		Name:         aws.String(tableName),
	})
	if err != nil {
		return nil, fmt.Errorf("get table %s.%s: %w", databaseName, tableName, classify(err))
	}
	if out.Table == nil {
		return nil, fmt.Errorf("get table %s.%s: %w", databaseName, tableName, catalog.ErrNotFound)
	}
	return out.Table, nil
}

// classify maps Glue's not-found error code onto catalog.ErrNotFound.
func classify(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == glue.ErrCodeEntityNotFoundException {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, aerr.Message())
	}
	return err
}

func fromTableData(data *glue.TableData) *catalog.Table {
	t := &catalog.Table{
		DatabaseName: aws.StringValue(data.DatabaseName),
		TableName:    aws.StringValue(data.Name),
		Parameters:   aws.StringValueMap(data.Parameters),
	}
	if data.StorageDescriptor != nil {
		t.Location = aws.StringValue(data.StorageDescriptor.Location)
	}
	for _, col := range data.PartitionKeys {
		t.PartitionKeys = append(t.PartitionKeys, aws.StringValue(col.Name))
	}
	return t
}

func fromPartition(p *glue.Partition) catalog.Partition {
	part := catalog.Partition{Values: aws.StringValueSlice(p.Values)}
	if p.StorageDescriptor != nil {
		part.Location = aws.StringValue(p.StorageDescriptor.Location)
	}
	return part
}

func toTableInput(data *glue.TableData) *glue.TableInput {
	return &glue.TableInput{
		Name:              data.Name,
		Description:       data.Description,
		Owner:             data.Owner,
		LastAccessTime:    data.LastAccessTime,
		LastAnalyzedTime:  data.LastAnalyzedTime,
		Retention:         data.Retention,
		StorageDescriptor: data.StorageDescriptor,
		PartitionKeys:     data.PartitionKeys,
		ViewOriginalText:  data.ViewOriginalText,
		ViewExpandedText:  data.ViewExpandedText,
		TableType:         data.TableType,
		Parameters:        data.Parameters,
		TargetTable:       data.TargetTable,
	}
}
