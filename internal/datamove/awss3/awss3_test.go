package awss3

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivesync/hivesync/internal/awsclient"
	"github.com/hivesync/hivesync/internal/datamove"
)

// memS3 is an in-memory bucket store supporting the calls the client makes.
type memS3 struct {
	s3iface.S3API
	objects   map[string]map[string]bool
	pageSize  int
	listErr   error
	deleteErr error
	partial   bool
	batches   []int
	location  *string
}

func newMemS3(keys ...string) *memS3 {
	m := &memS3{objects: map[string]map[string]bool{}, pageSize: 1000}
	for _, k := range keys {
		bucket, key, _ := strings.Cut(k, "/")
		if m.objects[bucket] == nil {
			m.objects[bucket] = map[string]bool{}
		}
		m.objects[bucket][key] = true
	}
	return m
}

func (m *memS3) keys(bucket string) []string {
	var out []string
	for k := range m.objects[bucket] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *memS3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	if m.listErr != nil {
		return m.listErr
	}
	var matched []string
	for _, k := range m.keys(aws.StringValue(in.Bucket)) {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			matched = append(matched, k)
		}
	}
	for start := 0; start < len(matched) || start == 0; start += m.pageSize {
		end := min(start+m.pageSize, len(matched))
		page := &s3.ListObjectsV2Output{}
		for _, k := range matched[start:end] {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k)})
		}
		last := end >= len(matched)
		if !fn(page, last) || last {
			break
		}
	}
	return nil
}

func (m *memS3) DeleteObjectsWithContext(_ aws.Context, in *s3.DeleteObjectsInput, _ ...request.Option) (*s3.DeleteObjectsOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.batches = append(m.batches, len(in.Delete.Objects))
	out := &s3.DeleteObjectsOutput{}
	for i, obj := range in.Delete.Objects {
		if m.partial && i == 0 {
			out.Errors = append(out.Errors, &s3.Error{Key: obj.Key, Message: aws.String("AccessDenied")})
			continue
		}
		delete(m.objects[aws.StringValue(in.Bucket)], aws.StringValue(obj.Key))
	}
	return out, nil
}

func (m *memS3) GetBucketLocationWithContext(aws.Context, *s3.GetBucketLocationInput, ...request.Option) (*s3.GetBucketLocationOutput, error) {
	return &s3.GetBucketLocationOutput{LocationConstraint: m.location}, nil
}

func newTestClient(t *testing.T, api s3iface.S3API) *Client {
	t.Helper()
	return NewClient(api, zerolog.New(zerolog.NewTestWriter(t)))
}

func TestClient_DeleteDirectory(t *testing.T) {
	api := newMemS3(
		"replica/db/table/part-0000",
		"replica/db/table/dt=1/part-0000",
		"replica/db/table_$folder$",
		"replica/db/table2/part-0000",
		"replica/db/other",
	)
	c := newTestClient(t, api)

	deleted, err := c.Delete(context.Background(), "s3://replica/db/table")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"db/other", "db/table2/part-0000"}, api.keys("replica"))
}

func TestClient_DeleteTrailingSlash(t *testing.T) {
	api := newMemS3("replica/db/table/part-0000")
	c := newTestClient(t, api)

	deleted, err := c.Delete(context.Background(), "s3a://replica/db/table/")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, api.keys("replica"))
}

func TestClient_DeleteNothing(t *testing.T) {
	api := newMemS3("replica/db/other/part-0000")
	c := newTestClient(t, api)

	deleted, err := c.Delete(context.Background(), "s3://replica/db/table")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Empty(t, api.batches)
}

func TestClient_DeleteBatches(t *testing.T) {
	keys := make([]string, 0, 2500)
	for i := range 2500 {
		keys = append(keys, fmt.Sprintf("replica/db/table/part-%05d", i))
	}
	api := newMemS3(keys...)
	api.pageSize = 700
	c := newTestClient(t, api)

	deleted, err := c.Delete(context.Background(), "s3://replica/db/table")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []int{1000, 1000, 500}, api.batches)
	assert.Empty(t, api.keys("replica"))
}

func TestClient_DeleteBucketRootUnsupported(t *testing.T) {
	api := newMemS3("replica/db/table/part-0000")
	c := newTestClient(t, api)

	for _, loc := range []string{"s3://replica", "s3://replica/"} {
		_, err := c.Delete(context.Background(), loc)
		require.Error(t, err)
		assert.True(t, datamove.IsUnsupported(err), loc)
	}
	assert.Len(t, api.keys("replica"), 1)
}

func TestClient_DeleteNonS3Unsupported(t *testing.T) {
	c := newTestClient(t, newMemS3())

	_, err := c.Delete(context.Background(), "hdfs://nn/warehouse/t")
	assert.ErrorIs(t, err, datamove.ErrUnsupportedOperation)
}

func TestClient_DeleteIOErrors(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		api := newMemS3("replica/t/a")
		api.listErr = errors.New("SlowDown")
		_, err := newTestClient(t, api).Delete(context.Background(), "s3://replica/t")
		require.Error(t, err)
		assert.False(t, datamove.IsUnsupported(err))
	})

	t.Run("delete", func(t *testing.T) {
		api := newMemS3("replica/t/a")
		api.deleteErr = errors.New("InternalError")
		_, err := newTestClient(t, api).Delete(context.Background(), "s3://replica/t")
		require.Error(t, err)
		assert.False(t, datamove.IsUnsupported(err))
	})

	t.Run("partial", func(t *testing.T) {
		api := newMemS3("replica/t/a", "replica/t/b")
		api.partial = true
		_, err := newTestClient(t, api).Delete(context.Background(), "s3://replica/t")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AccessDenied")
	})
}

func TestFactories_SupportsSchemes(t *testing.T) {
	clients := awsclient.NewClientFactory(awsclient.ClientFactoryConfig{})
	s3s3 := NewS3ToS3Factory(clients, zerolog.Nop())
	fallback := NewHadoopToS3Factory(clients, zerolog.Nop())

	tests := []struct {
		src, rep     string
		s3s3, hadoop bool
	}{
		{"s3", "s3", true, false},
		{"s3a", "s3n", true, false},
		{"hdfs", "s3", false, true},
		{"", "s3a", false, true},
		{"gs", "s3", false, true},
		{"s3", "hdfs", false, false},
		{"hdfs", "hdfs", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.src+"->"+tt.rep, func(t *testing.T) {
			assert.Equal(t, tt.s3s3, s3s3.SupportsSchemes(tt.src, tt.rep))
			assert.Equal(t, tt.hadoop, fallback.SupportsSchemes(tt.src, tt.rep))
		})
	}
	assert.Equal(t, S3ToS3Name, s3s3.Name())
	assert.Equal(t, HadoopToS3Name, fallback.Name())
}

func TestFactories_NewInstance(t *testing.T) {
	api := newMemS3("replica/db/t/part-0")
	api.location = aws.String("eu-west-1")
	var regions []string
	clients := awsclient.NewClientFactory(awsclient.ClientFactoryConfig{
		Logger: zerolog.New(zerolog.NewTestWriter(t)),
		NewClient: func(cfg *aws.Config) (s3iface.S3API, error) {
			regions = append(regions, aws.StringValue(cfg.Region))
			return api, nil
		},
	})

	client, err := NewS3ToS3Factory(clients, zerolog.Nop()).NewInstance(context.Background(), "s3://replica/db/t", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, regions)

	deleted, err := client.Delete(context.Background(), "s3://replica/db/t")
	require.NoError(t, err)
	assert.True(t, deleted)

	regions = nil
	_, err = NewHadoopToS3Factory(clients, zerolog.Nop()).NewInstance(context.Background(), "s3://replica/db/t", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, regions)
}

func TestHadoopToS3Factory_BindsToBucketRegion(t *testing.T) {
	api := newMemS3("bucket-in-eu-central-1/warehouse/events/part-0")
	api.location = aws.String("eu-central-1")
	var configs []*aws.Config
	clients := awsclient.NewClientFactory(awsclient.ClientFactoryConfig{
		Logger: zerolog.New(zerolog.NewTestWriter(t)),
		NewClient: func(cfg *aws.Config) (s3iface.S3API, error) {
			configs = append(configs, cfg)
			return api, nil
		},
	})

	factory := NewHadoopToS3Factory(clients, zerolog.Nop())
	require.True(t, factory.SupportsSchemes("hdfs", "s3"))

	client, err := factory.NewInstance(context.Background(), "s3://bucket-in-eu-central-1/warehouse/events",
		map[string]any{"s3_endpoint_uri_eu-central-1": "https://s3.eu-central-1.example.com"})
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "us-east-1", aws.StringValue(configs[0].Region))
	assert.Equal(t, "eu-central-1", aws.StringValue(configs[1].Region))
	assert.Equal(t, "https://s3.eu-central-1.example.com", aws.StringValue(configs[1].Endpoint))

	deleted, err := client.Delete(context.Background(), "s3://bucket-in-eu-central-1/warehouse/events")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestFactories_NewInstanceBadOptions(t *testing.T) {
	clients := awsclient.NewClientFactory(awsclient.ClientFactoryConfig{})
	_, err := NewS3ToS3Factory(clients, zerolog.Nop()).NewInstance(context.Background(), "s3://b/t",
		map[string]any{awsclient.OptionMaxConnections: "lots"})
	assert.Error(t, err)
}
