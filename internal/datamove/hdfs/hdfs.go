// Package hdfs deletes replica data on HDFS through the WebHDFS REST API.
package hdfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivesync/hivesync/internal/datamove"
)

// FactoryName identifies the HDFS factory.
const FactoryName = "hdfs"

const (
	defaultUser    = "hdfs"
	defaultTimeout = 30 * time.Second
	opDelete       = "DELETE"
)

// Config configures WebHDFS access.
type Config struct {
	// NameNodeURL is the WebHDFS base URL, e.g. http://namenode:9870.
	NameNodeURL string
	// User is sent as user.name (default: hdfs).
	User string

	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client deletes HDFS paths.
type Client struct {
	base       *url.URL
	user       string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a WebHDFS client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.NameNodeURL == "" {
		return nil, errors.New("webhdfs namenode url is required")
	}
	base, err := url.Parse(cfg.NameNodeURL)
	if err != nil {
		return nil, fmt.Errorf("parse namenode url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("namenode url %q must be http or https", cfg.NameNodeURL)
	}

	c := &Client{
		base:       base,
		user:       cfg.User,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger.With().Str("component", "webhdfs").Logger(),
	}
	if c.user == "" {
		c.user = defaultUser
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return c, nil
}

type booleanResponse struct {
	Boolean bool `json:"boolean"`
}

type remoteExceptionResponse struct {
	RemoteException struct {
		Exception string `json:"exception"`
		Message   string `json:"message"`
	} `json:"RemoteException"`
}

// Delete recursively removes the path of location. A path that does not
// exist reports false.
func (c *Client) Delete(ctx context.Context, location string) (bool, error) {
	path, err := hdfsPath(location)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.buildURL(path, opDelete, map[string]string{"recursive": "true"}), nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("webhdfs delete %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("webhdfs delete %s: %s", path, remoteError(resp))
	}

	var result booleanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode webhdfs delete response: %w", err)
	}

	c.logger.Debug().Str("path", path).Bool("deleted", result.Boolean).Msg("Deleted replica data")
	return result.Boolean, nil
}

func (c *Client) buildURL(path, op string, params map[string]string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/webhdfs/v1" + path

	q := url.Values{}
	q.Set("op", op)
	q.Set("user.name", c.user)
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// hdfsPath extracts the absolute filesystem path of location. The path is
// kept as written; Hive escapes partition values into literal file names.
func hdfsPath(location string) (string, error) {
	path := location
	if scheme, rest, ok := strings.Cut(location, "://"); ok {
		switch strings.ToLower(scheme) {
		case "hdfs", "webhdfs", "viewfs":
		default:
			return "", fmt.Errorf("%w: %s is not an hdfs location", datamove.ErrUnsupportedOperation, location)
		}
		i := strings.Index(rest, "/")
		if i < 0 {
			rest = "/"
		} else {
			rest = rest[i:]
		}
		path = rest
	}

	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%w: %s is not an absolute path", datamove.ErrUnsupportedOperation, location)
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "", fmt.Errorf("%w: refusing to delete filesystem root %s", datamove.ErrUnsupportedOperation, location)
	}
	return path, nil
}

func remoteError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var re remoteExceptionResponse
	if err := json.Unmarshal(body, &re); err == nil && re.RemoteException.Exception != "" {
		return fmt.Sprintf("%d %s: %s", resp.StatusCode, re.RemoteException.Exception, re.RemoteException.Message)
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// Factory serves replication between non-cloud filesystems.
type Factory struct {
	client *Client
}

// NewFactory returns a factory handing out client.
func NewFactory(client *Client) *Factory {
	return &Factory{client: client}
}

func (f *Factory) Name() string { return FactoryName }

func (f *Factory) SupportsSchemes(sourceScheme, replicaScheme string) bool {
	return !datamove.IsCloudScheme(sourceScheme) && !datamove.IsCloudScheme(replicaScheme)
}

func (f *Factory) NewInstance(context.Context, string, map[string]any) (datamove.Client, error) {
	return f.client, nil
}

var _ datamove.Factory = (*Factory)(nil)
