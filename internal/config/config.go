// Package config handles configuration loading and validation for hivesync.
package config

import (
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/hivesync/hivesync/internal/awsclient"
	"github.com/hivesync/hivesync/internal/transform"
)

// CatalogTypeGlue selects the AWS Glue Data Catalog.
const CatalogTypeGlue = "glue"

// SecurityConfig holds credential settings.
type SecurityConfig struct {
	CredentialProvider string `yaml:"credential_provider"` // Shared credentials file used as the secret store
	CredentialProfile  string `yaml:"credential_profile"`  // Profile inside credential_provider (default: "default")
	GCPCredentialsFile string `yaml:"gcp_credentials_file"`
}

// LoggingConfig adds log sinks beside the console.
type LoggingConfig struct {
	LokiURL    string            `yaml:"loki_url"`    // Push run logs to Grafana Loki (optional)
	LokiLabels map[string]string `yaml:"loki_labels"` // Extra stream labels
	AuditFile  string            `yaml:"audit_file"`  // Append audit entries as JSON lines (default: main log)
}

// CatalogConfig selects the replica catalog.
type CatalogConfig struct {
	Type      string `yaml:"type"`       // Only "glue" (default)
	Region    string `yaml:"region"`     // Catalog region (default: us-east-1)
	CatalogID string `yaml:"catalog_id"` // Account id of the catalog (optional)
	Endpoint  string `yaml:"endpoint"`   // Explicit Glue endpoint (optional)
}

// WebHDFSConfig enables deletion of replica data on HDFS.
type WebHDFSConfig struct {
	NameNodeURL string `yaml:"namenode_url"`
	User        string `yaml:"user"` // default: hdfs
}

// TeardownConfig tunes replica teardown.
type TeardownConfig struct {
	Workers          int     `yaml:"workers"`            // Concurrent partition deletions (default: 4)
	DeletesPerSecond float64 `yaml:"deletes_per_second"` // 0 = unlimited
	ConstructTimeout string  `yaml:"construct_timeout"`  // Duration string, e.g. "2m"
}

// SourceTable identifies the source side of a replication.
type SourceTable struct {
	DatabaseName string `yaml:"database_name"`
	TableName    string `yaml:"table_name"`
	Location     string `yaml:"location"`
}

// ReplicaTable identifies the replica side of a replication. Empty names
// default to the source names.
type ReplicaTable struct {
	DatabaseName string `yaml:"database_name"`
	TableName    string `yaml:"table_name"`
}

// TableReplication is one configured replication.
type TableReplication struct {
	SourceTable      SourceTable    `yaml:"source_table"`
	ReplicaTable     ReplicaTable   `yaml:"replica_table"`
	CopierOptions    map[string]any `yaml:"copier_options"`
	TransformOptions map[string]any `yaml:"transform_options"`
}

// Config is the hivesync configuration file.
type Config struct {
	LogLevel          string             `yaml:"log_level"` // trace, debug, info, warn, error (empty keeps the CLI level)
	Logging           LoggingConfig      `yaml:"logging"`
	Security          SecurityConfig     `yaml:"security"`
	ReplicaCatalog    CatalogConfig      `yaml:"replica_catalog"`
	WebHDFS           WebHDFSConfig      `yaml:"webhdfs"`
	Teardown          TeardownConfig     `yaml:"teardown"`
	CopierOptions     map[string]any     `yaml:"copier_options"`
	TransformOptions  map[string]any     `yaml:"transform_options"`
	TableReplications []TableReplication `yaml:"table_replications"`
}

// Load loads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ReplicaCatalog.Type == "" {
		c.ReplicaCatalog.Type = CatalogTypeGlue
	}
	if c.ReplicaCatalog.Region == "" {
		c.ReplicaCatalog.Region = awsclient.USEast1
	}
	if c.Security.CredentialProvider != "" && c.Security.CredentialProfile == "" {
		c.Security.CredentialProfile = "default"
	}
	c.Security.CredentialProvider = expandHome(c.Security.CredentialProvider)
	c.Security.GCPCredentialsFile = expandHome(c.Security.GCPCredentialsFile)
	c.Logging.AuditFile = expandHome(c.Logging.AuditFile)

	if c.WebHDFS.NameNodeURL != "" && c.WebHDFS.User == "" {
		c.WebHDFS.User = "hdfs"
	}

	if c.Teardown.Workers == 0 {
		c.Teardown.Workers = 4
	}
	if c.Teardown.ConstructTimeout == "" {
		c.Teardown.ConstructTimeout = "2m"
	}

	for i := range c.TableReplications {
		r := &c.TableReplications[i]
		if r.ReplicaTable.DatabaseName == "" {
			r.ReplicaTable.DatabaseName = r.SourceTable.DatabaseName
		}
		if r.ReplicaTable.TableName == "" {
			r.ReplicaTable.TableName = r.SourceTable.TableName
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ReplicaCatalog.Type != CatalogTypeGlue {
		return fmt.Errorf("replica_catalog.type %q is not supported", c.ReplicaCatalog.Type)
	}
	if c.ReplicaCatalog.Endpoint != "" {
		if err := validateURL(c.ReplicaCatalog.Endpoint); err != nil {
			return fmt.Errorf("invalid replica_catalog.endpoint: %w", err)
		}
	}
	if c.Logging.LokiURL != "" {
		if err := validateURL(c.Logging.LokiURL); err != nil {
			return fmt.Errorf("invalid logging.loki_url: %w", err)
		}
	}
	if c.WebHDFS.NameNodeURL != "" {
		if err := validateURL(c.WebHDFS.NameNodeURL); err != nil {
			return fmt.Errorf("invalid webhdfs.namenode_url: %w", err)
		}
	}
	if c.Teardown.Workers < 1 {
		return fmt.Errorf("teardown.workers must be at least 1")
	}
	if c.Teardown.DeletesPerSecond < 0 {
		return fmt.Errorf("teardown.deletes_per_second must not be negative")
	}
	if _, err := c.ConstructTimeout(); err != nil {
		return err
	}

	if _, err := awsclient.ParseOptions(c.CopierOptions); err != nil {
		return fmt.Errorf("copier_options: %w", err)
	}
	if err := validateTransformOptions(c.TransformOptions); err != nil {
		return fmt.Errorf("transform_options: %w", err)
	}

	seen := make(map[string]bool, len(c.TableReplications))
	for i, r := range c.TableReplications {
		if r.SourceTable.DatabaseName == "" || r.SourceTable.TableName == "" {
			return fmt.Errorf("table_replications[%d]: source_table database_name and table_name are required", i)
		}
		id := r.ReplicaQualifiedName()
		if seen[id] {
			return fmt.Errorf("table_replications[%d]: replica table %s is configured twice", i, id)
		}
		seen[id] = true
		if _, err := awsclient.ParseOptions(r.MergedCopierOptions(c.CopierOptions)); err != nil {
			return fmt.Errorf("table_replications[%d].copier_options: %w", i, err)
		}
		if err := validateTransformOptions(r.TransformOptions); err != nil {
			return fmt.Errorf("table_replications[%d].transform_options: %w", i, err)
		}
	}
	return nil
}

// ConstructTimeout parses teardown.construct_timeout.
func (c *Config) ConstructTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Teardown.ConstructTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid teardown.construct_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("teardown.construct_timeout must not be negative")
	}
	return d, nil
}

// Replication returns the replication whose replica is db.table.
func (c *Config) Replication(databaseName, tableName string) (TableReplication, bool) {
	for _, r := range c.TableReplications {
		if r.ReplicaTable.DatabaseName == databaseName && r.ReplicaTable.TableName == tableName {
			return r, true
		}
	}
	return TableReplication{}, false
}

// ReplicationID identifies the replication in events and logs.
func (r TableReplication) ReplicationID() string {
	return r.SourceTable.DatabaseName + "." + r.SourceTable.TableName
}

// ReplicaQualifiedName returns "db.table" of the replica.
func (r TableReplication) ReplicaQualifiedName() string {
	return r.ReplicaTable.DatabaseName + "." + r.ReplicaTable.TableName
}

// MergedCopierOptions overlays the replication's copier options on global.
func (r TableReplication) MergedCopierOptions(global map[string]any) map[string]any {
	return merge(global, r.CopierOptions)
}

// MergedTransformOptions overlays the replication's transform options on
// global.
func (r TableReplication) MergedTransformOptions(global map[string]any) map[string]any {
	return merge(global, r.TransformOptions)
}

func merge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	maps.Copy(out, base)
	maps.Copy(out, overlay)
	return out
}

// ApplyLogLevel sets the global zerolog level. It reports whether level was
// recognised and applied.
func ApplyLogLevel(level string) bool {
	if level == "" {
		return false
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return false
	}
	zerolog.SetGlobalLevel(lvl)
	return true
}

func validateTransformOptions(opts map[string]any) error {
	raw, ok := opts[transform.TablePropertiesKey]
	if !ok || raw == nil {
		return nil
	}
	if _, ok := transform.StringMap(raw); !ok {
		return fmt.Errorf("%s must map strings to strings", transform.TablePropertiesKey)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an http or https url", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
