package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hivesync/hivesync/internal/awsclient"
	"github.com/hivesync/hivesync/internal/catalog"
	"github.com/hivesync/hivesync/internal/catalog/glue"
	"github.com/hivesync/hivesync/internal/config"
	"github.com/hivesync/hivesync/internal/datamove"
	"github.com/hivesync/hivesync/internal/datamove/awss3"
	"github.com/hivesync/hivesync/internal/datamove/gcs"
	"github.com/hivesync/hivesync/internal/datamove/hdfs"
	"github.com/hivesync/hivesync/internal/event"
	"github.com/hivesync/hivesync/internal/logging/audit"
	"github.com/hivesync/hivesync/internal/metrics"
	"github.com/hivesync/hivesync/internal/replica"
	"github.com/hivesync/hivesync/internal/transform"
)

// app holds the components a command runs against.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.ReplicaMetrics

	catalog catalog.Client
	clients *awsclient.ClientFactory
	router  *datamove.Router
	drops   *replica.DropTableService
	params  *transform.TableParameters
	events  *event.Dispatcher

	closers []io.Closer
}

// newApp wires every component from cfg. No network calls are made here.
func newApp(cfg *config.Config, logger zerolog.Logger, registry prometheus.Registerer) (*app, error) {
	m := metrics.NewReplicaMetrics(registry)

	chain := awsclient.NewChainBuilder(awsclient.ChainBuilderConfig{
		SecretStore:        cfg.Security.CredentialProvider,
		SecretStoreProfile: cfg.Security.CredentialProfile,
		Base:               aws.NewConfig().WithRegion(cfg.ReplicaCatalog.Region),
		Logger:             logger,
	})
	clients := awsclient.NewClientFactory(awsclient.ClientFactoryConfig{
		Credentials: chain,
		Logger:      logger,
		Metrics:     m,
	})

	cat, err := newGlueCatalog(cfg, chain, logger)
	if err != nil {
		return nil, err
	}

	router, err := newRouter(cfg, clients, logger, m)
	if err != nil {
		return nil, err
	}

	auditLog, auditFile, err := newAuditLogger(cfg, logger)
	if err != nil {
		return nil, err
	}
	var closers []io.Closer
	if auditFile != nil {
		closers = append(closers, auditFile)
	}

	params := transform.New(transform.Config{
		TransformOptions: cfg.TransformOptions,
		Logger:           logger,
		Metrics:          m,
		Audit:            auditLog,
	})

	events := &event.Dispatcher{}
	events.Register(logHandlers(logger))

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		catalog: cat,
		clients: clients,
		router:  router,
		drops: replica.NewDropTableService(replica.Config{
			Workers:          cfg.Teardown.Workers,
			DeletesPerSecond: cfg.Teardown.DeletesPerSecond,
			Logger:           logger,
			Metrics:          m,
			Audit:            auditLog,
		}),
		params:  params,
		events:  events,
		closers: closers,
	}, nil
}

// Close releases files opened by newApp.
func (a *app) Close() error {
	return closeAll(a.closers)
}

// newAuditLogger writes audit entries to logging.audit_file, or to the main
// log when it is unset.
func newAuditLogger(cfg *config.Config, logger zerolog.Logger) (*audit.Logger, *os.File, error) {
	if cfg.Logging.AuditFile == "" {
		return audit.NewLogger(logger), nil, nil
	}
	f, err := os.OpenFile(cfg.Logging.AuditFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit file: %w", err)
	}
	fileLogger := zerolog.New(zerolog.SyncWriter(f)).With().Timestamp().Logger()
	return audit.NewLogger(fileLogger), f, nil
}

func closeAll(closers []io.Closer) error {
	var firstErr error
	for _, c := range closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newGlueCatalog(cfg *config.Config, chain *awsclient.ChainBuilder, logger zerolog.Logger) (*glue.Client, error) {
	creds, err := chain.Build(awsclient.Options{})
	if err != nil {
		return nil, err
	}
	sdk := aws.NewConfig().
		WithRegion(cfg.ReplicaCatalog.Region).
		WithCredentials(creds)
	if cfg.ReplicaCatalog.Endpoint != "" {
		sdk.WithEndpoint(cfg.ReplicaCatalog.Endpoint)
	}
	sess, err := session.NewSession(sdk)
	if err != nil {
		return nil, fmt.Errorf("create catalog session: %w", err)
	}
	return glue.New(sess, glue.Config{CatalogID: cfg.ReplicaCatalog.CatalogID, Logger: logger}), nil
}

// newRouter registers the data client factories in precedence order:
// s3-s3, gcs, hdfs (when configured), then the hadoop-s3 fallback.
func newRouter(cfg *config.Config, clients *awsclient.ClientFactory, logger zerolog.Logger, m *metrics.ReplicaMetrics) (*datamove.Router, error) {
	timeout, err := cfg.ConstructTimeout()
	if err != nil {
		return nil, err
	}

	factories := []datamove.Factory{
		awss3.NewS3ToS3Factory(clients, logger),
		gcs.NewFactory(gcs.Config{CredentialsFile: cfg.Security.GCPCredentialsFile, Logger: logger}),
	}
	if cfg.WebHDFS.NameNodeURL != "" {
		hdfsClient, err := hdfs.NewClient(hdfs.Config{
			NameNodeURL: cfg.WebHDFS.NameNodeURL,
			User:        cfg.WebHDFS.User,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		factories = append(factories, hdfs.NewFactory(hdfsClient))
	}

	return datamove.NewRouter(datamove.RouterConfig{
		Factories:        factories,
		Fallback:         awss3.NewHadoopToS3Factory(clients, logger),
		ConstructTimeout: timeout,
		Logger:           logger,
		Metrics:          m,
	})
}

func logHandlers(logger zerolog.Logger) event.Handlers {
	return event.Handlers{
		OnStart: func(e event.Start) {
			logger.Info().Str("replication", e.ReplicationID).Str("event_id", e.EventID).Msg("Replication started")
		},
		OnSuccess: func(e event.Success) {
			logger.Info().Str("replication", e.ReplicationID).Str("event_id", e.EventID).Msg("Replication succeeded")
		},
		OnFailure: func(e event.Failure) {
			logger.Error().Err(e.Err).Str("replication", e.ReplicationID).Str("event_id", e.EventID).Msg("Replication failed")
		},
	}
}
