package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/logentries/s3archiver/internal/archiver"
	"github.com/logentries/s3archiver/internal/config"
	"github.com/logentries/s3archiver/internal/logger"
	"github.com/logentries/s3archiver/internal/objectstore"
	"github.com/logentries/s3archiver/internal/statusapi"
)

var (
	configPath = flag.String("config", "", "Path to configuration file")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *logLevel != "" {
		cfg.Logger.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := setupLogger(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"base_dir":    cfg.Archiver.BaseDir,
		"s3_enabled":  cfg.S3.IsEnabled(),
		"s3_bucket":   cfg.S3.BucketName,
		"status_addr": cfg.Status.Addr,
	}).Info("starting archiving agent")

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	staging := archiver.NewStagingStore(cfg.Archiver.BaseDir, hostname)

	client, err := objectstore.NewHTTPClient(
		objectstore.Credentials{
			AccountID:  cfg.S3.AccountID,
			SecretKey:  cfg.S3.SecretKey,
			BucketName: cfg.S3.BucketName,
			Endpoint:   cfg.S3.Endpoint,
		},
		objectstore.TLSConfig{
			CAFile:             cfg.S3.CAFile,
			ClientCertFile:     cfg.S3.ClientCertFile,
			ClientKeyFile:      cfg.S3.ClientKeyFile,
			InsecureSkipVerify: cfg.S3.InsecureSkipVerify,
		},
		30*time.Second,
		cfg.S3.IsEnabled(),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to construct object store client")
	}

	compression := archiver.NewCompressionStage(log)
	upload := archiver.NewUploadStage(log, client, cfg.Archiver.UploadIdleTimeout.ToDuration())

	backend := archiver.NewBackend(archiver.Options{
		BaseDir:           cfg.Archiver.BaseDir,
		Hostname:          hostname,
		NoLogsRotation:    cfg.Archiver.NoLogsRotation,
		NoTimestamps:      cfg.Archiver.NoTimestamps,
		NoLogsCompressing: cfg.Archiver.NoLogsCompressing,
		DieOnErrors:       cfg.Archiver.DieOnErrors,
	}, staging, compression, upload, log)

	compression.Start()
	upload.Start()
	if err := backend.Start(); err != nil {
		log.WithError(err).Fatal("failed to start archiving backend")
	}

	var status *statusapi.Server
	if cfg.Status.Enabled {
		status = statusapi.NewServer(cfg.Status.Addr, func() statusapi.Snapshot {
			depth, capacity, logs := backend.Snapshot()
			snap := statusapi.Snapshot{
				QueueDepth:         depth,
				QueueCapacity:      capacity,
				CompressionPending: compression.Pending(),
				UploadPending:      upload.Pending(),
				Logs:               make(map[string]statusapi.Log, len(logs)),
			}
			for name, s := range logs {
				snap.Logs[name] = statusapi.Log{
					StagingPath: s.StagingPath,
					Token:       s.Token,
					Size:        s.Size,
					FirstMsgTS:  s.FirstMsgTS,
				}
			}
			return snap
		}, log)

		go func() {
			if err := status.ListenAndServe(); err != nil {
				log.WithError(err).Warn("status server stopped")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.WithField("signal", sig).Info("received shutdown signal")

	if status != nil {
		status.Shutdown()
	}
	backend.Shutdown()
	compression.Stop()
	upload.Stop()

	log.Info("archiving agent stopped")
	log.Close()
}

func setupLogger(cfg *logger.Config) (logger.Logger, error) {
	factory, err := logger.NewFactory(cfg)
	if err != nil {
		return nil, err
	}
	return factory.Create("archiver")
}
