// Command sweeper runs one orphan sweep against the configured MongoDB and
// object storage, prints the report as JSON and exits. Schedule it from cron
// when the API's background sweep is disabled.
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/postboard/postboard/backend/go-services/internal/config"
	"github.com/postboard/postboard/backend/go-services/internal/database"
	"github.com/postboard/postboard/backend/go-services/internal/post/reconcile"
	"github.com/postboard/postboard/backend/go-services/internal/post/refs"
	"github.com/postboard/postboard/backend/go-services/internal/post/repository"
	"github.com/postboard/postboard/backend/go-services/internal/storage"
	"github.com/postboard/postboard/backend/go-services/internal/sweep"
	"github.com/postboard/postboard/backend/go-services/pkg/logger"
	"github.com/spf13/pflag"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.SetFormat(os.Getenv("LOG_FORMAT"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	dryRun := pflag.Bool("dry-run", cfg.Sweep.DryRun, "report orphans without deleting them")
	minAge := pflag.Duration("min-age", cfg.Sweep.MinAge, "keep unreferenced objects younger than this")
	prefix := pflag.String("prefix", cfg.Sweep.Prefix, "only consider keys under this prefix")
	timeout := pflag.Duration("timeout", 30*time.Minute, "abort the sweep after this long")
	pflag.Parse()

	if cfg.MongoDB.URI == "" || !cfg.StorageConfigured() {
		logger.Fatalf("sweeper needs MONGODB_URI, S3_ENDPOINT and S3_BUCKET")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 3)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	repo := repository.NewMongoRepo(ctx, client.Database(cfg.MongoDB.Database).Collection("posts"))

	store, err := storage.NewMinIOStorage(ctx, &cfg.Storage.S3)
	if err != nil {
		logger.Fatalf("object storage: %v", err)
	}

	norm := refs.NewNormalizer(cfg.Storage.S3.PublicBaseURL())
	s := sweep.New(repo, store, reconcile.New(store, cfg.Storage.DeleteConcurrency), norm, sweep.Options{
		Prefix: *prefix,
		MinAge: *minAge,
	})
	s.SetHistory(sweep.NewMongoHistory(client.Database(cfg.MongoDB.Database).Collection("sweep_runs")))
	rep, err := s.Run(ctx, *dryRun)
	if err != nil {
		logger.Fatalf("sweep failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
	if len(rep.Failed) > 0 {
		os.Exit(1)
	}
}
