package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"gasflow/config"
	"gasflow/logger"
	"gasflow/pipeline"
	"gasflow/reader"
	"gasflow/reader/entsoe"
	"gasflow/reader/entsog"
	"gasflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	assetName := flag.String("asset", "", "Asset to materialize")
	partition := flag.String("partition", "", "Partition key (YYYY-MM or the asset's static key); defaults to the latest partition")
	list := flag.Bool("list", false, "List assets and exit")
	dryRun := flag.Bool("dry-run", false, "Log the output instead of writing it to storage")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	registry, err := pipeline.DefaultRegistry(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to build asset registry")
		os.Exit(1)
	}

	if *list {
		printAssets(os.Stdout, registry)
		return
	}
	if *assetName == "" {
		fmt.Fprintln(os.Stderr, "-asset is required (see -list)")
		flag.Usage()
		os.Exit(2)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Gasflow.Name,
		"version": cfg.Gasflow.Version,
		"env":     config.AppEnvironment(),
		"asset":   *assetName,
		"dry_run": *dryRun,
	}).Info("starting gasflow")

	if err := run(cfg, registry, *assetName, *partition, *dryRun); err != nil {
		log.WithError(err).Error("run failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, registry *pipeline.Registry, assetName, partition string, dryRun bool) error {
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.CloudWatch.Enabled {
		cw := cfg.Metrics.CloudWatch
		logger.InitCloudWatch(ctx, cw.Region, cw.Namespace, cw.Dashboard)
	}

	asset, ok := registry.Get(assetName)
	if !ok {
		return fmt.Errorf("%w: %s", pipeline.ErrUnknownAsset, assetName)
	}
	if partition == "" {
		keys := asset.Partitions.Keys(time.Now())
		if len(keys) == 0 {
			return fmt.Errorf("%s has no partitions yet", assetName)
		}
		partition = keys[len(keys)-1]
		log.WithComponent("main").WithField("partition", partition).Info("no partition given; using the latest")
	}

	emitter, closeStorage, err := buildEmitter(ctx, cfg, dryRun)
	if err != nil {
		return err
	}
	defer closeStorage()

	httpClient := reader.NewHTTPClient(cfg.HTTP.Timeout, cfg.HTTP.UserAgent)
	sources := &pipeline.Sources{
		HTTP:   httpClient,
		Entsog: entsog.NewClient(cfg.Entsog.BaseURL, httpClient, reader.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)),
		Entsoe: entsoe.NewClient(cfg.Entsoe.BaseURL, cfg.Entsoe.APIKeyEnv, httpClient, reader.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)),
	}

	runner := pipeline.NewRunner(cfg, registry, sources, emitter, log)
	if _, err := runner.Run(ctx, assetName, partition); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.WithComponent("main").Info("run interrupted")
		}
		return err
	}
	return nil
}

// buildEmitter wires the enabled storage backends. The returned func
// releases their connections.
func buildEmitter(ctx context.Context, cfg *config.Config, dryRun bool) (writer.Emitter, func(), error) {
	if dryRun {
		return writer.NewLogEmitter(logger.GetLogger()), func() {}, nil
	}

	var (
		emitters writer.Multi
		closers  []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Storage.Postgres.Enabled {
		pool, err := writer.Connect(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		emitters = append(emitters, writer.NewPostgresEmitter(pool, cfg.Storage.Postgres.Schema))
	}

	if cfg.Storage.S3.Enabled {
		client, err := writer.NewS3Client(ctx, cfg.Storage.S3)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("create S3 client: %w", err)
		}
		emitters = append(emitters, writer.NewS3Emitter(client, cfg))
	}

	if cfg.Storage.Local.Enabled {
		emitters = append(emitters, writer.NewLocalEmitter(cfg))
	}

	if len(emitters) == 0 {
		return nil, nil, errors.New("no storage enabled; enable storage.postgres, storage.s3 or storage.local, or use -dry-run")
	}
	return emitters, closeAll, nil
}

func printAssets(w io.Writer, registry *pipeline.Registry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tGROUP\tPARTITIONS\tDESCRIPTION")
	for _, a := range registry.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Name, a.Group, a.Partitions.Describe(), a.Description)
	}
	tw.Flush()
}
