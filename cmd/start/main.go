package start

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tracelake/tracelake/ingester"
	"github.com/tracelake/tracelake/memtable"
	"github.com/tracelake/tracelake/metacache"
	"github.com/tracelake/tracelake/metrics"
	"github.com/tracelake/tracelake/schema"
	"github.com/tracelake/tracelake/uploader"
	"github.com/tracelake/tracelake/utils"
	"github.com/tracelake/tracelake/utils/log"
)

const (
	usage                 = "start"
	short                 = "Start a tracelake ingester"
	long                  = "This command starts a tracelake ingestion node"
	example               = "tracelake start --config <path>"
	defaultConfigFilePath = "./tracelake.yml"
	configDesc            = "set the path for the tracelake YAML configuration file"

	diskUsageMonitorInterval = 10 * time.Minute
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"boot", "up"},
		Example:    example,
		RunE:       executeStart,
	}
	// configFilePath set flag for a path to the config file.
	configFilePath string
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&configFilePath, "config", "c", defaultConfigFilePath, configDesc)
}

// executeStart implements the start command.
func executeStart(cmd *cobra.Command, _ []string) error {
	globalCtx, globalCancel := context.WithCancel(context.Background())
	defer globalCancel()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	// Don't output command usage if args are correct
	cmd.SilenceUsage = true

	log.Info("using %v for configuration", configFilePath)

	config, err := utils.ParseConfig(data)
	if err != nil {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}

	log.Info("initializing tracelake ingester...")
	start := time.Now()

	registry := schema.NewMemRegistry(config.BloomFilterDefaultFields)
	cache := metacache.New(config.MetaCacheCapacity, metacache.StrategyByName(config.MetaCacheEviction))
	persistCfg := ingester.PersistConfigFrom(config)

	// Repair interrupted flushes before anything else touches the output
	// tree, then drain unconsumed segments. Both must finish before the
	// front end accepts writes.
	if err := memtable.Recover(config.WALRootDirectory); err != nil {
		return fmt.Errorf("wal recovery: %w", err)
	}
	if err := memtable.ReplayAll(registry, cache, persistCfg); err != nil {
		return fmt.Errorf("wal replay: %w", err)
	}

	ing := ingester.New(config, registry, cache)

	go metrics.StartDiskUsageMonitor(metrics.TotalDiskUsageBytes, config.WALRootDirectory, diskUsageMonitorInterval)

	if config.Uploader.Enabled {
		up, err := uploader.NewMinioUploader(config.Uploader)
		if err != nil {
			return fmt.Errorf("init uploader: %w", err)
		}
		scanner := uploader.NewScanner(config.WALRootDirectory, up, cache,
			config.Uploader.Interval, config.Uploader.Concurrency)
		go scanner.Run(globalCtx)
		log.Info("initialized object-store uploader for bucket %s", config.Uploader.Bucket)
	}

	startupTime := time.Since(start)
	metrics.StartupTime.Set(startupTime.Seconds())
	log.Info("startup time: %s", startupTime)

	http.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              ":" + config.ListenPort,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server: %v", err)
		}
	}()

	sigChannel := make(chan os.Signal, 1)
	signal.Notify(sigChannel, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChannel
	log.Info("initiating graceful shutdown due to %v", sig)

	ing.Close()
	globalCancel()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error("metrics server shutdown: %v", err)
	}
	log.Sync()
	return nil
}
