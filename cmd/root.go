package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wegman-software/simpletile-go/internal/config"
	"github.com/wegman-software/simpletile-go/internal/logger"
	"github.com/wegman-software/simpletile-go/internal/metrics"
)

var (
	cfg     = config.DefaultConfig()
	cfgFile string

	// closed after the command finishes or on exitWithError
	closers []io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "simpletile",
	Short: "Build and query tiled road maps",
	Long: `simpletile cuts the highways of an OSM extract into square Web Mercator
tiles and stores them in a single binary map file.

The map file can then be queried by bounding box without loading it:
  - build   OSM PBF/XML -> map file
  - info    header and grid of a map file
  - tile    dump one tile or a block of tiles
  - locate  tile id of a WGS84 position
  - query   ways touching a box as GeoJSON
  - export  ways to Parquet or PostGIS`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load(viper.GetViper())

		// Initialize logger with optional file output
		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbose, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbose)
		}
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Get().Debug("Using config file", zap.String("path", used))
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeAll()
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is ./simpletile.yaml)")
	flags.BoolP("verbose", "v", false, "Enable verbose output")
	flags.IntP("workers", "j", defaults.Workers, "Number of parallel workers")
	flags.Bool("mmap", false, "Memory-map map files instead of reading per tile")
	flags.String("srid", strconv.Itoa(defaults.Projection), "Output projection for exported geometries (4326, 3857, EPSG:4326, EPSG:3857)")

	// Logging and metrics flags
	flags.String("log-file", "", "Path to log file for persistent logging (JSON format)")
	flags.Duration("metrics-interval", defaults.MetricsInterval, "Interval for system metrics logging (e.g., 10s, 1m)")

	// Database flags (persistent so they're available to all subcommands)
	flags.String("db-host", defaults.DBHost, "PostgreSQL host")
	flags.Int("db-port", defaults.DBPort, "PostgreSQL port")
	flags.StringP("db-name", "d", defaults.DBName, "PostgreSQL database name")
	flags.StringP("db-user", "U", defaults.DBUser, "PostgreSQL user")
	flags.StringP("db-password", "W", defaults.DBPassword, "PostgreSQL password")
	flags.String("db-schema", defaults.DBSchema, "PostgreSQL schema")
	flags.String("db-table", defaults.DBTable, "PostgreSQL table for exported ways")

	bindFlags(flags, "verbose", "workers", "mmap", "srid", "log-file", "metrics-interval",
		"db-host", "db-port", "db-name", "db-user", "db-password", "db-schema", "db-table")
}

// bindFlags binds the named flags to viper keys of the same name
func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("simpletile")
	}

	viper.SetEnvPrefix("SIMPLETILE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// a missing default config file is fine, an explicit one must exist
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "failed to read config:", err)
			os.Exit(1)
		}
	}
}

// startMetrics logs resource usage until the returned stop function is called
func startMetrics(progress func() []zap.Field) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	c := metrics.NewCollector(cfg.MetricsInterval, logger.Named("metrics"))
	if progress != nil {
		c.WithProgress(progress)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Get().Info("Received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	closeAll()
	logger.Sync()
	os.Exit(1)
}

// closeOnExit registers c to be closed when the command ends
func closeOnExit(c io.Closer) {
	closers = append(closers, c)
}

// closeAll closes registered resources in reverse order
func closeAll() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Get().Warn("Close failed", zap.Error(err))
		}
	}
	closers = nil
}

func elapsedSince(start time.Time) zap.Field {
	return zap.Duration("duration", time.Since(start).Round(time.Millisecond))
}
