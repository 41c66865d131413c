package cmd

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/simpletile-go/internal/config"
	"github.com/wegman-software/simpletile-go/internal/export"
	"github.com/wegman-software/simpletile-go/internal/logger"
	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/query"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ways of a map file",
	Long: `Export every way of a map file, or of the tiles touching --bbox, to
Parquet or PostGIS. Tiles are read one at a time, so the whole map never
has to fit into memory.

Ways crossing tile borders appear once per tile, keyed by (tile_id, way_id).`,
}

var exportParquetCmd = &cobra.Command{
	Use:   "parquet <map.bin> <out.parquet>",
	Short: "Export ways to a Parquet file with WKB geometries",
	Args:  cobra.ExactArgs(2),
	Run:   runExportParquet,
}

var exportPostGISCmd = &cobra.Command{
	Use:   "postgis <map.bin>",
	Short: "Load ways into a PostGIS table",
	Long: `Load ways into a PostGIS table using COPY.

This command:
  1. Creates the target table (tile_id, way_id, num_points, geom)
  2. Streams all rows through COPY in a single transaction
  3. Optionally creates a GIST index on geom`,
	Args: cobra.ExactArgs(1),
	Run:  runExportPostGIS,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportParquetCmd, exportPostGISCmd)

	defaults := config.DefaultConfig()

	addBBoxFlags(exportParquetCmd)
	exportParquetCmd.Flags().Int("batch-size", defaults.BatchSize, "Rows per Parquet row group")
	bindFlags(exportParquetCmd.Flags(), "batch-size")

	addBBoxFlags(exportPostGISCmd)
	exportPostGISCmd.Flags().Bool("create-indexes", defaults.CreateIndexes, "Create a spatial index after loading")
	exportPostGISCmd.Flags().Bool("drop-existing", defaults.DropExisting, "Drop the table before loading")
	bindFlags(exportPostGISCmd.Flags(), "create-indexes", "drop-existing")
}

// exportTiles returns the tile ids to export: all tiles, or those touching
// the box given on the command line
func exportTiles(cmd *cobra.Command, l *query.Layer) []int64 {
	box, ok, err := bboxFromFlags(cmd)
	if err != nil {
		exitWithError("invalid bbox", err)
	}
	if !ok {
		return export.AllTiles(l.Grid())
	}
	ids, err := l.TilesForBBox(box.LL, box.UR)
	if err != nil {
		exitWithError("invalid bbox", err)
	}
	return ids
}

func runExportParquet(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
	t, err := proj.NewTransformer(cfg.Projection)
	if err != nil {
		exitWithError("invalid projection", err)
	}

	l := openLayer(args[0])
	ids := exportTiles(cmd, l)

	log.Info("Starting Parquet export",
		zap.String("map", args[0]),
		zap.String("output", args[1]),
		zap.Int("tiles", len(ids)),
		zap.Int("srid", cfg.Projection),
	)

	ctx, cancel := signalContext()
	defer cancel()
	start := time.Now()

	w, err := export.NewParquetWriter(args[1], t, cfg.BatchSize)
	if err != nil {
		exitWithError("failed to create Parquet writer", err)
	}

	var tiles atomic.Int64
	stopMetrics := startMetrics(func() []zap.Field {
		return []zap.Field{zap.Int64("tiles", tiles.Load()), zap.Int("of", len(ids))}
	})

	err = walkCounting(ctx, l, ids, &tiles, w.Write)
	stopMetrics()
	if err != nil {
		w.Close()
		exitWithError("export failed", err)
	}
	if err := w.Close(); err != nil {
		exitWithError("failed to finish Parquet file", err)
	}

	log.Info("Export complete",
		elapsedSince(start),
		zap.Int64("rows", w.Written()),
	)
}

func runExportPostGIS(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	l := openLayer(args[0])
	ids := exportTiles(cmd, l)

	log.Info("Starting PostGIS export",
		zap.String("map", args[0]),
		zap.Int("tiles", len(ids)),
		zap.String("database", cfg.DBName),
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("user", cfg.DBUser),
		zap.String("table", export.QualifiedTable(cfg.DBSchema, cfg.DBTable)),
	)

	ctx, cancel := signalContext()
	defer cancel()
	start := time.Now()

	pg, err := export.NewPostGIS(ctx, cfg)
	if err != nil {
		exitWithError("failed to connect", err)
	}
	defer pg.Close()

	if err := pg.Prepare(ctx); err != nil {
		exitWithError("failed to prepare table", err)
	}

	var tiles atomic.Int64
	stopMetrics := startMetrics(func() []zap.Field {
		return []zap.Field{zap.Int64("tiles", tiles.Load()), zap.Int("of", len(ids))}
	})

	rows, err := pg.Load(ctx, func(emit func(export.Row) error) error {
		return walkCounting(ctx, l, ids, &tiles, emit)
	})
	stopMetrics()
	if err != nil {
		exitWithError("load failed", err)
	}

	if cfg.CreateIndexes {
		if err := pg.CreateIndexes(ctx); err != nil {
			exitWithError("failed to create indexes", err)
		}
	}

	elapsed := time.Since(start)
	log.Info("Export complete",
		zap.Duration("duration", elapsed.Round(time.Second)),
		zap.Int64("rows", rows),
		zap.Float64("throughput_rows_s", float64(rows)/elapsed.Seconds()),
	)
}

// walkCounting walks the tiles one by one, counting finished tiles
func walkCounting(ctx context.Context, l *query.Layer, ids []int64, done *atomic.Int64, fn func(export.Row) error) error {
	for _, id := range ids {
		if err := export.Walk(ctx, l, []int64{id}, fn); err != nil {
			return err
		}
		done.Add(1)
	}
	return nil
}
