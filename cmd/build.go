package cmd

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/simpletile-go/internal/build"
	"github.com/wegman-software/simpletile-go/internal/config"
	"github.com/wegman-software/simpletile-go/internal/filter"
	"github.com/wegman-software/simpletile-go/internal/logger"
	"github.com/wegman-software/simpletile-go/internal/nodeindex"
	"github.com/wegman-software/simpletile-go/internal/osmread"
	"github.com/wegman-software/simpletile-go/internal/proj"
)

var buildCmd = &cobra.Command{
	Use:   "build <input.osm.pbf> <map.bin>",
	Short: "Build a map file from an OSM extract",
	Long: `Read an OSM PBF or XML file and write its highways into a tiled map file.

This command:
  1. Indexes all node locations (in memory or in a memory-mapped file)
  2. Selects ways with the tag filter or a Lua accept(tags) script
  3. Lays a grid of square tiles over the extent of the selected ways
  4. Cuts every way into the tiles it touches and writes the map file

Without --filter or --filter-script every way with a highway tag is kept.`,
	Args: cobra.ExactArgs(2),
	Run:  runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	defaults := config.DefaultConfig()
	flags := buildCmd.Flags()

	flags.Int64("tile-size", defaults.TileSize, "Tile edge length in Mercator meters")
	flags.String("filter", "", "YAML tag rules (include, exclude, require_any)")
	flags.String("filter-script", "", "Lua script defining accept(tags)")
	flags.String("node-index", defaults.NodeIndex, "Node index: memory or mmap")
	flags.String("node-index-path", defaults.NodeIndexPath, "File backing the mmap node index")
	flags.Int64("node-index-capacity", defaults.NodeIndexCapacity, "Highest node id the mmap index can hold")

	bindFlags(flags, "tile-size", "filter", "filter-script", "node-index", "node-index-path", "node-index-capacity")
}

func runBuild(cmd *cobra.Command, args []string) {
	input, output := args[0], args[1]
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	log.Info("Starting map build",
		zap.String("input", input),
		zap.String("format", osmread.Format(input)),
		zap.String("output", output),
		zap.Int64("tile_size", cfg.TileSize),
		zap.String("node_index", cfg.NodeIndex),
		zap.Int("workers", cfg.Workers),
	)

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()

	index, err := openNodeIndex()
	if err != nil {
		exitWithError("failed to create node index", err)
	}

	matcher, closeMatcher, err := openMatcher()
	if err != nil {
		exitWithError("failed to load filter", err)
	}
	defer closeMatcher()

	var accepted atomic.Int64
	stopMetrics := startMetrics(func() []zap.Field {
		return []zap.Field{
			zap.Int64("nodes", index.Len()),
			zap.Int64("ways", accepted.Load()),
		}
	})

	ways, stats, err := readWays(ctx, input, index, matcher, &accepted)
	releaseNodeIndex(index)
	if err != nil {
		stopMetrics()
		exitWithError("reading OSM input failed", err)
	}

	builder := &build.Builder{TileSize: cfg.TileSize, Workers: cfg.Workers}
	res, err := builder.Build(ctx, ways, uint64(stats.WaysScanned))
	stopMetrics()
	if err != nil {
		exitWithError("build failed", err)
	}

	if err := res.WriteFile(output); err != nil {
		exitWithError("failed to write map file", err)
	}

	log.Info("Build complete",
		elapsedSince(start),
		zap.Int64("nodes", stats.Nodes),
		zap.Int64("ways_scanned", stats.WaysScanned),
		zap.Int64("ways_accepted", stats.WaysAccepted),
		zap.Int64("ways_missing_nodes", stats.WaysMissingNodes),
		zap.Int64("ways_too_short", stats.WaysTooShort),
		zap.Int64("tiles", res.Stats.Tiles),
		zap.Int64("filled_tiles", res.Stats.FilledTiles),
		zap.Int64("points", res.Stats.Points),
		zap.Uint64("max_tile_nodes", res.Header.MaxTileNodes),
	)
}

func readWays(ctx context.Context, input string, index nodeindex.Index, matcher filter.Matcher, accepted *atomic.Int64) ([][]proj.Point, *osmread.Stats, error) {
	reader := &osmread.Reader{
		Path:    input,
		Index:   index,
		Matcher: matcher,
		Workers: cfg.Workers,
	}

	var ways [][]proj.Point
	stats, err := reader.Read(ctx, func(w osmread.Way) error {
		ways = append(ways, w.Points)
		accepted.Add(1)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ways, stats, nil
}

func openNodeIndex() (nodeindex.Index, error) {
	if cfg.NodeIndex == config.NodeIndexMmap {
		m, err := nodeindex.NewMmapIndex(cfg.NodeIndexPath, cfg.NodeIndexCapacity)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nodeindex.NewMemIndex(), nil
}

// releaseNodeIndex frees the index once all ways are resolved.
// The mmap index file is deleted.
func releaseNodeIndex(index nodeindex.Index) {
	var err error
	if m, ok := index.(*nodeindex.MmapIndex); ok {
		err = m.Remove()
	} else {
		err = index.Close()
	}
	if err != nil {
		logger.Get().Warn("Failed to release node index", zap.Error(err))
	}
}

func openMatcher() (filter.Matcher, func(), error) {
	switch {
	case cfg.FilterScript != "":
		f, err := filter.NewLuaFilterFile(cfg.FilterScript)
		if err != nil {
			return nil, nil, err
		}
		return f, func() {
			if n := f.Errors(); n > 0 {
				logger.Get().Warn("Filter script failed on some ways", zap.Int("failures", n))
			}
			f.Close()
		}, nil
	case cfg.FilterFile != "":
		rules, err := filter.LoadRules(cfg.FilterFile)
		if err != nil {
			return nil, nil, err
		}
		return filter.NewTagFilter(rules), func() {}, nil
	default:
		return filter.NewTagFilter(filter.DefaultRules()), func() {}, nil
	}
}
