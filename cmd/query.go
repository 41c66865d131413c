package cmd

import (
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/simpletile-go/internal/export"
	"github.com/wegman-software/simpletile-go/internal/logger"
	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/query"
)

var queryCmd = &cobra.Command{
	Use:   "query <map.bin>",
	Short: "Write the ways of all tiles touching a box as GeoJSON",
	Long: `Find the tiles touching a box and write their ways as a GeoJSON
feature collection. Each feature carries its tile_id and way_id.

Both corners of the box must lie on the map. Without --refine every way of
every touched tile is written; with --refine only ways whose bounding box
touches the query box.`,
	Args: cobra.ExactArgs(1),
	Run:  runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	addBBoxFlags(queryCmd)
	queryCmd.Flags().Bool("refine", false, "Keep only ways whose bounds touch the box")
	queryCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	queryCmd.Flags().Bool("indent", false, "Indent the GeoJSON output")
}

func runQuery(cmd *cobra.Command, args []string) {
	log := logger.Get()

	box, ok, err := bboxFromFlags(cmd)
	if err != nil {
		exitWithError("invalid bbox", err)
	}
	if !ok {
		exitWithError("one of --bbox or --lonlat-bbox is required", nil)
	}
	refine, _ := cmd.Flags().GetBool("refine")
	outPath, _ := cmd.Flags().GetString("out")
	indent, _ := cmd.Flags().GetBool("indent")

	t, err := proj.NewTransformer(cfg.Projection)
	if err != nil {
		exitWithError("invalid projection", err)
	}

	l := openLayer(args[0])

	tiles, err := l.QueryBBox(box.LL, box.UR)
	if err != nil {
		exitWithError("query failed", err)
	}
	if refine {
		tiles = query.NewWayIndex(tiles).Filter(tiles, box)
	}
	rows := export.Rows(tiles)

	if err := writeGeoJSON(cmd.OutOrStdout(), outPath, rows, t, indent); err != nil {
		exitWithError("failed to write GeoJSON", err)
	}

	log.Info("Query complete",
		zap.Stringer("bbox", box),
		zap.Int("tiles", len(tiles)),
		zap.Int("ways", len(rows)),
		zap.Bool("refined", refine))
}

// writeGeoJSON writes to path, or to stdout when path is empty
func writeGeoJSON(stdout io.Writer, path string, rows []export.Row, t *proj.Transformer, indent bool) error {
	if path == "" {
		return export.WriteGeoJSON(stdout, rows, t, indent)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteGeoJSON(f, rows, t, indent); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
