package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/wegman-software/simpletile-go/internal/query"
)

var tileCmd = &cobra.Command{
	Use:   "tile <map.bin> <id>",
	Short: "Dump the ways of a tile in absolute Mercator coordinates",
	Long: `Dump the ways stored in one tile.

With --radius the block of tiles around the given tile is dumped as well,
tiles outside the map are skipped.`,
	Args: cobra.ExactArgs(2),
	Run:  runTile,
}

func init() {
	rootCmd.AddCommand(tileCmd)
	tileCmd.Flags().Int("radius", 0, "Also dump the tiles up to this many rows/columns away")
}

func runTile(cmd *cobra.Command, args []string) {
	id, err := parseTileID(args[1])
	if err != nil {
		exitWithError("invalid arguments", err)
	}
	radius, _ := cmd.Flags().GetInt("radius")

	l := openLayer(args[0])

	tiles, err := l.Block(id, radius)
	if err != nil {
		exitWithError("failed to read tile", err)
	}

	ids := make([]int64, 0, len(tiles))
	for tid := range tiles {
		ids = append(ids, tid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := cmd.OutOrStdout()
	for _, tid := range ids {
		printTile(out, tiles[tid])
	}
}

func printTile(w io.Writer, t *query.Tile) {
	fmt.Fprintf(w, "tile %d %v-%v: %d ways, %d points\n", t.ID, t.LL, t.UR, len(t.Ways), t.NumPoints())
	for _, wayID := range t.WayIDs() {
		fmt.Fprintf(w, "  way %d:", wayID)
		for _, p := range t.Ways[wayID] {
			fmt.Fprintf(w, " %d,%d", p.X, p.Y)
		}
		fmt.Fprintln(w)
	}
}
