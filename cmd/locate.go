package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/wegman-software/simpletile-go/internal/proj"
)

var locateCmd = &cobra.Command{
	Use:   "locate <map.bin> <lon> <lat>",
	Short: "Print the tile holding a WGS84 position",
	Args:  cobra.ExactArgs(3),
	Run:   runLocate,
}

func init() {
	rootCmd.AddCommand(locateCmd)
}

func runLocate(cmd *cobra.Command, args []string) {
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		exitWithError("invalid longitude", err)
	}
	lat, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		exitWithError("invalid latitude", err)
	}

	l := openLayer(args[0])

	id, err := l.TileIDForLonLat(lon, lat)
	if err != nil {
		exitWithError("position not on the map", err)
	}
	b := l.Grid().TileBounds(id)
	fmt.Fprintf(cmd.OutOrStdout(), "tile %d at %v (bounds %v)\n", id, proj.LonLatToMercator(lon, lat), b)
}
