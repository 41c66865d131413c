package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/simpletile-go/internal/logger"
	"github.com/wegman-software/simpletile-go/internal/proj"
)

var infoCmd = &cobra.Command{
	Use:   "info <map.bin>",
	Short: "Show the header and grid of a map file",
	Args:  cobra.ExactArgs(1),
	Run:   runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) {
	l := openLayer(args[0])

	h := l.Header()
	g := l.Grid()
	extent := g.Extent()
	ll := proj.MercatorToLonLat(extent.LL)
	ur := proj.MercatorToLonLat(extent.UR)

	logger.Get().Debug("Map header", zap.Stringer("header", h))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "origin:          %v\n", g.Origin)
	fmt.Fprintf(out, "size:            %d x %d m\n", h.MapWidth, h.MapHeight)
	fmt.Fprintf(out, "extent (lonlat): %.6f,%.6f,%.6f,%.6f\n", ll.Lon, ll.Lat, ur.Lon, ur.Lat)
	fmt.Fprintf(out, "tile size:       %d m\n", h.TileSize)
	fmt.Fprintf(out, "tiles:           %d (%d x %d)\n", h.NTiles, g.NXTiles, g.NYTiles())
	fmt.Fprintf(out, "max tile nodes:  %d\n", h.MaxTileNodes)
	fmt.Fprintf(out, "tile nodes:      %d\n", h.TotalTileNodes)
	fmt.Fprintf(out, "ways:            %d\n", h.WayCount)
	fmt.Fprintf(out, "data offset:     %d\n", h.DataOffset())
}
