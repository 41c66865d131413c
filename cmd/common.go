package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/wegman-software/simpletile-go/internal/config"
	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/query"
)

// openLayer opens a map file, memory-mapped when --mmap is set
func openLayer(path string) *query.Layer {
	l, err := query.Open(path, cfg.Mapped)
	if err != nil {
		exitWithError("failed to open map file", err)
	}
	closeOnExit(l)
	return l
}

// addBBoxFlags registers the two ways of passing a query box
func addBBoxFlags(cmd *cobra.Command) {
	cmd.Flags().String("bbox", "", "Mercator box minx,miny,maxx,maxy in meters")
	cmd.Flags().String("lonlat-bbox", "", "WGS84 box minlon,minlat,maxlon,maxlat in degrees")
}

// bboxFromFlags returns the box given by --bbox or --lonlat-bbox.
// ok is false when neither flag is set.
func bboxFromFlags(cmd *cobra.Command) (b grid.BBox, ok bool, err error) {
	mercator, _ := cmd.Flags().GetString("bbox")
	lonlat, _ := cmd.Flags().GetString("lonlat-bbox")
	return parseBBoxes(mercator, lonlat)
}

func parseBBoxes(mercator, lonlat string) (grid.BBox, bool, error) {
	switch {
	case mercator != "" && lonlat != "":
		return grid.BBox{}, false, fmt.Errorf("--bbox and --lonlat-bbox are mutually exclusive")
	case mercator != "":
		b, err := config.ParseBBox(mercator)
		if err != nil {
			return grid.BBox{}, false, err
		}
		return b, true, nil
	case lonlat != "":
		b, err := config.ParseLonLatBBox(lonlat)
		if err != nil {
			return grid.BBox{}, false, err
		}
		return b.Mercator(), true, nil
	default:
		return grid.BBox{}, false, nil
	}
}

func parseTileID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid tile id %q: %w", s, err)
	}
	return id, nil
}
