// Package osmread extracts projected ways from OSM PBF and XML files.
package osmread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"go.uber.org/zap"

	"github.com/wegman-software/simpletile-go/internal/filter"
	"github.com/wegman-software/simpletile-go/internal/logger"
	"github.com/wegman-software/simpletile-go/internal/nodeindex"
	"github.com/wegman-software/simpletile-go/internal/proj"
)

// Way is an accepted OSM way with its nodes projected to Mercator
type Way struct {
	ID     int64
	Tags   map[string]string
	Points []proj.Point
}

// Stats holds extraction statistics
type Stats struct {
	Nodes            int64
	WaysScanned      int64
	WaysAccepted     int64
	WaysMissingNodes int64
	WaysTooShort     int64
}

// Reader runs the two passes over an OSM file: node locations first,
// then ways resolved against the node index
type Reader struct {
	Path    string
	Index   nodeindex.Index
	Matcher filter.Matcher
	Workers int
}

// Format reports whether path is read as XML or PBF
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".osm", ".xml":
		return "xml"
	default:
		return "pbf"
	}
}

// Read calls fn for every accepted way in file order. An error from fn
// stops the scan and is returned.
func (r *Reader) Read(ctx context.Context, fn func(Way) error) (*Stats, error) {
	log := logger.Named("osmread")
	var stats Stats

	log.Info("Pass 1: Building node location index", zap.String("input", r.Path), zap.String("format", Format(r.Path)))
	start := time.Now()
	nodes, err := r.indexNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("pass 1: %w", err)
	}
	stats.Nodes = nodes
	log.Info("Pass 1 complete", zap.Int64("nodes", nodes), zap.Duration("duration", time.Since(start).Round(time.Millisecond)))

	log.Info("Pass 2: Resolving ways")
	start = time.Now()
	if err := r.readWays(ctx, &stats, fn); err != nil {
		return nil, fmt.Errorf("pass 2: %w", err)
	}
	log.Info("Pass 2 complete",
		zap.Int64("ways", stats.WaysScanned),
		zap.Int64("accepted", stats.WaysAccepted),
		zap.Int64("missing_nodes", stats.WaysMissingNodes),
		zap.Int64("too_short", stats.WaysTooShort),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))

	return &stats, nil
}

// ReadAll collects all accepted ways
func (r *Reader) ReadAll(ctx context.Context) ([]Way, *Stats, error) {
	var ways []Way
	stats, err := r.Read(ctx, func(w Way) error {
		ways = append(ways, w)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ways, stats, nil
}

type pass int

const (
	passNodes pass = iota
	passWays
)

func (r *Reader) open(ctx context.Context, p pass) (osm.Scanner, *os.File, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open OSM file: %w", err)
	}

	if Format(r.Path) == "xml" {
		return osmxml.New(ctx, f), f, nil
	}

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	s := osmpbf.New(ctx, f, workers)
	s.SkipRelations = true
	switch p {
	case passNodes:
		s.SkipWays = true
	case passWays:
		s.SkipNodes = true
	}
	return s, f, nil
}

func (r *Reader) indexNodes(ctx context.Context) (int64, error) {
	scanner, f, err := r.open(ctx, passNodes)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	defer scanner.Close()

	var count atomic.Int64

	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go progress(tickCtx, "Node indexing progress", &count)

	for scanner.Scan() {
		if n, ok := scanner.Object().(*osm.Node); ok {
			r.Index.Put(int64(n.ID), n.Lon, n.Lat)
			count.Add(1)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	return count.Load(), nil
}

func (r *Reader) readWays(ctx context.Context, stats *Stats, fn func(Way) error) error {
	scanner, f, err := r.open(ctx, passWays)
	if err != nil {
		return err
	}
	defer f.Close()
	defer scanner.Close()

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		stats.WaysScanned++

		tags := w.Tags.Map()
		if r.Matcher != nil && !r.Matcher.Match(tags) {
			continue
		}

		points, ok := r.resolve(w.Nodes)
		if !ok {
			stats.WaysMissingNodes++
			continue
		}
		if len(points) < 2 {
			stats.WaysTooShort++
			continue
		}

		stats.WaysAccepted++
		if err := fn(Way{ID: int64(w.ID), Tags: tags, Points: points}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (r *Reader) resolve(nodes osm.WayNodes) ([]proj.Point, bool) {
	points := make([]proj.Point, 0, len(nodes))
	for _, n := range nodes {
		p, ok := r.Index.Get(int64(n.ID))
		if !ok {
			return nil, false
		}
		points = append(points, p)
	}
	return points, true
}

func progress(ctx context.Context, msg string, count *atomic.Int64) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Named("osmread").Debug(msg, zap.Int64("count", count.Load()))
		}
	}
}
