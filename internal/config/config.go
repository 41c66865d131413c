package config

import (
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/proj"
)

// Node index modes
const (
	NodeIndexMemory = "memory"
	NodeIndexMmap   = "mmap"
)

// LonLatBBox represents a geographic bounding box in degrees
type LonLatBBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Contains checks if a position is within the bounding box
func (b *LonLatBBox) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// Mercator projects both corners
func (b *LonLatBBox) Mercator() grid.BBox {
	return grid.BBox{
		LL: proj.LonLatToMercator(b.MinLon, b.MinLat),
		UR: proj.LonLatToMercator(b.MaxLon, b.MaxLat),
	}
}

func parseFloats(s string) ([4]float64, error) {
	var coords [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return coords, fmt.Errorf("bbox must have 4 values, got %d", len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return coords, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}
	return coords, nil
}

// ParseLonLatBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat"
func ParseLonLatBBox(s string) (*LonLatBBox, error) {
	coords, err := parseFloats(s)
	if err != nil {
		return nil, err
	}

	bbox := &LonLatBBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
	}

	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}
	if bbox.MinLon < -180 || bbox.MaxLon > 180 || bbox.MinLat < -90 || bbox.MaxLat > 90 {
		return nil, fmt.Errorf("bbox %s outside the WGS84 range", s)
	}
	return bbox, nil
}

// ParseBBox parses a Mercator bbox string in format "minx,miny,maxx,maxy".
// Values are whole meters; fractions are truncated toward zero.
func ParseBBox(s string) (grid.BBox, error) {
	coords, err := parseFloats(s)
	if err != nil {
		return grid.BBox{}, err
	}
	for _, c := range coords {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return grid.BBox{}, fmt.Errorf("invalid bbox %q", s)
		}
	}

	b := grid.BBox{
		LL: proj.Point{X: int64(coords[0]), Y: int64(coords[1])},
		UR: proj.Point{X: int64(coords[2]), Y: int64(coords[3])},
	}
	if !b.Valid() {
		return grid.BBox{}, fmt.Errorf("%w: minx,miny must be <= maxx,maxy in %q", proj.ErrMalformedInput, s)
	}
	return b, nil
}

// Config holds the settings shared by all commands
type Config struct {
	// Build settings
	TileSize     int64
	FilterFile   string // YAML tag rules
	FilterScript string // Lua script defining accept(tags)

	// Node index
	NodeIndex         string // memory or mmap
	NodeIndexPath     string
	NodeIndexCapacity int64

	// Query and export settings
	Projection int // output SRID (4326 or 3857)
	Mapped     bool

	// Database settings
	DBHost        string
	DBPort        int
	DBName        string
	DBUser        string
	DBPassword    string
	DBSchema      string
	DBTable       string
	DropExisting  bool
	CreateIndexes bool

	// Processing settings
	Workers   int
	BatchSize int

	// Logging and metrics
	Verbose         bool
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for system metrics logging
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		TileSize:          512,
		NodeIndex:         NodeIndexMemory,
		NodeIndexPath:     "nodes.idx",
		NodeIndexCapacity: 16_000_000_000,
		Projection:        proj.SRID4326,
		DBHost:            "localhost",
		DBPort:            5432,
		DBName:            "osm",
		DBUser:            "postgres",
		DBSchema:          "public",
		DBTable:           "simpletile_ways",
		CreateIndexes:     true,
		Workers:           runtime.NumCPU(),
		BatchSize:         100000,
		MetricsInterval:   30 * time.Second,
	}
}

// Load overlays the values known to v onto the defaults.
// Keys use the flag names, e.g. "tile-size" or "db-host".
func Load(v *viper.Viper) *Config {
	c := DefaultConfig()

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	if v.IsSet("tile-size") {
		c.TileSize = v.GetInt64("tile-size")
	}
	setString("filter", &c.FilterFile)
	setString("filter-script", &c.FilterScript)
	setString("node-index", &c.NodeIndex)
	setString("node-index-path", &c.NodeIndexPath)
	if v.IsSet("node-index-capacity") {
		c.NodeIndexCapacity = v.GetInt64("node-index-capacity")
	}
	if v.IsSet("srid") {
		// unknown names leave 0 behind for Validate to reject
		c.Projection, _ = proj.ParseSRID(v.GetString("srid"))
	}
	setBool("mmap", &c.Mapped)

	setString("db-host", &c.DBHost)
	setInt("db-port", &c.DBPort)
	setString("db-name", &c.DBName)
	setString("db-user", &c.DBUser)
	setString("db-password", &c.DBPassword)
	setString("db-schema", &c.DBSchema)
	setString("db-table", &c.DBTable)
	setBool("drop-existing", &c.DropExisting)
	setBool("create-indexes", &c.CreateIndexes)

	setInt("workers", &c.Workers)
	setInt("batch-size", &c.BatchSize)

	setBool("verbose", &c.Verbose)
	setString("log-file", &c.LogFile)
	if v.IsSet("metrics-interval") {
		c.MetricsInterval = v.GetDuration("metrics-interval")
	}
	return c
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.TileSize < 1 || c.TileSize > math.MaxInt16 {
		return fmt.Errorf("tile size must be in [1, %d]", math.MaxInt16)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	switch c.NodeIndex {
	case NodeIndexMemory:
	case NodeIndexMmap:
		if c.NodeIndexPath == "" {
			return fmt.Errorf("node index path is required for the mmap index")
		}
		if c.NodeIndexCapacity < 1 {
			return fmt.Errorf("node index capacity must be at least 1")
		}
	default:
		return fmt.Errorf("unknown node index %q (memory or mmap)", c.NodeIndex)
	}
	if c.Projection != proj.SRID4326 && c.Projection != proj.SRID3857 {
		return fmt.Errorf("unsupported projection %d (4326 or 3857)", c.Projection)
	}
	if c.FilterFile != "" && c.FilterScript != "" {
		return fmt.Errorf("filter and filter-script are mutually exclusive")
	}
	return nil
}
