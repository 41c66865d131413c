package export

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/simpletile-go/internal/config"
	"github.com/wegman-software/simpletile-go/internal/logger"
	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/wkb"
)

const loadTempTable = "simpletile_load_tmp"

var copyColumns = []string{"tile_id", "way_id", "num_points", "geom_wkb"}

// PostGIS loads rows into a PostGIS table
type PostGIS struct {
	cfg         *config.Config
	pool        *pgxpool.Pool
	transformer *proj.Transformer
	table       string
	log         *zap.Logger
}

// NewPostGIS connects to the database described by cfg
func NewPostGIS(ctx context.Context, cfg *config.Config) (*PostGIS, error) {
	t, err := proj.NewTransformer(cfg.Projection)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(max(cfg.Workers, 2))

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &PostGIS{
		cfg:         cfg,
		pool:        pool,
		transformer: t,
		table:       QualifiedTable(cfg.DBSchema, cfg.DBTable),
		log:         logger.Named("postgis"),
	}, nil
}

// Close closes connections
func (p *PostGIS) Close() {
	p.pool.Close()
}

// Prepare makes sure the extension, schema and target table exist
func (p *PostGIS) Prepare(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if p.cfg.DBSchema != "" && p.cfg.DBSchema != "public" {
		if _, err := p.pool.Exec(ctx, CreateSchemaSQL(p.cfg.DBSchema)); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if p.cfg.DropExisting {
		if _, err := p.pool.Exec(ctx, DropTableSQL(p.table)); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	if _, err := p.pool.Exec(ctx, CreateTableSQL(p.table, p.transformer.TargetSRID)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if !p.cfg.DropExisting {
		if _, err := p.pool.Exec(ctx, TruncateSQL(p.table)); err != nil {
			return fmt.Errorf("failed to truncate table: %w", err)
		}
	}
	return nil
}

// Load streams the rows produced by produce into the table with COPY.
// Either every row is committed or none.
func (p *PostGIS) Load(ctx context.Context, produce func(emit func(Row) error) error) (int64, error) {
	start := time.Now()

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, TempTableSQL(loadTempTable)); err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	rows := make(chan []any, 10000)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rows)
		enc := wkb.NewEncoder(p.transformer.TargetSRID)
		return produce(func(r Row) error {
			if len(r.Points) == 0 {
				return nil
			}
			geom := append([]byte(nil), enc.EncodeWay(r.Points, p.transformer)...)
			select {
			case rows <- []any{r.TileID, int32(r.WayID), int32(len(r.Points)), geom}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	var copied int64
	g.Go(func() error {
		n, err := tx.CopyFrom(gctx, pgx.Identifier{loadTempTable}, copyColumns, &rowSource{rows: rows})
		if err != nil {
			return fmt.Errorf("COPY failed: %w", err)
		}
		copied = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, InsertSQL(p.table, loadTempTable)); err != nil {
		return 0, fmt.Errorf("failed to insert from temp table: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	p.log.Info("Rows loaded",
		zap.String("table", p.table),
		zap.Int64("rows", copied),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return copied, nil
}

// CreateIndexes builds the spatial and id indexes and analyzes the table
func (p *PostGIS) CreateIndexes(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SET maintenance_work_mem = '1GB'"); err != nil {
		p.log.Debug("Could not raise maintenance_work_mem", zap.Error(err))
	}

	for _, stmt := range IndexSQL(p.table, p.cfg.DBTable) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}
	p.log.Info("Indexes created", zap.String("table", p.table))
	return nil
}

// QualifiedTable returns the quoted schema.table name
func QualifiedTable(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

// CreateSchemaSQL returns the statement creating schema
func CreateSchemaSQL(schema string) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize())
}

// DropTableSQL returns the statement dropping table
func DropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)
}

// TruncateSQL returns the statement emptying table
func TruncateSQL(table string) string {
	return fmt.Sprintf("TRUNCATE %s", table)
}

// CreateTableSQL returns the statement creating the way table.
// Single-point ways are stored as points, so the column is not restricted
// to linestrings.
func CreateTableSQL(table string, srid int) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	tile_id BIGINT NOT NULL,
	way_id INTEGER NOT NULL,
	num_points INTEGER NOT NULL,
	geom GEOMETRY(Geometry, %d) NOT NULL,
	PRIMARY KEY (tile_id, way_id)
)`, table, srid)
}

// TempTableSQL returns the statement creating the COPY target
func TempTableSQL(name string) string {
	return fmt.Sprintf(`CREATE TEMP TABLE %s (
	tile_id BIGINT,
	way_id INTEGER,
	num_points INTEGER,
	geom_wkb BYTEA
) ON COMMIT DROP`, pgx.Identifier{name}.Sanitize())
}

// InsertSQL returns the statement moving rows from the COPY target into
// table. The EWKB carries its own SRID.
func InsertSQL(table, temp string) string {
	return fmt.Sprintf(`INSERT INTO %s (tile_id, way_id, num_points, geom)
SELECT tile_id, way_id, num_points, ST_GeomFromEWKB(geom_wkb)
FROM %s
WHERE geom_wkb IS NOT NULL`, table, pgx.Identifier{temp}.Sanitize())
}

// IndexSQL returns the statements indexing the geometry of table.
// shortName names the index; (tile_id, way_id) is covered by the primary key.
func IndexSQL(table, shortName string) []string {
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)",
			pgx.Identifier{shortName + "_geom_idx"}.Sanitize(), table),
		fmt.Sprintf("ANALYZE %s", table),
	}
}

// rowSource implements pgx.CopyFromSource for streaming rows
type rowSource struct {
	rows    <-chan []any
	current []any
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]any, error) {
	return r.current, nil
}

func (r *rowSource) Err() error {
	return nil
}
