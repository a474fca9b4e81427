// Package postgis provides the PostGIS-backed datastore accessor.
package postgis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-spatial/geom"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// sqlStateQueryCanceled is raised when a statement exceeds statement_timeout.
const sqlStateQueryCanceled = "57014"

// Config holds datastore connection settings.
type Config struct {
	URL              string        // Write URL of the datastore
	MaxOpenConns     int           // Pool size, 0 for driver default
	StatementTimeout time.Duration // Session statement timeout, 0 keeps the server setting
}

// Datastore implements the Datastore port on top of gorm and pgx.
type Datastore struct {
	db               *gorm.DB
	statementTimeout time.Duration
}

// Open connects to the datastore and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Datastore, error) {
	return open(ctx, postgres.Open(cfg.URL), cfg, logger)
}

func open(ctx context.Context, dialector gorm.Dialector, cfg Config, logger *slog.Logger) (*Datastore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newGormLogger(logger),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, &domain.DatastoreError{Op: "open", Err: err}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, &domain.DatastoreError{Op: "open", Err: err}
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	ds := &Datastore{db: db, statementTimeout: cfg.StatementTimeout}
	if err := ds.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return ds, nil
}

// Connect runs fn on one dedicated connection.
func (d *Datastore) Connect(ctx context.Context, fn func(conn output.DatastoreConn) error) error {
	return d.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		if d.statementTimeout > 0 {
			stmt := fmt.Sprintf("SET statement_timeout = %d", d.statementTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return wrapErr("connect", "", err)
			}
			defer func() { _ = tx.Exec("RESET statement_timeout").Error }()
		}
		return fn(&conn{db: tx})
	})
}

// Ping checks that the datastore is reachable.
func (d *Datastore) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return &domain.DatastoreError{Op: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &domain.DatastoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (d *Datastore) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// conn is a DatastoreConn bound to one pooled connection.
type conn struct {
	db *gorm.DB
}

type columnRow struct {
	ColumnName string `gorm:"column:column_name"`
	UDTName    string `gorm:"column:udt_name"`
}

type tableRow struct {
	SchemaName string `gorm:"column:schemaname"`
	TableName  string `gorm:"column:tablename"`
	TableOwner string `gorm:"column:tableowner"`
}

type extentRow struct {
	MinX *float64 `gorm:"column:minx"`
	MinY *float64 `gorm:"column:miny"`
	MaxX *float64 `gorm:"column:maxx"`
	MaxY *float64 `gorm:"column:maxy"`
}

// ResourceExists reports whether resourceID is a base table.
func (c *conn) ResourceExists(ctx context.Context, resourceID string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM "_table_metadata" WHERE name = ? AND alias_of IS NULL`, resourceID).
		Scan(&count).Error
	if err != nil {
		return false, wrapErr("lookup", resourceID, err)
	}
	return count > 0, nil
}

// Fields returns the user-visible columns of a resource in table order.
func (c *conn) Fields(ctx context.Context, resourceID string) ([]domain.Field, error) {
	var rows []columnRow
	err := c.db.WithContext(ctx).Raw(`
		SELECT column_name, udt_name
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = ?
		ORDER BY ordinal_position`, resourceID).
		Scan(&rows).Error
	if err != nil {
		return nil, wrapErr("fields", resourceID, err)
	}

	fields := make([]domain.Field, 0, len(rows))
	for _, r := range rows {
		if strings.HasPrefix(r.ColumnName, "_") {
			continue
		}
		fields = append(fields, domain.Field{ID: r.ColumnName, Type: r.UDTName})
	}
	return fields, nil
}

// AddGeometryColumn adds a generic 2D geometry column in its own transaction.
func (c *conn) AddGeometryColumn(ctx context.Context, resourceID, column string, srid int) error {
	stmt := fmt.Sprintf(
		"SELECT AddGeometryColumn('public'::varchar, ?::varchar, ?::varchar, %d, 'GEOMETRY'::varchar, 2)",
		srid,
	)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Exec(stmt, resourceID, column).Error
	})
	if err != nil {
		return wrapErr("add_column", resourceID, err)
	}
	return nil
}

// UpdateGeometry rewrites the geometry of every row in its own transaction.
func (c *conn) UpdateGeometry(ctx context.Context, resourceID string, cols output.GeometryColumns, srid int) (int64, error) {
	stmt := updateGeometrySQL(resourceID, cols, srid)

	var affected int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(stmt)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, wrapErr("update", resourceID, err)
	}
	return affected, nil
}

// TableInfo returns the pg_tables row of a resource.
func (c *conn) TableInfo(ctx context.Context, resourceID string) (*domain.TableInfo, error) {
	var rows []tableRow
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Raw(`SELECT schemaname, tablename, tableowner FROM pg_tables WHERE tablename = ?`, resourceID).
			Scan(&rows).Error
	})
	if err != nil {
		return nil, wrapErr("table_info", resourceID, err)
	}
	if len(rows) == 0 {
		return nil, &domain.NotFoundError{Kind: domain.ErrResourceNotFound, Name: resourceID}
	}
	return &domain.TableInfo{
		Schema: rows[0].SchemaName,
		Name:   rows[0].TableName,
		Owner:  rows[0].TableOwner,
	}, nil
}

// Extent returns the bounding box of a geometry column.
func (c *conn) Extent(ctx context.Context, resourceID, column string) (*geom.Extent, error) {
	var row extentRow
	err := c.db.WithContext(ctx).Raw(extentSQL(resourceID, column)).Scan(&row).Error
	if err != nil {
		return nil, wrapErr("extent", resourceID, err)
	}
	if row.MinX == nil || row.MinY == nil || row.MaxX == nil || row.MaxY == nil {
		return nil, nil
	}
	return &geom.Extent{*row.MinX, *row.MinY, *row.MaxX, *row.MaxY}, nil
}

func updateGeometrySQL(resourceID string, cols output.GeometryColumns, srid int) string {
	return fmt.Sprintf(
		"UPDATE %s SET %s = ST_SetSRID(ST_MakePoint(%s::double precision, %s::double precision), %d)", //#nosec G201 -- identifiers are quoted
		quoteIdent(resourceID),
		quoteIdent(cols.Geometry),
		quoteIdent(cols.Longitude),
		quoteIdent(cols.Latitude),
		srid,
	)
}

func extentSQL(resourceID, column string) string {
	return fmt.Sprintf(`
		SELECT ST_XMin(e) AS minx, ST_YMin(e) AS miny, ST_XMax(e) AS maxx, ST_YMax(e) AS maxy
		FROM (SELECT ST_Extent(%s) AS e FROM %s) s`, //#nosec G201 -- identifiers are quoted
		quoteIdent(column), quoteIdent(resourceID),
	)
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// isStatementTimeout reports whether err was raised by statement_timeout.
func isStatementTimeout(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateQueryCanceled {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "due to statement timeout")
}

func wrapErr(op, resourceID string, err error) error {
	if isStatementTimeout(err) {
		err = fmt.Errorf("%w: %w", domain.ErrQueryTimeout, err)
	}
	return &domain.DatastoreError{Op: op, Resource: resourceID, Err: err}
}
