// Package ledger keeps the record of exposed layers in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

const schema = `
CREATE TABLE IF NOT EXISTS publications (
	resource_id     TEXT NOT NULL,
	geoserver       TEXT NOT NULL,
	workspace       TEXT NOT NULL,
	store           TEXT NOT NULL,
	layer           TEXT NOT NULL,
	geometry_column TEXT NOT NULL,
	style           TEXT NOT NULL DEFAULT '',
	published_at    TEXT NOT NULL,
	PRIMARY KEY (geoserver, workspace, layer)
);
CREATE INDEX IF NOT EXISTS publications_resource ON publications (resource_id);
`

// Ledger implements the PublicationLedger port.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path. ":memory:" keeps the
// ledger in memory for the life of the process.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Record stores a publication, replacing one for the same layer.
func (l *Ledger) Record(ctx context.Context, pub domain.Publication) error {
	if pub.PublishedAt.IsZero() {
		pub.PublishedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO publications
			(resource_id, geoserver, workspace, store, layer, geometry_column, style, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pub.ResourceID, pub.GeoServer, pub.Workspace, pub.Store, pub.Layer,
		pub.GeometryColumn, pub.Style, pub.PublishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording publication of %s: %w", pub.ResourceID, err)
	}
	return nil
}

// List returns publications ordered by time, optionally for one resource.
func (l *Ledger) List(ctx context.Context, resourceID string) ([]domain.Publication, error) {
	query := `
		SELECT resource_id, geoserver, workspace, store, layer, geometry_column, style, published_at
		FROM publications`
	var args []interface{}
	if resourceID != "" {
		query += ` WHERE resource_id = ?`
		args = append(args, resourceID)
	}
	query += ` ORDER BY published_at, layer`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing publications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	pubs := make([]domain.Publication, 0)
	for rows.Next() {
		var p domain.Publication
		var published string
		if err := rows.Scan(&p.ResourceID, &p.GeoServer, &p.Workspace, &p.Store,
			&p.Layer, &p.GeometryColumn, &p.Style, &published); err != nil {
			return nil, fmt.Errorf("scanning publication: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, published); err == nil {
			p.PublishedAt = t
		}
		pubs = append(pubs, p)
	}
	return pubs, rows.Err()
}

// Remove deletes the publication of a layer.
func (l *Ledger) Remove(ctx context.Context, geoserver, workspace, layer string) error {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM publications WHERE geoserver = ? AND workspace = ? AND layer = ?`,
		geoserver, workspace, layer,
	)
	if err != nil {
		return fmt.Errorf("removing publication %s:%s: %w", workspace, layer, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: domain.ErrPublicationNotFound, Name: workspace + ":" + layer}
	}
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

var _ output.PublicationLedger = (*Ledger)(nil)
