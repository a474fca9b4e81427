package output

import (
	"context"

	"github.com/go-spatial/geom"

	"github.com/ngds/geobridge/internal/domain"
)

// Datastore defines the secondary port for the tabular datastore.
type Datastore interface {
	// Connect runs fn on a single dedicated connection and releases the
	// connection when fn returns, whatever the outcome.
	Connect(ctx context.Context, fn func(conn DatastoreConn) error) error

	// Ping checks that the datastore is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// DatastoreConn is one connection to the datastore. Each mutating method
// runs in its own transaction and rolls it back on failure.
type DatastoreConn interface {
	// ResourceExists reports whether resourceID is a base table (not an alias).
	ResourceExists(ctx context.Context, resourceID string) (bool, error)

	// Fields returns the user-visible columns of a resource.
	Fields(ctx context.Context, resourceID string) ([]domain.Field, error)

	// AddGeometryColumn adds a 2D geometry column with the given SRID.
	AddGeometryColumn(ctx context.Context, resourceID, column string, srid int) error

	// UpdateGeometry recomputes column for every row from the longitude and
	// latitude columns and returns the number of rows updated.
	UpdateGeometry(ctx context.Context, resourceID string, cols GeometryColumns, srid int) (int64, error)

	// TableInfo returns the pg_tables row of a resource.
	TableInfo(ctx context.Context, resourceID string) (*domain.TableInfo, error)

	// Extent returns the bounding box of a geometry column, nil if the
	// column holds no geometries.
	Extent(ctx context.Context, resourceID, column string) (*geom.Extent, error)
}

// GeometryColumns names the columns involved in a geometry update.
type GeometryColumns struct {
	Latitude  string
	Longitude string
	Geometry  string
}
