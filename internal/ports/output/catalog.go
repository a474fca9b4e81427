package output

import (
	"context"
	"io"
	"net/http"

	"github.com/ngds/geobridge/internal/domain"
)

// Catalog defines the secondary port for a remote map-server REST catalog.
// Lookups report absence with a domain not-found error; any other non-2xx
// answer is a *domain.UpstreamError.
type Catalog interface {
	// BaseURL returns the REST endpoint the catalog talks to.
	BaseURL() string

	GetWorkspace(ctx context.Context, name string) (*domain.Workspace, error)
	CreateWorkspace(ctx context.Context, name, uri string) (*domain.Workspace, error)
	DeleteWorkspace(ctx context.Context, name string, recurse bool) error

	GetStore(ctx context.Context, workspace, name string) (*domain.Store, error)
	CreateDatastore(ctx context.Context, workspace, name string, params domain.ConnectionParams) (*domain.Store, error)
	DeleteStore(ctx context.Context, workspace, name string, recurse bool) error

	GetLayer(ctx context.Context, workspace, name string) (*domain.Layer, error)
	CreateFeatureType(ctx context.Context, workspace, store string, def *domain.FeatureTypeDefinition) error
	DeleteFeatureType(ctx context.Context, workspace, store, name string) error

	// UploadStyle creates or replaces an SLD style in a workspace.
	UploadStyle(ctx context.Context, workspace, name string, sld io.Reader) error
	// SetDefaultStyle sets the default style of a layer.
	SetDefaultStyle(ctx context.Context, workspace, layer, style string) error

	// Request is the raw escape hatch. path is relative to BaseURL.
	Request(ctx context.Context, method, path string, body []byte, headers http.Header) ([]byte, error)

	// Ping checks that the catalog answers.
	Ping(ctx context.Context) error

	// ClearCache drops every cached lookup.
	ClearCache()
}

// CatalogProvider hands out a catalog client per REST base URL.
type CatalogProvider interface {
	// Catalog returns the client for baseURL; an empty URL selects the
	// configured default.
	Catalog(baseURL string) (Catalog, error)
}
