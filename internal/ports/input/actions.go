// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/ngds/geobridge/internal/domain"
)

// Spatializer defines the primary port for materializing geometry columns.
type Spatializer interface {
	// Spatialize computes a point geometry column from a latitude/longitude pair.
	Spatialize(ctx context.Context, req domain.SpatializeRequest) (*domain.SpatializeResult, error)
}

// LayerPublisher defines the primary port for exposing resources as layers.
type LayerPublisher interface {
	// Publish exposes a spatialized resource as a layer, creating the
	// workspace and store on first use.
	Publish(ctx context.Context, req domain.ExposeRequest) (*domain.Layer, error)

	// RemoveExposedLayer deletes a layer created by Publish.
	RemoveExposedLayer(ctx context.Context, req domain.RemoveExposedLayerRequest) error

	// ListExposedLayers returns the recorded publications.
	ListExposedLayers(ctx context.Context, req domain.ListExposedLayersRequest) ([]domain.Publication, error)
}

// CatalogAdmin defines the primary port for catalog administration.
type CatalogAdmin interface {
	CreateWorkspace(ctx context.Context, req domain.CreateWorkspaceRequest) (*domain.Workspace, error)
	DeleteWorkspace(ctx context.Context, req domain.DeleteWorkspaceRequest) error
	CreateStore(ctx context.Context, req domain.CreateStoreRequest) (*domain.Store, error)
	DeleteStore(ctx context.Context, req domain.DeleteStoreRequest) error
	CreateLayer(ctx context.Context, req domain.CreateLayerRequest) (*domain.Layer, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy    bool              // Overall health status
	Ready      bool              // Ready to accept requests
	Components map[string]string // Component statuses
}
