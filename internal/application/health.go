package application

import (
	"context"
	"time"

	"github.com/ngds/geobridge/internal/ports/input"
	"github.com/ngds/geobridge/internal/ports/output"
)

// HealthService provides health check functionality.
type HealthService struct {
	datastore output.Datastore
	catalogs  output.CatalogProvider
	timeout   time.Duration
}

// NewHealthService creates a new health service.
func NewHealthService(datastore output.Datastore, catalogs output.CatalogProvider) *HealthService {
	return &HealthService{
		datastore: datastore,
		catalogs:  catalogs,
		timeout:   5 * time.Second,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true
}

// IsReady returns true when the datastore and the default GeoServer answer.
func (s *HealthService) IsReady(ctx context.Context) bool {
	for _, status := range s.check(ctx) {
		if status != "ok" {
			return false
		}
	}
	return true
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := s.check(ctx)

	ready := true
	for _, status := range components {
		if status != "ok" {
			ready = false
		}
	}

	return input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      ready,
		Components: components,
	}
}

func (s *HealthService) check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	components := map[string]string{
		"datastore": "ok",
		"geoserver": "ok",
	}

	if err := s.datastore.Ping(ctx); err != nil {
		components["datastore"] = "error: " + err.Error()
	}

	cat, err := s.catalogs.Catalog("")
	if err == nil {
		err = cat.Ping(ctx)
	}
	if err != nil {
		components["geoserver"] = "error: " + err.Error()
	}

	return components
}
