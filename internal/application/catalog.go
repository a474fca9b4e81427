package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// CatalogService runs the catalog administration actions.
type CatalogService struct {
	catalogs   output.CatalogProvider
	layers     layerFactory
	defaultCon domain.StoreConnection
	instrumentation
}

// NewCatalogService creates a new catalog service. storeDefaults fills the
// connection fields a create-store request leaves out, as for publishing.
func NewCatalogService(
	catalogs output.CatalogProvider,
	datastore output.Datastore,
	authz output.Authorizer,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	storeDefaults domain.StoreConnection,
) *CatalogService {
	return &CatalogService{
		catalogs:        catalogs,
		layers:          layerFactory{datastore: datastore},
		defaultCon:      storeDefaults,
		instrumentation: instrumentation{authz: authz, metrics: metrics, logger: logger},
	}
}

// workspaceFor returns the named workspace, creating it when the catalog
// reports it missing. Any other lookup error is returned as is.
func workspaceFor(ctx context.Context, cat output.Catalog, name, uri string) (ws *domain.Workspace, created bool, err error) {
	ws, err = cat.GetWorkspace(ctx, name)
	if err == nil {
		return ws, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("looking up workspace %s: %w", name, err)
	}
	if ws, err = cat.CreateWorkspace(ctx, name, uri); err != nil {
		return nil, false, fmt.Errorf("creating workspace %s: %w", name, err)
	}
	return ws, true, nil
}

// storeFor is workspaceFor for stores.
func storeFor(ctx context.Context, cat output.Catalog, workspace, name string, params domain.ConnectionParams) (store *domain.Store, created bool, err error) {
	store, err = cat.GetStore(ctx, workspace, name)
	if err == nil {
		return store, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("looking up store %s:%s: %w", workspace, name, err)
	}
	if store, err = cat.CreateDatastore(ctx, workspace, name, params); err != nil {
		return nil, false, fmt.Errorf("creating store %s:%s: %w", workspace, name, err)
	}
	return store, true, nil
}

// begin validates req, authorizes action and resolves the catalog.
func (s *CatalogService) begin(ctx context.Context, action, geoserver string, req interface{}) (output.Catalog, error) {
	if err := prepare(req); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, action, ""); err != nil {
		return nil, err
	}
	return s.catalogs.Catalog(geoserver)
}

// CreateWorkspace creates a workspace with the requested namespace URI
// unless one with that name exists, in which case that one is returned.
func (s *CatalogService) CreateWorkspace(ctx context.Context, req domain.CreateWorkspaceRequest) (ws *domain.Workspace, err error) {
	start := time.Now()
	defer func() { s.done(ctx, ActionCreateWorkspace, start, err) }()

	cat, err := s.begin(ctx, ActionCreateWorkspace, req.GeoServer, &req)
	if err != nil {
		return nil, err
	}

	ws, created, err := workspaceFor(ctx, cat, req.WorkspaceName, req.WorkspaceURI)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("workspace created", "workspace", ws.Name, "uri", ws.URI, "geoserver", cat.BaseURL())
	}
	return ws, nil
}

// DeleteWorkspace deletes a workspace and everything in it.
func (s *CatalogService) DeleteWorkspace(ctx context.Context, req domain.DeleteWorkspaceRequest) (err error) {
	start := time.Now()
	defer func() { s.done(ctx, ActionDeleteWorkspace, start, err) }()

	cat, err := s.begin(ctx, ActionDeleteWorkspace, req.GeoServer, &req)
	if err != nil {
		return err
	}

	if err := cat.DeleteWorkspace(ctx, req.WorkspaceName, true); err != nil {
		return err
	}
	s.logger.Info("workspace deleted", "workspace", req.WorkspaceName, "geoserver", cat.BaseURL())
	return nil
}

// CreateStore registers a Postgres store in an existing workspace unless
// the workspace already has a store with that name.
func (s *CatalogService) CreateStore(ctx context.Context, req domain.CreateStoreRequest) (store *domain.Store, err error) {
	start := time.Now()
	defer func() { s.done(ctx, ActionCreateStore, start, err) }()

	fillConnection(&req.StoreConnection, s.defaultCon)
	cat, err := s.begin(ctx, ActionCreateStore, req.GeoServer, &req)
	if err != nil {
		return nil, err
	}

	if _, err := cat.GetWorkspace(ctx, req.WorkspaceName); err != nil {
		return nil, err
	}

	params := req.StoreConnection.Params()
	store, created, err := storeFor(ctx, cat, req.WorkspaceName, req.StoreName, params)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("store created",
			"workspace", req.WorkspaceName,
			"store", store.Name,
			"host", params.Host,
			"database", params.Database,
			"geoserver", cat.BaseURL(),
		)
	}
	return store, nil
}

// DeleteStore deletes a store and its feature types.
func (s *CatalogService) DeleteStore(ctx context.Context, req domain.DeleteStoreRequest) (err error) {
	start := time.Now()
	defer func() { s.done(ctx, ActionDeleteStore, start, err) }()

	cat, err := s.begin(ctx, ActionDeleteStore, req.GeoServer, &req)
	if err != nil {
		return err
	}

	if err := cat.DeleteStore(ctx, req.WorkspaceName, req.StoreName, true); err != nil {
		return err
	}
	s.logger.Info("store deleted", "workspace", req.WorkspaceName, "store", req.StoreName, "geoserver", cat.BaseURL())
	return nil
}

// CreateLayer creates a layer for a resource unless the catalog already
// has one with that name, in which case the existing layer is returned.
func (s *CatalogService) CreateLayer(ctx context.Context, req domain.CreateLayerRequest) (layer *domain.Layer, err error) {
	start := time.Now()
	defer func() { s.done(ctx, ActionCreateLayer, start, err) }()

	cat, err := s.begin(ctx, ActionCreateLayer, req.GeoServer, &req)
	if err != nil {
		return nil, err
	}

	if layer, err = existing(ctx, cat, req.WorkspaceName, req.LayerName); err != nil || layer != nil {
		return layer, err
	}

	layer, _, err = s.layers.create(ctx, cat, layerSpec{
		Workspace:    req.WorkspaceName,
		Store:        req.StoreName,
		Layer:        req.LayerName,
		ResourceID:   req.ResourceID,
		ColGeography: req.ColGeography,
	})
	if err != nil {
		return nil, fmt.Errorf("creating layer %s: %w", req.LayerName, err)
	}
	s.logger.Info("layer created", "layer", layer.QualifiedName(), "resource_id", req.ResourceID)
	return layer, nil
}
