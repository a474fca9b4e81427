package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// PublishService exposes spatialized resources as catalog layers and keeps
// the publication ledger.
type PublishService struct {
	catalogs   output.CatalogProvider
	layers     layerFactory
	ledger     output.PublicationLedger
	styles     output.StyleSource
	uriBase    string
	defaultWS  string
	defaultST  string
	defaultCon domain.StoreConnection
	instrumentation
}

// PublishServiceConfig holds configuration for the publish service.
type PublishServiceConfig struct {
	// NamespaceURIBase prefixes the namespace URI of created workspaces.
	NamespaceURIBase string
	// DefaultWorkspace and DefaultStore are used when a request names none.
	DefaultWorkspace string
	DefaultStore     string
	// StoreDefaults fill connection fields a request leaves empty.
	StoreDefaults domain.StoreConnection
}

// NewPublishService creates a new publish service. styles may be nil when
// no style source is configured.
func NewPublishService(
	catalogs output.CatalogProvider,
	datastore output.Datastore,
	ledger output.PublicationLedger,
	styles output.StyleSource,
	authz output.Authorizer,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg PublishServiceConfig,
) *PublishService {
	if cfg.NamespaceURIBase == "" {
		cfg.NamespaceURIBase = "http://localhost:5000"
	}

	return &PublishService{
		catalogs:        catalogs,
		layers:          layerFactory{datastore: datastore},
		ledger:          ledger,
		styles:          styles,
		uriBase:         strings.TrimRight(cfg.NamespaceURIBase, "/"),
		defaultWS:       cfg.DefaultWorkspace,
		defaultST:       cfg.DefaultStore,
		defaultCon:      cfg.StoreDefaults,
		instrumentation: instrumentation{authz: authz, metrics: metrics, logger: logger},
	}
}

// NamespaceURI returns the URI a workspace is created with.
func (s *PublishService) NamespaceURI(workspace string) string {
	return s.uriBase + "/" + strings.ToLower(workspace)
}

// Publish makes sure the workspace and store exist, creates the layer for
// the resource unless the catalog already has it, and records the
// publication. Nothing created along the way is undone on failure.
func (s *PublishService) Publish(ctx context.Context, req domain.ExposeRequest) (layer *domain.Layer, err error) {
	start := time.Now()
	defer func() { s.done(ctx, ActionExposeAsLayer, start, err) }()

	req.Normalize()
	s.fillNames(&req.WorkspaceName, &req.StoreName)
	fillConnection(&req.StoreConnection, s.defaultCon)
	if err := prepare(&req); err != nil {
		return nil, err
	}

	cat, err := s.catalogs.Catalog(req.GeoServer)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, ActionExposeAsLayer, req.ResourceID); err != nil {
		return nil, err
	}
	if err := s.checkStyle(ctx, req.Style); err != nil {
		return nil, err
	}

	if err := s.ensureWorkspace(ctx, cat, req.WorkspaceName); err != nil {
		return nil, err
	}
	if err := s.ensureStore(ctx, cat, req.WorkspaceName, req.StoreName, req.StoreConnection.Params()); err != nil {
		return nil, err
	}

	if layer, err = existing(ctx, cat, req.WorkspaceName, req.LayerName); err != nil {
		return nil, err
	}
	if layer != nil {
		s.logger.Info("layer already published",
			"resource_id", req.ResourceID,
			"layer", layer.QualifiedName(),
		)
		return layer, nil
	}

	layer, def, err := s.layers.create(ctx, cat, layerSpec{
		Workspace:    req.WorkspaceName,
		Store:        req.StoreName,
		Layer:        req.LayerName,
		ResourceID:   req.ResourceID,
		ColGeography: req.ColGeography,
	})
	if err != nil {
		return nil, err
	}

	var style string
	if req.Style != "" {
		if style, err = s.applyStyle(ctx, cat, req.WorkspaceName, req.LayerName, req.Style); err != nil {
			return nil, err
		}
		layer.DefaultStyle = req.WorkspaceName + ":" + style
	}

	pub := domain.Publication{
		ResourceID:     req.ResourceID,
		GeoServer:      cat.BaseURL(),
		Workspace:      req.WorkspaceName,
		Store:          req.StoreName,
		Layer:          req.LayerName,
		GeometryColumn: def.GeometryColumn,
		Style:          style,
		PublishedAt:    time.Now().UTC(),
	}
	if err := s.ledger.Record(ctx, pub); err != nil {
		return nil, fmt.Errorf("recording publication: %w", err)
	}

	s.logger.Info("layer published",
		"resource_id", req.ResourceID,
		"layer", layer.QualifiedName(),
		"geoserver", cat.BaseURL(),
	)
	return layer, nil
}

// RemoveExposedLayer deletes a published layer's feature type and its
// ledger entry.
func (s *PublishService) RemoveExposedLayer(ctx context.Context, req domain.RemoveExposedLayerRequest) (err error) {
	start := time.Now()
	defer func() { s.done(ctx, ActionRemoveExposedLayer, start, err) }()

	req.Normalize()
	s.fillNames(&req.WorkspaceName, &req.StoreName)
	if err := prepare(&req); err != nil {
		return err
	}

	cat, err := s.catalogs.Catalog(req.GeoServer)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, ActionRemoveExposedLayer, req.ResourceID); err != nil {
		return err
	}

	if err := cat.DeleteFeatureType(ctx, req.WorkspaceName, req.StoreName, req.LayerName); err != nil {
		return fmt.Errorf("removing layer %s:%s: %w", req.WorkspaceName, req.LayerName, err)
	}

	// The layer may predate the ledger.
	if err := s.ledger.Remove(ctx, cat.BaseURL(), req.WorkspaceName, req.LayerName); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("removing publication: %w", err)
	}

	s.logger.Info("layer removed", "resource_id", req.ResourceID, "layer", req.WorkspaceName+":"+req.LayerName)
	return nil
}

// ListExposedLayers lists recorded publications, optionally for one resource.
func (s *PublishService) ListExposedLayers(ctx context.Context, req domain.ListExposedLayersRequest) (pubs []domain.Publication, err error) {
	start := time.Now()
	defer func() { s.done(ctx, ActionListExposedLayers, start, err) }()

	if err := s.authorize(ctx, ActionListExposedLayers, req.ResourceID); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, req.ResourceID)
}

func (s *PublishService) ensureWorkspace(ctx context.Context, cat output.Catalog, name string) error {
	uri := s.NamespaceURI(name)
	_, created, err := workspaceFor(ctx, cat, name, uri)
	if created {
		s.logger.Info("workspace created", "workspace", name, "uri", uri)
	}
	return err
}

// ensureStore creates the store only when the catalog reports it missing.
func (s *PublishService) ensureStore(ctx context.Context, cat output.Catalog, workspace, name string, params domain.ConnectionParams) error {
	_, created, err := storeFor(ctx, cat, workspace, name, params)
	if created {
		s.logger.Info("store created", "workspace", workspace, "store", name, "host", params.Host, "database", params.Database)
	}
	return err
}

func (s *PublishService) checkStyle(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if s.styles == nil {
		return fieldError("style", "No style source is configured")
	}
	ok, err := s.styles.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("looking up style %s: %w", key, err)
	}
	if !ok {
		return fieldError("style", fmt.Sprintf("Style %q was not found", key))
	}
	return nil
}

// applyStyle uploads the style and makes it the layer's default. It returns
// the style's name in the workspace.
func (s *PublishService) applyStyle(ctx context.Context, cat output.Catalog, workspace, layer, key string) (string, error) {
	name := styleName(key)

	r, err := s.styles.GetReader(ctx, key)
	if err != nil {
		return "", fmt.Errorf("reading style %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	if err := cat.UploadStyle(ctx, workspace, name, r); err != nil {
		return "", fmt.Errorf("uploading style %s: %w", name, err)
	}
	if err := cat.SetDefaultStyle(ctx, workspace, layer, name); err != nil {
		return "", fmt.Errorf("setting default style of %s: %w", layer, err)
	}
	return name, nil
}

func styleName(key string) string {
	return strings.TrimSuffix(path.Base(key), path.Ext(key))
}

func (s *PublishService) fillNames(workspace, store *string) {
	if *workspace == "" {
		*workspace = s.defaultWS
	}
	if *store == "" {
		*store = s.defaultST
	}
}

// fillConnection copies configured store defaults into empty fields.
func fillConnection(c *domain.StoreConnection, d domain.StoreConnection) {
	set := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	set(&c.PgHost, d.PgHost)
	set(&c.PgPort, d.PgPort)
	set(&c.PgDB, d.PgDB)
	set(&c.PgUser, d.PgUser)
	set(&c.PgPassword, d.PgPassword)
	set(&c.DBType, d.DBType)
}
