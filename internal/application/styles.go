package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// StyleService pushes edited style documents to every workspace that
// published a layer with them.
type StyleService struct {
	catalogs output.CatalogProvider
	ledger   output.PublicationLedger
	styles   output.StyleSource
	logger   *slog.Logger
}

// NewStyleService creates a new style service.
func NewStyleService(
	catalogs output.CatalogProvider,
	ledger output.PublicationLedger,
	styles output.StyleSource,
	logger *slog.Logger,
) *StyleService {
	return &StyleService{
		catalogs: catalogs,
		ledger:   ledger,
		styles:   styles,
		logger:   logger,
	}
}

// List returns the documents of the style source.
func (s *StyleService) List(ctx context.Context) ([]output.StyleObject, error) {
	return s.styles.List(ctx)
}

// Refresh uploads the style under key again to each catalog workspace
// whose publications use it and returns the number of workspaces updated.
func (s *StyleService) Refresh(ctx context.Context, key string) (int, error) {
	name := styleName(key)

	ok, err := s.styles.Exists(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("looking up style %s: %w", key, err)
	}
	if !ok {
		return 0, &domain.NotFoundError{Kind: domain.ErrStyleNotFound, Name: key}
	}

	pubs, err := s.ledger.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("listing publications: %w", err)
	}

	type target struct{ geoserver, workspace string }
	seen := make(map[target]bool)
	var errs []error
	for _, pub := range pubs {
		t := target{pub.GeoServer, pub.Workspace}
		if pub.Style != name || seen[t] {
			continue
		}
		seen[t] = true

		if err := s.upload(ctx, t.geoserver, t.workspace, key, name); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Info("style refreshed", "style", name, "workspace", t.workspace, "geoserver", t.geoserver)
	}

	return len(seen) - len(errs), errors.Join(errs...)
}

func (s *StyleService) upload(ctx context.Context, geoserver, workspace, key, name string) error {
	cat, err := s.catalogs.Catalog(geoserver)
	if err != nil {
		return err
	}

	r, err := s.styles.GetReader(ctx, key)
	if err != nil {
		return fmt.Errorf("reading style %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	if err := cat.UploadStyle(ctx, workspace, name, r); err != nil {
		return fmt.Errorf("uploading style %s to %s: %w", name, workspace, err)
	}
	return nil
}
