package output

import (
	"context"

	"github.com/ngds/geobridge/internal/domain"
)

// PublicationLedger records which resources have been exposed as layers.
type PublicationLedger interface {
	// Record stores a publication, replacing one for the same catalog,
	// workspace and layer.
	Record(ctx context.Context, pub domain.Publication) error

	// List returns publications, all of them when resourceID is empty.
	List(ctx context.Context, resourceID string) ([]domain.Publication, error)

	// Remove deletes the publication of a layer.
	// It returns domain.ErrPublicationNotFound if there is none.
	Remove(ctx context.Context, geoserver, workspace, layer string) error

	// Close closes the ledger.
	Close() error
}
