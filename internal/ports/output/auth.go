package output

import (
	"context"

	"github.com/ngds/geobridge/internal/domain"
)

// Authorizer decides whether a principal may run an action.
type Authorizer interface {
	// CheckAccess returns an error wrapping domain.ErrForbidden if the
	// principal may not run action on resourceID.
	CheckAccess(ctx context.Context, principal domain.Principal, action, resourceID string) error
}
