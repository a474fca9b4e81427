package auth

import (
	"context"
	"fmt"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// Wildcard grants an action to every authenticated user.
const Wildcard = "*"

// Authorizer grants actions to principals. Sysadmins may run every action;
// other users need an explicit grant.
type Authorizer struct {
	grants map[string]map[string]bool
}

// NewAuthorizer creates an authorizer from an action to user-names map.
func NewAuthorizer(grants map[string][]string) *Authorizer {
	g := make(map[string]map[string]bool, len(grants))
	for action, users := range grants {
		set := make(map[string]bool, len(users))
		for _, u := range users {
			set[u] = true
		}
		g[action] = set
	}
	return &Authorizer{grants: g}
}

// CheckAccess implements output.Authorizer.
func (a *Authorizer) CheckAccess(_ context.Context, p domain.Principal, action, resourceID string) error {
	if p.Sysadmin {
		return nil
	}
	if p.Name != "" {
		users := a.grants[action]
		if users[p.Name] || users[Wildcard] {
			return nil
		}
	}

	who := p.Name
	if who == "" {
		who = "anonymous"
	}
	if resourceID != "" {
		return fmt.Errorf("user %s not authorized to run %s on %s: %w", who, action, resourceID, domain.ErrForbidden)
	}
	return fmt.Errorf("user %s not authorized to run %s: %w", who, action, domain.ErrForbidden)
}

var _ output.Authorizer = (*Authorizer)(nil)
