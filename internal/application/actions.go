package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// Action names as exposed on the action API. Authorization grants refer to
// these names.
const (
	ActionSpatialize         = "datastore_spatialize"
	ActionExposeAsLayer      = "datastore_expose_as_layer"
	ActionRemoveExposedLayer = "datastore_remove_exposed_layer"
	ActionListExposedLayers  = "datastore_list_exposed_layers"
	ActionCreateWorkspace    = "geoserver_create_workspace"
	ActionDeleteWorkspace    = "geoserver_delete_workspace"
	ActionCreateStore        = "geoserver_create_store"
	ActionDeleteStore        = "geoserver_delete_store"
	ActionCreateLayer        = "geoserver_create_layer"
)

// Actions lists every action name.
var Actions = []string{
	ActionSpatialize,
	ActionExposeAsLayer,
	ActionRemoveExposedLayer,
	ActionListExposedLayers,
	ActionCreateWorkspace,
	ActionDeleteWorkspace,
	ActionCreateStore,
	ActionDeleteStore,
	ActionCreateLayer,
}

// instrumentation is shared by the services.
type instrumentation struct {
	authz   output.Authorizer
	metrics output.MetricsCollector
	logger  *slog.Logger
}

func (i instrumentation) authorize(ctx context.Context, action, resourceID string) error {
	return i.authz.CheckAccess(ctx, domain.PrincipalFrom(ctx), action, resourceID)
}

// done records the outcome of an action. Not-found and validation errors
// are the caller's, so they are logged at debug level.
func (i instrumentation) done(ctx context.Context, action string, start time.Time, err error) {
	duration := time.Since(start)
	i.metrics.IncActionCount(action, err == nil)
	i.metrics.ObserveActionDuration(action, duration)

	if err == nil {
		return
	}
	level := slog.LevelWarn
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrForbidden) {
		level = slog.LevelDebug
	}
	i.logger.Log(ctx, level, "action failed",
		"action", action,
		"user", domain.PrincipalFrom(ctx).Name,
		"duration", duration,
		"error", err,
	)
}

// datastoreErr turns a statement timeout into the validation error callers
// see. Other errors are returned unchanged.
func datastoreErr(err error) error {
	if errors.Is(err, domain.ErrQueryTimeout) {
		return domain.NewQueryTooLongError()
	}
	return err
}
