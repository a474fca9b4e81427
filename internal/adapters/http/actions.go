package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/gorilla/mux"

	"github.com/ngds/geobridge/internal/application"
	"github.com/ngds/geobridge/internal/domain"
)

// actionFunc runs one action with the decoded request parameters.
type actionFunc func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// errBadRequest marks a body that is not a JSON object.
var errBadRequest = errors.New("bad request")

func (s *Server) registerActions() map[string]actionFunc {
	return map[string]actionFunc{
		application.ActionSpatialize: func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			var req domain.SpatializeRequest
			if err := decode(p, &req); err != nil {
				return nil, err
			}
			return s.services.Spatializer.Spatialize(ctx, req)
		},
		application.ActionExposeAsLayer: func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			var req domain.ExposeRequest
			if err := decode(p, &req); err != nil {
				return nil, err
			}
			return s.services.Publisher.Publish(ctx, req)
		},
		application.ActionRemoveExposedLayer: func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			var req domain.RemoveExposedLayerRequest
			if err := decode(p, &req); err != nil {
				return nil, err
			}
			return nil, s.services.Publisher.RemoveExposedLayer(ctx, req)
		},
		application.ActionListExposedLayers: func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			var req domain.ListExposedLayersRequest
			if err := decode(p, &req); err != nil {
				return nil, err
			}
			return s.services.Publisher.ListExposedLayers(ctx, req)
		},
		application.ActionCreateWorkspace: func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			var req domain.CreateWorkspaceRequest
			if err := decode(p, &req); err != nil {
				return nil, err
			}
			ws, err := s.services.Catalog.CreateWorkspace(ctx, req)
			if err != nil {
				return nil, err
			}
			return ws.Name, nil
		},
		application.ActionDeleteWorkspace: func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			var req domain.DeleteWorkspaceRequest
			if err := decode(p, &req); err != nil {
				return nil, err
			}
			return nil, s.services.Catalog.DeleteWorkspace(ctx, req)
		},
		application.ActionCreateStore: func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			var req domain.CreateStoreRequest
			if err := decode(p, &req); err != nil {
				return nil, err
			}
			store, err := s.services.Catalog.CreateStore(ctx, req)
			if err != nil {
				return nil, err
			}
			return store.Name, nil
		},
		application.ActionDeleteStore: func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			var req domain.DeleteStoreRequest
			if err := decode(p, &req); err != nil {
				return nil, err
			}
			return nil, s.services.Catalog.DeleteStore(ctx, req)
		},
		application.ActionCreateLayer: func(ctx context.Context, p map[string]interface{}) (interface{}, error) {
			var req domain.CreateLayerRequest
			if err := decode(p, &req); err != nil {
				return nil, err
			}
			return s.services.Catalog.CreateLayer(ctx, req)
		},
	}
}

// handleAction runs POST /api/3/action/{action}.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	name := mux.Vars(r)["action"]
	action, ok := s.actions[name]
	if !ok {
		s.writeEnvelope(w, r, http.StatusBadRequest, envelope{
			Success: false,
			Error: map[string]interface{}{
				"__type":  "Bad request - Action name not known",
				"message": fmt.Sprintf("Action name not known: %s", name),
			},
		})
		return
	}

	params, err := s.readParams(w, r)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}

	result, err := action(r.Context(), params)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}

	s.writeEnvelope(w, r, http.StatusOK, envelope{Success: true, Result: result})
}

// readParams reads the JSON object body of a POST, or the query string of a
// GET.
func (s *Server) readParams(w http.ResponseWriter, r *http.Request) (map[string]interface{}, error) {
	params := map[string]interface{}{}

	if r.Method == http.MethodGet {
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				params[k] = v[len(v)-1]
			}
		}
		return params, nil
	}

	body := io.Reader(r.Body)
	if s.config.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return params, nil
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("%w: JSON Error: %v", errBadRequest, err)
	}
	return params, nil
}

// decode copies action parameters onto a typed request. Values are weakly
// typed so that numbers and numeric strings are interchangeable.
func decode(params map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Squash:           true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return domain.ValidationErrors{{Field: "__input", Message: err.Error()}}
	}
	return nil
}
