package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ngds/geobridge/internal/domain"
)

// envelope is the CKAN action response body.
type envelope struct {
	Help    string                 `json:"help"`
	Success bool                   `json:"success"`
	Result  interface{}            `json:"result,omitempty"`
	Error   map[string]interface{} `json:"error,omitempty"`
}

func (s *Server) writeEnvelope(w http.ResponseWriter, r *http.Request, status int, env envelope) {
	env.Help = helpURL(r)
	if env.Success && env.Result == nil {
		// CKAN reports actions without a return value as "result": null.
		s.writeJSON(w, status, map[string]interface{}{
			"help":    env.Help,
			"success": true,
			"result":  nil,
		})
		return
	}
	s.writeJSON(w, status, env)
}

func helpURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/api/3/action/help_show?name=" + mux.Vars(r)["action"]
}

// writeActionError maps an error to a CKAN error body and status.
func (s *Server) writeActionError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("action error",
			"action", mux.Vars(r)["action"],
			"request_id", RequestID(r.Context()),
			"error", err,
		)
	}
	s.writeEnvelope(w, r, status, envelope{Success: false, Error: body})
}

func errorBody(err error) (int, map[string]interface{}) {
	var (
		ves      domain.ValidationErrors
		ve       *domain.ValidationError
		upstream *domain.UpstreamError
	)

	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, map[string]interface{}{
			"__type":  "Bad request",
			"message": err.Error(),
		}
	case errors.As(err, &ves):
		body := map[string]interface{}{"__type": "Validation Error"}
		for field, msgs := range ves.Fields() {
			body[field] = msgs
		}
		return http.StatusConflict, body
	case errors.As(err, &ve):
		return http.StatusConflict, map[string]interface{}{
			"__type": "Validation Error",
			ve.Field: []string{ve.Message},
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusConflict, map[string]interface{}{
			"__type":  "Validation Error",
			"message": err.Error(),
		}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, map[string]interface{}{
			"__type":  "Not Found Error",
			"message": err.Error(),
		}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, map[string]interface{}{
			"__type":  "Authorization Error",
			"message": err.Error(),
		}
	case errors.As(err, &upstream):
		return http.StatusBadGateway, map[string]interface{}{
			"__type":  "GeoServer Error",
			"message": err.Error(),
			"status":  upstream.Status,
		}
	default:
		return http.StatusInternalServerError, map[string]interface{}{
			"__type":  "Internal Server Error",
			"message": "Internal Server Error",
		}
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
