package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"net/http"
)

// checkStatus maps a health check outcome to its status code and word.
func checkStatus(ok bool, failed string) (int, string) {
	if ok {
		return http.StatusOK, "ok"
	}
	return http.StatusServiceUnavailable, failed
}

// healthCheck returns a handler answering {"status": ...} for a health check.
func (s *Server) healthCheck(check func(context.Context) bool, failed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, status := checkStatus(check(r.Context()), failed)
		s.writeJSON(w, code, map[string]string{"status": status})
	}
}

// handleHealth reports every component checked by the health service.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.services.Health.GetHealthDetails(r.Context())
	code, status := checkStatus(details.Healthy, "unhealthy")
	s.writeJSON(w, code, map[string]any{
		"status":     status,
		"ready":      details.Ready,
		"components": details.Components,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	doc, err := openAPIDocument()
	if err != nil {
		s.logger.Error("openapi document unavailable", "error", err)
		s.writeError(w, http.StatusInternalServerError, "OpenAPI document unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

// handleDocs serves a Swagger UI page reading /openapi.json.
func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}

const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>geobridge API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({url: "/openapi.json", dom_id: "#swagger-ui"});
  </script>
</body>
</html>
`
