// Package geoserver provides a client for the GeoServer REST catalog.
package geoserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

const (
	contentTypeJSON = "application/json"
	contentTypeSLD  = "application/vnd.ogc.sld+xml"

	// maxErrorBody bounds the response body kept in an UpstreamError.
	maxErrorBody = 4096
)

// Config holds the settings of a catalog client.
type Config struct {
	URL      string        // REST endpoint, e.g. http://localhost:8080/geoserver/rest
	Username string        // Basic auth user
	Password string        // Basic auth password
	Timeout  time.Duration // HTTP timeout per request
	CacheTTL time.Duration // Lifetime of cached lookups
}

// Client implements the Catalog port against the GeoServer REST API.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	cache    *ristretto.Cache
	cacheTTL time.Duration
	metrics  output.MetricsCollector
	logger   *slog.Logger
}

// NewClient creates a catalog client.
func NewClient(cfg Config, metrics output.MetricsCollector, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, &domain.ConfigError{Field: "geoserver.url", Message: "required"}
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, &domain.ConfigError{Field: "geoserver.url", Message: err.Error()}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating lookup cache: %w", err)
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		metrics:  metrics,
		logger:   logger.With("geoserver", cfg.URL),
	}, nil
}

// BaseURL returns the REST endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetWorkspace returns a workspace with its namespace URI.
func (c *Client) GetWorkspace(ctx context.Context, name string) (*domain.Workspace, error) {
	var body restNamespaceBody
	err := c.getJSON(ctx, "/namespaces/"+seg(name)+".json", &body)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrWorkspaceNotFound, name)
	}
	return &domain.Workspace{Name: body.Namespace.Prefix, URI: body.Namespace.URI}, nil
}

// CreateWorkspace creates a workspace through its namespace so the URI is set.
func (c *Client) CreateWorkspace(ctx context.Context, name, uri string) (*domain.Workspace, error) {
	body := restNamespaceBody{Namespace: restNamespace{Prefix: name, URI: uri}}
	if err := c.sendJSON(ctx, http.MethodPost, "/namespaces", body); err != nil {
		return nil, err
	}
	c.logger.Debug("workspace created", "workspace", name, "uri", uri)
	return &domain.Workspace{Name: name, URI: uri}, nil
}

// DeleteWorkspace deletes a workspace.
func (c *Client) DeleteWorkspace(ctx context.Context, name string, recurse bool) error {
	defer c.ClearCache()
	_, err := c.do(ctx, http.MethodDelete, "/workspaces/"+seg(name)+recurseQuery(recurse), nil, nil)
	if err != nil {
		return notFoundAs(err, domain.ErrWorkspaceNotFound, name)
	}
	c.logger.Debug("workspace deleted", "workspace", name)
	return nil
}

// GetStore returns a datastore of a workspace.
func (c *Client) GetStore(ctx context.Context, workspace, name string) (*domain.Store, error) {
	var body restDatastoreBody
	err := c.getJSON(ctx, storePath(workspace, name)+".json", &body)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrStoreNotFound, name)
	}
	return body.DataStore.toDomain(workspace), nil
}

// CreateDatastore registers a database store in a workspace.
func (c *Client) CreateDatastore(ctx context.Context, workspace, name string, params domain.ConnectionParams) (*domain.Store, error) {
	body := restDatastoreBody{DataStore: restDatastore{
		Name:                 name,
		Type:                 "PostGIS",
		Enabled:              true,
		Workspace:            &restName{Name: workspace},
		ConnectionParameters: &restEntryList{Entry: entries(params.Entries())},
	}}
	if err := c.sendJSON(ctx, http.MethodPost, "/workspaces/"+seg(workspace)+"/datastores", body); err != nil {
		return nil, notFoundAs(err, domain.ErrWorkspaceNotFound, workspace)
	}
	c.logger.Debug("store created", "workspace", workspace, "store", name, "host", params.Host, "database", params.Database)
	return &domain.Store{
		Name:       name,
		Workspace:  workspace,
		Type:       "PostGIS",
		Enabled:    true,
		Connection: params,
	}, nil
}

// DeleteStore deletes a datastore.
func (c *Client) DeleteStore(ctx context.Context, workspace, name string, recurse bool) error {
	defer c.ClearCache()
	_, err := c.do(ctx, http.MethodDelete, storePath(workspace, name)+recurseQuery(recurse), nil, nil)
	if err != nil {
		return notFoundAs(err, domain.ErrStoreNotFound, name)
	}
	c.logger.Debug("store deleted", "workspace", workspace, "store", name)
	return nil
}

// GetLayer returns a layer by workspace and name.
func (c *Client) GetLayer(ctx context.Context, workspace, name string) (*domain.Layer, error) {
	var body restLayerBody
	err := c.getJSON(ctx, layerPath(workspace, name)+".json", &body)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrLayerNotFound, name)
	}
	if body.Layer.Name == "" {
		body.Layer.Name = name
	}
	return body.Layer.toDomain(workspace), nil
}

// CreateFeatureType publishes a feature type, which also creates its layer.
// The lookup cache is cleared afterwards.
func (c *Client) CreateFeatureType(ctx context.Context, workspace, store string, def *domain.FeatureTypeDefinition) error {
	body := newFeatureTypeBody(workspace, store, def)
	if err := c.sendJSON(ctx, http.MethodPost, storePath(workspace, store)+"/featuretypes", body); err != nil {
		return err
	}
	c.ClearCache()
	c.logger.Debug("feature type created", "workspace", workspace, "store", store, "layer", def.Name)
	return nil
}

// DeleteFeatureType deletes a feature type and its layer.
func (c *Client) DeleteFeatureType(ctx context.Context, workspace, store, name string) error {
	defer c.ClearCache()
	path := storePath(workspace, store) + "/featuretypes/" + seg(name) + recurseQuery(true)
	if _, err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return notFoundAs(err, domain.ErrLayerNotFound, name)
	}
	c.logger.Debug("feature type deleted", "workspace", workspace, "store", store, "layer", name)
	return nil
}

// UploadStyle creates the style or replaces its SLD body.
func (c *Client) UploadStyle(ctx context.Context, workspace, name string, sld io.Reader) error {
	data, err := io.ReadAll(sld)
	if err != nil {
		return fmt.Errorf("reading style %s: %w", name, err)
	}
	headers := http.Header{"Content-Type": []string{contentTypeSLD}}

	stylePath := "/workspaces/" + seg(workspace) + "/styles/" + seg(name)
	_, err = c.do(ctx, http.MethodGet, stylePath+".json", nil, nil)
	switch {
	case err == nil:
		_, err = c.do(ctx, http.MethodPut, stylePath, data, headers)
	case errors.Is(err, domain.ErrNotFound):
		q := url.Values{"name": []string{name}}
		_, err = c.do(ctx, http.MethodPost, "/workspaces/"+seg(workspace)+"/styles?"+q.Encode(), data, headers)
	}
	if err != nil {
		return err
	}
	c.logger.Debug("style uploaded", "workspace", workspace, "style", name)
	return nil
}

// SetDefaultStyle sets the default style of a layer.
func (c *Client) SetDefaultStyle(ctx context.Context, workspace, layer, style string) error {
	body := restLayerBody{Layer: restLayer{DefaultStyle: &restName{Name: workspace + ":" + style}}}
	if err := c.sendJSON(ctx, http.MethodPut, layerPath(workspace, layer), body); err != nil {
		return notFoundAs(err, domain.ErrLayerNotFound, layer)
	}
	c.ClearCache()
	return nil
}

// Request sends a raw request. Non-2xx answers are returned as errors.
func (c *Client) Request(ctx context.Context, method, path string, body []byte, headers http.Header) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.do(ctx, method, path, body, headers)
}

// Ping checks that GeoServer answers with its version.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/about/version.json", nil, nil)
	return err
}

// ClearCache drops every cached lookup.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// Close releases the cache.
func (c *Client) Close() {
	c.cache.Close()
}

// getJSON performs a cached GET and decodes the body into v.
func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	if cached, ok := c.cache.Get(path); ok {
		if data, ok := cached.([]byte); ok {
			return json.Unmarshal(data, v)
		}
	}

	data, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	c.cache.SetWithTTL(path, data, int64(len(data)), c.cacheTTL)
	c.cache.Wait()
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s body: %w", path, err)
	}
	_, err = c.do(ctx, method, path, data, http.Header{"Content-Type": []string{contentTypeJSON}})
	return err
}

// do sends one request. A 404 yields domain.ErrNotFound and any other
// non-2xx status a *domain.UpstreamError.
func (c *Client) do(ctx context.Context, method, path string, body []byte, headers http.Header) ([]byte, error) {
	start := time.Now()
	target := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", contentTypeJSON)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.IncCatalogRequests(method, 0)
		return nil, fmt.Errorf("geoserver %s %s: %w: %w", method, target, domain.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	c.metrics.IncCatalogRequests(method, resp.StatusCode)
	c.metrics.ObserveCatalogDuration(method, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("reading response of %s %s: %w", method, target, err)
	}

	c.logger.Debug("catalog request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	default:
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &domain.UpstreamError{
			Method: method,
			URL:    target,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}
}

// notFoundAs turns a bare not-found into a named one of the given kind.
func notFoundAs(err error, kind error, name string) error {
	if errors.Is(err, domain.ErrNotFound) {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return &domain.NotFoundError{Kind: kind, Name: name}
	}
	return err
}

func seg(s string) string {
	return url.PathEscape(s)
}

func storePath(workspace, store string) string {
	return "/workspaces/" + seg(workspace) + "/datastores/" + seg(store)
}

func layerPath(workspace, layer string) string {
	return "/layers/" + seg(workspace+":"+layer)
}

func recurseQuery(recurse bool) string {
	if recurse {
		return "?recurse=true"
	}
	return ""
}

var _ output.Catalog = (*Client)(nil)
