package geoserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// fakeGeoServer records requests and answers from a route table keyed by
// "METHOD path".
type fakeGeoServer struct {
	mu       sync.Mutex
	routes   map[string]fakeResponse
	requests []recordedRequest
}

type fakeResponse struct {
	status int
	body   string
}

type recordedRequest struct {
	method      string
	path        string
	query       string
	contentType string
	user        string
	body        string
}

func newFakeGeoServer(t *testing.T) (*fakeGeoServer, *httptest.Server) {
	t.Helper()
	f := &fakeGeoServer{routes: make(map[string]fakeResponse)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGeoServer) on(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fakeResponse{status: status, body: body}
}

func (f *fakeGeoServer) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.method == method && r.path == path {
			n++
		}
	}
	return n
}

func (f *fakeGeoServer) last(method, path string) (recordedRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].method == method && f.requests[i].path == path {
			return f.requests[i], true
		}
	}
	return recordedRequest{}, false
}

func (f *fakeGeoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	user, _, _ := r.BasicAuth()

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method:      r.Method,
		path:        r.URL.Path,
		query:       r.URL.RawQuery,
		contentType: r.Header.Get("Content-Type"),
		user:        user,
		body:        string(body),
	})
	resp, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.Error(w, "No such resource", http.StatusNotFound)
		return
	}
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		URL:      baseURL + "/geoserver/rest",
		Username: "admin",
		Password: "geoserver",
	}, &output.NoOpMetrics{}, testLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{}, &output.NoOpMetrics{}, slog.Default())
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "geoserver.url", cfgErr.Field)
}

func TestGetWorkspace(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	f.on(http.MethodGet, "/geoserver/rest/namespaces/NGDS.json", http.StatusOK,
		`{"namespace":{"prefix":"NGDS","uri":"http://localhost:5000/ngds"}}`)
	c := newTestClient(t, srv.URL)

	ws, err := c.GetWorkspace(context.Background(), "NGDS")
	require.NoError(t, err)
	assert.Equal(t, "NGDS", ws.Name)
	assert.Equal(t, "http://localhost:5000/ngds", ws.URI)

	req, ok := f.last(http.MethodGet, "/geoserver/rest/namespaces/NGDS.json")
	require.True(t, ok)
	assert.Equal(t, "admin", req.user)
}

func TestGetWorkspaceNotFound(t *testing.T) {
	_, srv := newFakeGeoServer(t)
	c := newTestClient(t, srv.URL)

	_, err := c.GetWorkspace(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrWorkspaceNotFound))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestLookupsAreCached(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	path := "/geoserver/rest/layers/NGDS:wells.json"
	f.on(http.MethodGet, path, http.StatusOK, `{"layer":{"name":"wells","type":"VECTOR"}}`)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.GetLayer(ctx, "NGDS", "wells")
	require.NoError(t, err)
	_, err = c.GetLayer(ctx, "NGDS", "wells")
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(http.MethodGet, path), "second lookup should be served from cache")

	c.ClearCache()
	_, err = c.GetLayer(ctx, "NGDS", "wells")
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(http.MethodGet, path))
}

func TestNotFoundIsNotCached(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	path := "/geoserver/rest/workspaces/NGDS/datastores/datastore.json"

	_, err := c.GetStore(ctx, "NGDS", "datastore")
	require.ErrorIs(t, err, domain.ErrStoreNotFound)

	f.on(http.MethodGet, path, http.StatusOK,
		`{"dataStore":{"name":"datastore","type":"PostGIS","enabled":true,"workspace":{"name":"NGDS"},`+
			`"connectionParameters":{"entry":[{"@key":"host","$":"db"},{"@key":"port","$":"5432"},{"@key":"dbtype","$":"postgis"}]}}}`)

	store, err := c.GetStore(ctx, "NGDS", "datastore")
	require.NoError(t, err)
	assert.Equal(t, "datastore", store.Name)
	assert.Equal(t, "NGDS", store.Workspace)
	assert.Equal(t, "db", store.Connection.Host)
	assert.Equal(t, "postgis", store.Connection.DBType)
	assert.Equal(t, 2, f.count(http.MethodGet, path))
}

func TestUpstreamError(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	f.on(http.MethodGet, "/geoserver/rest/workspaces/NGDS/datastores/datastore.json",
		http.StatusInternalServerError, "java.lang.NullPointerException")
	c := newTestClient(t, srv.URL)

	_, err := c.GetStore(context.Background(), "NGDS", "datastore")
	require.Error(t, err)

	var upErr *domain.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusInternalServerError, upErr.Status)
	assert.Equal(t, http.MethodGet, upErr.Method)
	assert.Contains(t, upErr.Body, "NullPointerException")
	assert.False(t, errors.Is(err, domain.ErrNotFound), "a 500 must not look like not-found")
}

func TestCreateWorkspace(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	f.on(http.MethodPost, "/geoserver/rest/namespaces", http.StatusCreated, "NGDS")
	c := newTestClient(t, srv.URL)

	ws, err := c.CreateWorkspace(context.Background(), "NGDS", "http://localhost:5000/ngds")
	require.NoError(t, err)
	assert.Equal(t, "NGDS", ws.Name)

	req, ok := f.last(http.MethodPost, "/geoserver/rest/namespaces")
	require.True(t, ok)
	assert.Equal(t, contentTypeJSON, req.contentType)
	assert.JSONEq(t, `{"namespace":{"prefix":"NGDS","uri":"http://localhost:5000/ngds"}}`, req.body)
}

func TestMutationsLogBelowInfo(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	f.on(http.MethodPost, "/geoserver/rest/namespaces", http.StatusCreated, "NGDS")
	f.on(http.MethodPost, "/geoserver/rest/workspaces/NGDS/datastores", http.StatusCreated, "datastore")

	var buf bytes.Buffer
	c, err := NewClient(Config{URL: srv.URL + "/geoserver/rest"}, &output.NoOpMetrics{},
		slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctx := context.Background()
	_, err = c.CreateWorkspace(ctx, "NGDS", "http://localhost:5000/ngds")
	require.NoError(t, err)
	_, err = c.CreateDatastore(ctx, "NGDS", "datastore", domain.ConnectionParams{Host: "localhost"})
	require.NoError(t, err)

	assert.Empty(t, buf.String(), "creation is logged once, by the calling service")
}

func TestCreateDatastore(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	f.on(http.MethodPost, "/geoserver/rest/workspaces/NGDS/datastores", http.StatusCreated, "datastore")
	c := newTestClient(t, srv.URL)

	params := domain.ConnectionParams{
		Host: "localhost", Port: "5432", Database: "datastore",
		User: "ckanuser", Password: "pass", DBType: "postgis",
	}
	store, err := c.CreateDatastore(context.Background(), "NGDS", "datastore", params)
	require.NoError(t, err)
	assert.Equal(t, "datastore", store.Name)

	req, ok := f.last(http.MethodPost, "/geoserver/rest/workspaces/NGDS/datastores")
	require.True(t, ok)

	var body restDatastoreBody
	require.NoError(t, json.Unmarshal([]byte(req.body), &body))
	assert.Equal(t, "datastore", body.DataStore.Name)
	assert.True(t, body.DataStore.Enabled)
	got := entryMap(body.DataStore.ConnectionParameters)
	assert.Equal(t, "pass", got["passwd"])
	assert.Equal(t, "postgis", got["dbtype"])
	assert.Equal(t, "public", got["schema"])
}

func TestCreateFeatureTypeClearsCache(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	layerPath := "/geoserver/rest/layers/NGDS:wells.json"
	ftPath := "/geoserver/rest/workspaces/NGDS/datastores/datastore/featuretypes"
	f.on(http.MethodGet, layerPath, http.StatusOK, `{"layer":{"name":"wells"}}`)
	f.on(http.MethodPost, ftPath, http.StatusCreated, "wells")
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.GetLayer(ctx, "NGDS", "wells")
	require.NoError(t, err)

	def := &domain.FeatureTypeDefinition{
		Name:           "wells",
		SRID:           domain.SRIDWGS84,
		GeometryColumn: "geom",
		GeometryType:   "Point",
		SQL:            `SELECT "_id", "name", "geom" FROM "wells"`,
	}
	require.NoError(t, c.CreateFeatureType(ctx, "NGDS", "datastore", def))

	_, err = c.GetLayer(ctx, "NGDS", "wells")
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(http.MethodGet, layerPath))
}

func TestCreateFeatureTypeRejected(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	f.on(http.MethodPost, "/geoserver/rest/workspaces/NGDS/datastores/datastore/featuretypes",
		http.StatusInternalServerError, "Trying to create new feature type inside the store, but no attributes were specified")
	c := newTestClient(t, srv.URL)

	err := c.CreateFeatureType(context.Background(), "NGDS", "datastore", &domain.FeatureTypeDefinition{Name: "wells", SRID: 4326})
	var upErr *domain.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusInternalServerError, upErr.Status)
}

func TestDeletesRecurseAndClearCache(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	wsPath := "/geoserver/rest/namespaces/NGDS.json"
	f.on(http.MethodGet, wsPath, http.StatusOK, `{"namespace":{"prefix":"NGDS","uri":"u"}}`)
	f.on(http.MethodDelete, "/geoserver/rest/workspaces/NGDS/datastores/datastore", http.StatusOK, "")
	f.on(http.MethodDelete, "/geoserver/rest/workspaces/NGDS/datastores/datastore/featuretypes/wells", http.StatusOK, "")
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.GetWorkspace(ctx, "NGDS")
	require.NoError(t, err)

	require.NoError(t, c.DeleteFeatureType(ctx, "NGDS", "datastore", "wells"))
	req, ok := f.last(http.MethodDelete, "/geoserver/rest/workspaces/NGDS/datastores/datastore/featuretypes/wells")
	require.True(t, ok)
	assert.Equal(t, "recurse=true", req.query)

	require.NoError(t, c.DeleteStore(ctx, "NGDS", "datastore", true))

	_, err = c.GetWorkspace(ctx, "NGDS")
	require.NoError(t, err)
	assert.Equal(t, 2, f.count(http.MethodGet, wsPath))
}

func TestDeleteMissingStore(t *testing.T) {
	_, srv := newFakeGeoServer(t)
	c := newTestClient(t, srv.URL)

	err := c.DeleteStore(context.Background(), "NGDS", "nope", true)
	assert.ErrorIs(t, err, domain.ErrStoreNotFound)
}

func TestUploadStyle(t *testing.T) {
	tests := []struct {
		name       string
		exists     bool
		wantMethod string
		wantPath   string
	}{
		{"new style is posted", false, http.MethodPost, "/geoserver/rest/workspaces/NGDS/styles"},
		{"existing style is replaced", true, http.MethodPut, "/geoserver/rest/workspaces/NGDS/styles/wells"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFakeGeoServer(t)
			if tt.exists {
				f.on(http.MethodGet, "/geoserver/rest/workspaces/NGDS/styles/wells.json", http.StatusOK, `{"style":{"name":"wells"}}`)
			}
			f.on(http.MethodPost, "/geoserver/rest/workspaces/NGDS/styles", http.StatusCreated, "wells")
			f.on(http.MethodPut, "/geoserver/rest/workspaces/NGDS/styles/wells", http.StatusOK, "")
			c := newTestClient(t, srv.URL)

			err := c.UploadStyle(context.Background(), "NGDS", "wells", strings.NewReader("<StyledLayerDescriptor/>"))
			require.NoError(t, err)

			req, ok := f.last(tt.wantMethod, tt.wantPath)
			require.True(t, ok, "expected %s %s", tt.wantMethod, tt.wantPath)
			assert.Equal(t, contentTypeSLD, req.contentType)
			assert.Equal(t, "<StyledLayerDescriptor/>", req.body)
			if tt.wantMethod == http.MethodPost {
				assert.Equal(t, "name=wells", req.query)
			}
		})
	}
}

func TestSetDefaultStyle(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	f.on(http.MethodPut, "/geoserver/rest/layers/NGDS:wells", http.StatusOK, "")
	c := newTestClient(t, srv.URL)

	require.NoError(t, c.SetDefaultStyle(context.Background(), "NGDS", "wells", "points"))

	req, ok := f.last(http.MethodPut, "/geoserver/rest/layers/NGDS:wells")
	require.True(t, ok)
	assert.JSONEq(t, `{"layer":{"defaultStyle":{"name":"NGDS:points"}}}`, req.body)
}

func TestRequestAndPing(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	f.on(http.MethodGet, "/geoserver/rest/about/version.json", http.StatusOK, `{"about":{}}`)
	f.on(http.MethodGet, "/geoserver/rest/workspaces.json", http.StatusOK, `{"workspaces":""}`)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	body, err := c.Request(ctx, http.MethodGet, "workspaces.json", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"workspaces":""}`, string(body))
}

func TestGetLayerStoreFromHref(t *testing.T) {
	f, srv := newFakeGeoServer(t)
	f.on(http.MethodGet, "/geoserver/rest/layers/NGDS:wells.json", http.StatusOK,
		`{"layer":{"name":"wells","type":"VECTOR","defaultStyle":{"name":"point"},`+
			`"resource":{"@class":"featureType","name":"NGDS:wells",`+
			`"href":"http://localhost:8080/geoserver/rest/workspaces/NGDS/datastores/datastore/featuretypes/wells.json"}}}`)
	c := newTestClient(t, srv.URL)

	layer, err := c.GetLayer(context.Background(), "NGDS", "wells")
	require.NoError(t, err)
	assert.Equal(t, "wells", layer.Name)
	assert.Equal(t, "NGDS", layer.Workspace)
	assert.Equal(t, "datastore", layer.Store)
	assert.Equal(t, "point", layer.DefaultStyle)
	assert.Equal(t, "NGDS:wells", layer.QualifiedName())
}

func TestStoreFromHref(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"http://h/geoserver/rest/workspaces/NGDS/datastores/datastore/featuretypes/wells.json", "datastore"},
		{"http://h/geoserver/rest/workspaces/NGDS/coveragestores/dem/coverages/dem.json", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, storeFromHref(tt.href), tt.href)
	}
}

func TestNewFeatureTypeBody(t *testing.T) {
	def := &domain.FeatureTypeDefinition{
		Name:           "wells",
		Title:          "wells",
		SRID:           domain.SRIDWGS84,
		GeometryColumn: "geom",
		GeometryType:   "Point",
		KeyColumn:      "_id",
		SQL:            `SELECT "_id", "depth", "geom" FROM "wells"`,
		Attributes: []domain.Attribute{
			{Name: "depth", Binding: "java.lang.Double", Nillable: true},
			{Name: "geom", Binding: "org.locationtech.jts.geom.Point", Nillable: true},
		},
		Extent: &geom.Extent{-120, 30, -100, 45},
	}

	data, err := json.Marshal(newFeatureTypeBody("NGDS", "datastore", def))
	require.NoError(t, err)

	var got map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	ft := got["featureType"]

	assert.Equal(t, "wells", ft["name"])
	assert.Equal(t, "EPSG:4326", ft["srs"])
	assert.Equal(t, true, ft["enabled"])
	assert.Equal(t, map[string]interface{}{"@class": "dataStore", "name": "NGDS:datastore"}, ft["store"])

	bbox := ft["nativeBoundingBox"].(map[string]interface{})
	assert.Equal(t, -120.0, bbox["minx"])
	assert.Equal(t, 45.0, bbox["maxy"])

	entry := ft["metadata"].(map[string]interface{})["entry"].(map[string]interface{})
	assert.Equal(t, virtualTableKey, entry["@key"])
	vt := entry["virtualTable"].(map[string]interface{})
	assert.Equal(t, def.SQL, vt["sql"])
	assert.Equal(t, "_id", vt["keyColumn"])
	assert.Equal(t, map[string]interface{}{"name": "geom", "type": "Point", "srid": 4326.0}, vt["geometry"])

	attrs := ft["attributes"].(map[string]interface{})["attribute"].([]interface{})
	require.Len(t, attrs, 2)
	assert.Equal(t, "java.lang.Double", attrs[0].(map[string]interface{})["binding"])
}

func TestNewFeatureTypeBodyWithoutExtent(t *testing.T) {
	body := newFeatureTypeBody("NGDS", "datastore", &domain.FeatureTypeDefinition{Name: "empty", SRID: 4326})
	assert.Nil(t, body.FeatureType.NativeBoundingBox)
	assert.Nil(t, body.FeatureType.Attributes)
}

func TestProviderMemoizesClients(t *testing.T) {
	p := NewProvider(Config{URL: "http://localhost:8080/geoserver/rest"},
		[]Server{{URL: "http://maps.example.org/geoserver/rest/"}},
		&output.NoOpMetrics{}, testLogger())
	t.Cleanup(p.Close)

	def1, err := p.Catalog("")
	require.NoError(t, err)
	def2, err := p.Catalog("http://localhost:8080/geoserver/rest/")
	require.NoError(t, err)
	assert.Same(t, def1, def2)

	other, err := p.Catalog("http://maps.example.org/geoserver/rest")
	require.NoError(t, err)
	assert.NotSame(t, def1, other)
	assert.Equal(t, "http://maps.example.org/geoserver/rest", other.BaseURL())
}

func TestProviderRefusesUnknownServers(t *testing.T) {
	var hits int
	var mu sync.Mutex
	elsewhere := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(elsewhere.Close)

	p := NewProvider(Config{URL: "http://geoserver.internal:8080/geoserver/rest", Username: "admin", Password: "geoserver"},
		nil, &output.NoOpMetrics{}, testLogger())
	t.Cleanup(p.Close)

	for _, u := range []string{elsewhere.URL, "http://a.example.org/rest", "http://b.example.org/rest", "::bad"} {
		_, err := p.Catalog(u)
		require.Error(t, err, u)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "geoserver", ve.Field)
	}

	mu.Lock()
	assert.Zero(t, hits)
	mu.Unlock()
	assert.Empty(t, p.clients)
}

func TestProviderUsesPerServerCredentials(t *testing.T) {
	auths := make(chan string, 2)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"about":{"resource":[]}}`)
	})
	primary := httptest.NewServer(handler)
	t.Cleanup(primary.Close)
	secondary := httptest.NewServer(handler)
	t.Cleanup(secondary.Close)

	p := NewProvider(Config{URL: primary.URL, Username: "admin", Password: "geoserver"},
		[]Server{{URL: secondary.URL, Username: "reader", Password: "maps"}},
		&output.NoOpMetrics{}, testLogger())
	t.Cleanup(p.Close)

	def, err := p.Catalog("")
	require.NoError(t, err)
	_ = def.Ping(context.Background())
	assert.Equal(t, basicAuth("admin", "geoserver"), <-auths)

	sec, err := p.Catalog(secondary.URL)
	require.NoError(t, err)
	_ = sec.Ping(context.Background())
	assert.Equal(t, basicAuth("reader", "maps"), <-auths)
}

func basicAuth(user, pass string) string {
	r, _ := http.NewRequest(http.MethodGet, "http://x", nil)
	r.SetBasicAuth(user, pass)
	return r.Header.Get("Authorization")
}
