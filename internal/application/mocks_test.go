package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-spatial/geom"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// point is a computed geometry value.
type point struct{ X, Y float64 }

// mockTable is a datastore table with its rows.
type mockTable struct {
	fields []domain.Field
	rows   []map[string]interface{}
}

// mockDatastore implements output.Datastore for testing.
type mockDatastore struct {
	mu          sync.Mutex
	tables      map[string]*mockTable
	extent      *geom.Extent
	connectErr  error
	existsErr   error
	updateErr   error
	pingErr     error
	connections int
	open        int
	addCalls    int
	updateCalls int
}

func newMockDatastore() *mockDatastore {
	return &mockDatastore{tables: make(map[string]*mockTable)}
}

func (m *mockDatastore) addTable(id string, fields []domain.Field, rows ...map[string]interface{}) {
	m.tables[id] = &mockTable{fields: fields, rows: rows}
}

func (m *mockDatastore) Connect(_ context.Context, fn func(conn output.DatastoreConn) error) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.mu.Lock()
	m.connections++
	m.open++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.open--
		m.mu.Unlock()
	}()
	return fn(&mockConn{ds: m})
}

func (m *mockDatastore) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *mockDatastore) Close() error {
	return nil
}

type mockConn struct {
	ds *mockDatastore
}

func (c *mockConn) table(id string) (*mockTable, error) {
	t, ok := c.ds.tables[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: domain.ErrResourceNotFound, Name: id}
	}
	return t, nil
}

func (c *mockConn) ResourceExists(_ context.Context, id string) (bool, error) {
	if c.ds.existsErr != nil {
		return false, c.ds.existsErr
	}
	_, ok := c.ds.tables[id]
	return ok, nil
}

func (c *mockConn) Fields(_ context.Context, id string) ([]domain.Field, error) {
	t, err := c.table(id)
	if err != nil {
		return nil, err
	}
	return append([]domain.Field(nil), t.fields...), nil
}

func (c *mockConn) AddGeometryColumn(_ context.Context, id, column string, _ int) error {
	t, err := c.table(id)
	if err != nil {
		return err
	}
	c.ds.addCalls++
	t.fields = append(t.fields, domain.Field{ID: column, Type: "geometry"})
	return nil
}

func (c *mockConn) UpdateGeometry(_ context.Context, id string, cols output.GeometryColumns, _ int) (int64, error) {
	t, err := c.table(id)
	if err != nil {
		return 0, err
	}
	c.ds.updateCalls++
	if c.ds.updateErr != nil {
		return 0, c.ds.updateErr
	}
	for _, row := range t.rows {
		lon, _ := row[cols.Longitude].(float64)
		lat, _ := row[cols.Latitude].(float64)
		row[cols.Geometry] = point{X: lon, Y: lat}
	}
	return int64(len(t.rows)), nil
}

func (c *mockConn) TableInfo(_ context.Context, id string) (*domain.TableInfo, error) {
	if _, err := c.table(id); err != nil {
		return nil, err
	}
	return &domain.TableInfo{Schema: "public", Name: id, Owner: "ckanuser"}, nil
}

func (c *mockConn) Extent(_ context.Context, id, _ string) (*geom.Extent, error) {
	if _, err := c.table(id); err != nil {
		return nil, err
	}
	return c.ds.extent, nil
}

// mockCatalog implements output.Catalog for testing.
type mockCatalog struct {
	url        string
	workspaces map[string]*domain.Workspace
	stores     map[string]*domain.Store
	layers     map[string]*domain.Layer
	styles     map[string]string

	getStoreErr    error
	getLayerErr    error
	createLayerErr error

	calls        []string
	featureTypes []*domain.FeatureTypeDefinition
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		url:        "http://localhost:8080/geoserver/rest",
		workspaces: make(map[string]*domain.Workspace),
		stores:     make(map[string]*domain.Store),
		layers:     make(map[string]*domain.Layer),
		styles:     make(map[string]string),
	}
}

func (m *mockCatalog) called(name string) int {
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *mockCatalog) BaseURL() string { return m.url }

func (m *mockCatalog) GetWorkspace(_ context.Context, name string) (*domain.Workspace, error) {
	m.calls = append(m.calls, "GetWorkspace")
	if ws, ok := m.workspaces[name]; ok {
		return ws, nil
	}
	return nil, &domain.NotFoundError{Kind: domain.ErrWorkspaceNotFound, Name: name}
}

func (m *mockCatalog) CreateWorkspace(_ context.Context, name, uri string) (*domain.Workspace, error) {
	m.calls = append(m.calls, "CreateWorkspace")
	ws := &domain.Workspace{Name: name, URI: uri}
	m.workspaces[name] = ws
	return ws, nil
}

func (m *mockCatalog) DeleteWorkspace(_ context.Context, name string, _ bool) error {
	m.calls = append(m.calls, "DeleteWorkspace")
	if _, ok := m.workspaces[name]; !ok {
		return &domain.NotFoundError{Kind: domain.ErrWorkspaceNotFound, Name: name}
	}
	delete(m.workspaces, name)
	return nil
}

func (m *mockCatalog) GetStore(_ context.Context, ws, name string) (*domain.Store, error) {
	m.calls = append(m.calls, "GetStore")
	if m.getStoreErr != nil {
		return nil, m.getStoreErr
	}
	if s, ok := m.stores[ws+":"+name]; ok {
		return s, nil
	}
	return nil, &domain.NotFoundError{Kind: domain.ErrStoreNotFound, Name: name}
}

func (m *mockCatalog) CreateDatastore(_ context.Context, ws, name string, params domain.ConnectionParams) (*domain.Store, error) {
	m.calls = append(m.calls, "CreateDatastore")
	s := &domain.Store{Name: name, Workspace: ws, Type: "PostGIS", Enabled: true, Connection: params}
	m.stores[ws+":"+name] = s
	return s, nil
}

func (m *mockCatalog) DeleteStore(_ context.Context, ws, name string, _ bool) error {
	m.calls = append(m.calls, "DeleteStore")
	if _, ok := m.stores[ws+":"+name]; !ok {
		return &domain.NotFoundError{Kind: domain.ErrStoreNotFound, Name: name}
	}
	delete(m.stores, ws+":"+name)
	return nil
}

func (m *mockCatalog) GetLayer(_ context.Context, ws, name string) (*domain.Layer, error) {
	m.calls = append(m.calls, "GetLayer")
	if m.getLayerErr != nil {
		return nil, m.getLayerErr
	}
	if l, ok := m.layers[ws+":"+name]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, &domain.NotFoundError{Kind: domain.ErrLayerNotFound, Name: name}
}

func (m *mockCatalog) CreateFeatureType(_ context.Context, ws, store string, def *domain.FeatureTypeDefinition) error {
	m.calls = append(m.calls, "CreateFeatureType")
	if m.createLayerErr != nil {
		return m.createLayerErr
	}
	m.featureTypes = append(m.featureTypes, def)
	m.layers[ws+":"+def.Name] = &domain.Layer{Name: def.Name, Workspace: ws, Store: store, Type: "VECTOR"}
	return nil
}

func (m *mockCatalog) DeleteFeatureType(_ context.Context, ws, _, name string) error {
	m.calls = append(m.calls, "DeleteFeatureType")
	if _, ok := m.layers[ws+":"+name]; !ok {
		return &domain.NotFoundError{Kind: domain.ErrLayerNotFound, Name: name}
	}
	delete(m.layers, ws+":"+name)
	return nil
}

func (m *mockCatalog) UploadStyle(_ context.Context, ws, name string, sld io.Reader) error {
	m.calls = append(m.calls, "UploadStyle")
	b, err := io.ReadAll(sld)
	if err != nil {
		return err
	}
	m.styles[ws+":"+name] = string(b)
	return nil
}

func (m *mockCatalog) SetDefaultStyle(_ context.Context, ws, layer, style string) error {
	m.calls = append(m.calls, "SetDefaultStyle")
	l, ok := m.layers[ws+":"+layer]
	if !ok {
		return &domain.NotFoundError{Kind: domain.ErrLayerNotFound, Name: layer}
	}
	l.DefaultStyle = ws + ":" + style
	return nil
}

func (m *mockCatalog) Request(_ context.Context, _, _ string, _ []byte, _ http.Header) ([]byte, error) {
	return nil, nil
}

func (m *mockCatalog) Ping(_ context.Context) error {
	return nil
}

func (m *mockCatalog) ClearCache() {}

// mockProvider implements output.CatalogProvider for testing.
type mockProvider struct {
	catalogs map[string]*mockCatalog
	def      *mockCatalog
	err      error
	asked    []string
}

func newMockProvider(def *mockCatalog) *mockProvider {
	return &mockProvider{catalogs: map[string]*mockCatalog{}, def: def}
}

func (p *mockProvider) Catalog(baseURL string) (output.Catalog, error) {
	p.asked = append(p.asked, baseURL)
	if p.err != nil {
		return nil, p.err
	}
	if baseURL == "" {
		return p.def, nil
	}
	c, ok := p.catalogs[baseURL]
	if !ok {
		c = newMockCatalog()
		c.url = baseURL
		p.catalogs[baseURL] = c
	}
	return c, nil
}

// mockLedger implements output.PublicationLedger for testing.
type mockLedger struct {
	pubs      []domain.Publication
	recordErr error
}

func (m *mockLedger) Record(_ context.Context, pub domain.Publication) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.pubs = append(m.pubs, pub)
	return nil
}

func (m *mockLedger) List(_ context.Context, resourceID string) ([]domain.Publication, error) {
	out := []domain.Publication{}
	for _, p := range m.pubs {
		if resourceID == "" || p.ResourceID == resourceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockLedger) Remove(_ context.Context, geoserver, workspace, layer string) error {
	for i, p := range m.pubs {
		if p.GeoServer == geoserver && p.Workspace == workspace && p.Layer == layer {
			m.pubs = append(m.pubs[:i], m.pubs[i+1:]...)
			return nil
		}
	}
	return &domain.NotFoundError{Kind: domain.ErrPublicationNotFound, Name: layer}
}

func (m *mockLedger) Close() error {
	return nil
}

// mockStyles implements output.StyleSource for testing.
type mockStyles struct {
	styles map[string]string
}

func (m *mockStyles) List(_ context.Context) ([]output.StyleObject, error) {
	out := make([]output.StyleObject, 0, len(m.styles))
	for k, v := range m.styles {
		out = append(out, output.StyleObject{Key: k, Size: int64(len(v))})
	}
	return out, nil
}

func (m *mockStyles) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	s, ok := m.styles[key]
	if !ok {
		return nil, fmt.Errorf("style %s: %w", key, domain.ErrStyleNotFound)
	}
	return io.NopCloser(bytes.NewBufferString(s)), nil
}

func (m *mockStyles) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.styles[key]
	return ok, nil
}

// mockAuthorizer implements output.Authorizer for testing. It denies the
// listed actions.
type mockAuthorizer struct {
	deny    map[string]bool
	checked []string
}

func (m *mockAuthorizer) CheckAccess(_ context.Context, _ domain.Principal, action, _ string) error {
	m.checked = append(m.checked, action)
	if m.deny[action] {
		return fmt.Errorf("%s: %w", action, domain.ErrForbidden)
	}
	return nil
}
