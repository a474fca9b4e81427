package geoserver

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// Server is an additional GeoServer a caller may name, with its own login.
type Server struct {
	URL      string
	Username string
	Password string
}

// Provider hands out one client per known REST base URL: the default one
// and the configured extra servers. Any other URL is refused, so credentials
// only ever go to the server they belong to.
type Provider struct {
	mu      sync.Mutex
	def     string
	known   map[string]Config
	clients map[string]*Client
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewProvider creates a provider whose default client talks to cfg.URL.
// Extra servers share the default timeouts.
func NewProvider(cfg Config, servers []Server, metrics output.MetricsCollector, logger *slog.Logger) *Provider {
	p := &Provider{
		def:     normalizeURL(cfg.URL),
		known:   make(map[string]Config, len(servers)+1),
		clients: make(map[string]*Client),
		metrics: metrics,
		logger:  logger,
	}
	for _, s := range servers {
		sc := cfg
		sc.URL, sc.Username, sc.Password = normalizeURL(s.URL), s.Username, s.Password
		p.known[sc.URL] = sc
	}
	cfg.URL = p.def
	p.known[p.def] = cfg
	return p
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

// Catalog returns the client for baseURL, the default one if empty.
func (p *Provider) Catalog(baseURL string) (output.Catalog, error) {
	return p.client(baseURL)
}

func (p *Provider) client(baseURL string) (*Client, error) {
	key := normalizeURL(baseURL)
	if key == "" {
		key = p.def
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	cfg, ok := p.known[key]
	if !ok {
		return nil, &domain.ValidationError{
			Field:   "geoserver",
			Value:   baseURL,
			Message: "not a configured GeoServer",
		}
	}
	c, err := NewClient(cfg, p.metrics, p.logger)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	return c, nil
}

// Close releases every client.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, c := range p.clients {
		c.Close()
		delete(p.clients, key)
	}
}

var _ output.CatalogProvider = (*Provider)(nil)
