// Package tls serves the action API over HTTPS with certificates managed
// by CertMagic.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/azure"
)

// Config holds TLS configuration.
type Config struct {
	Enabled  bool
	Domains  []string
	Email    string
	CacheDir string
	Staging  bool
	DNS      DNSConfig
}

// DNSConfig holds Azure DNS settings for DNS-01 challenges. When
// SubscriptionID is empty the HTTP-01 and TLS-ALPN challenges are used.
type DNSConfig struct {
	SubscriptionID    string
	ResourceGroupName string
	ClientID          string
}

// Validate checks that an enabled configuration can obtain certificates.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Domains) == 0 {
		return errors.New("tls enabled but no domains specified")
	}
	if c.Email == "" {
		return errors.New("tls enabled but no email specified")
	}
	if c.DNS.SubscriptionID != "" && c.DNS.ResourceGroupName == "" {
		return errors.New("tls dns: resource group is required with a subscription")
	}
	return nil
}

// Listener serves a handler over HTTP or, when enabled, HTTPS.
type Listener struct {
	config    Config
	server    *http.Server
	logger    *slog.Logger
	tlsConfig *tls.Config
}

// NewListener prepares a listener for server. The server's TLSConfig is
// replaced when TLS is enabled.
func NewListener(cfg Config, server *http.Server, logger *slog.Logger) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Listener{config: cfg, server: server, logger: logger}
	if !cfg.Enabled {
		return l, nil
	}

	magic := certmagic.NewDefault()
	if cfg.CacheDir != "" {
		magic.Storage = &certmagic.FileStorage{Path: cfg.CacheDir}
	}

	issuer := certmagic.ACMEIssuer{
		Agreed: true,
		Email:  cfg.Email,
	}
	if cfg.Staging {
		issuer.CA = certmagic.LetsEncryptStagingCA
	}
	if cfg.DNS.SubscriptionID != "" {
		issuer.DNS01Solver = &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{
				DNSProvider: &azure.Provider{
					SubscriptionId:    cfg.DNS.SubscriptionID,
					ResourceGroupName: cfg.DNS.ResourceGroupName,
					ClientId:          cfg.DNS.ClientID,
				},
			},
		}
	}
	magic.Issuers = []certmagic.Issuer{certmagic.NewACMEIssuer(magic, issuer)}

	l.tlsConfig = magic.TLSConfig()
	l.tlsConfig.NextProtos = append([]string{"h2", "http/1.1"}, l.tlsConfig.NextProtos...)
	server.TLSConfig = l.tlsConfig

	if err := magic.ManageAsync(context.Background(), cfg.Domains); err != nil {
		return nil, fmt.Errorf("managing certificates: %w", err)
	}

	return l, nil
}

// ListenAndServe serves until Shutdown. It returns nil after a graceful
// shutdown.
func (l *Listener) ListenAndServe() error {
	var err error
	if l.tlsConfig == nil {
		l.logger.Info("starting HTTP server (TLS disabled)", "address", l.server.Addr)
		err = l.server.ListenAndServe()
	} else {
		l.logger.Info("starting HTTPS server",
			"address", l.server.Addr,
			"domains", l.config.Domains,
			"dns_challenge", l.config.DNS.SubscriptionID != "",
		)
		err = l.server.ListenAndServeTLS("", "")
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (l *Listener) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return l.server.Shutdown(ctx)
}

// TLSConfig returns the TLS configuration, nil when TLS is disabled.
func (l *Listener) TLSConfig() *tls.Config {
	return l.tlsConfig
}
