// Package main provides the entry point for the geobridge service and CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ngds/geobridge/internal/app"
	"github.com/ngds/geobridge/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

// logLevel is shared by every handler so a config change applies at once.
var logLevel = new(slog.LevelVar)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "geobridge",
	Short: "geobridge - CKAN datastore to GeoServer bridge",
	Long: `geobridge publishes CKAN datastore tables as GeoServer layers.

It serves a CKAN-style action API and offers the same actions on the
command line.

Features:
  - Point geometry columns computed from latitude/longitude columns
  - Workspace, store and layer creation on the GeoServer REST catalog
  - SLD styles from a local directory, AWS S3, Azure or HTTP
  - Ledger of published layers
  - JWT API tokens with per-action grants
  - TLS with automatic certificate management
  - Prometheus metrics`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the action API",
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("geobridge %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().String("geoserver-url", "", "GeoServer REST endpoint")
	rootCmd.PersistentFlags().String("datastore-url", "", "datastore write URL")

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "server host")
	serveCmd.Flags().Int("port", 5050, "server port")
	serveCmd.Flags().Bool("tls", false, "enable TLS")
	serveCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	serveCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")
	serveCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")
	serveCmd.Flags().Bool("watch-styles", false, "push edited local styles to the workspaces using them")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("geoserver.url", rootCmd.PersistentFlags().Lookup("geoserver-url"))
	_ = viper.BindPFlag("datastore.write_url", rootCmd.PersistentFlags().Lookup("datastore-url"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("tls.enabled", serveCmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls.domains", serveCmd.Flags().Lookup("tls-domains"))
	_ = viper.BindPFlag("tls.email", serveCmd.Flags().Lookup("tls-email"))
	_ = viper.BindPFlag("server.cors.allowed_origins", serveCmd.Flags().Lookup("cors"))
	_ = viper.BindPFlag("styles.watch", serveCmd.Flags().Lookup("watch-styles"))

	rootCmd.AddCommand(serveCmd, versionCmd)
	addActionCommands(rootCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)
	watchLogLevel(logger)

	logger.Info("starting geobridge",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"geoserver", cfg.GeoServer.URL,
		"styles", cfg.Styles.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	// Start returns nil after a graceful shutdown.
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address())
		if err := application.Start(ctx); err != nil {
			serverErr <- err
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		cancel()
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down server")
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

// watchLogLevel applies logging.level changes from the config file.
func watchLogLevel(logger *slog.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		level := parseLevel(viper.GetString("logging.level"))
		if level == logLevel.Level() {
			return
		}
		logLevel.Set(level)
		logger.Info("log level changed", "level", level.String(), "file", e.Name)
	})
	viper.WatchConfig()
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	logLevel.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
