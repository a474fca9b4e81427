package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngds/geobridge/internal/adapters/auth"
	"github.com/ngds/geobridge/internal/app"
	"github.com/ngds/geobridge/internal/config"
	"github.com/ngds/geobridge/internal/domain"
)

// cliPrincipal runs command-line actions. Whoever can read the
// configuration already holds the datastore and catalog credentials.
var cliPrincipal = domain.Principal{Name: "cli", Sysadmin: true}

// runAction opens the application, runs fn as cliPrincipal and prints its
// result as JSON. Logs go to stderr.
func runAction(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) (interface{}, error)) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	ctx := domain.WithPrincipal(cmd.Context(), cliPrincipal)
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	result, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v interface{}) error {
	if v == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addActionCommands(root *cobra.Command) {
	root.AddCommand(
		spatializeCmd(),
		exposeCmd(),
		unexposeCmd(),
		layersCmd(),
		workspaceCmd(),
		storeCmd(),
		layerCmd(),
		stylesCmd(),
		tokenCmd(),
	)
}

func spatializeCmd() *cobra.Command {
	var req domain.SpatializeRequest
	cmd := &cobra.Command{
		Use:   "spatialize RESOURCE_ID",
		Short: "Compute a point geometry column from latitude and longitude columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ResourceID = args[0]
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.SpatializeService.Spatialize(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.ColLatitude, "lat", "latitude", "latitude column")
	cmd.Flags().StringVar(&req.ColLongitude, "lon", "longitude", "longitude column")
	cmd.Flags().StringVar(&req.ColGeography, "geom", "shape", "geometry column to add or update")
	return cmd
}

// layerTarget are the flags naming where a layer lives.
type layerTarget struct {
	geoserver string
	workspace string
	store     string
	layer     string
}

func (t *layerTarget) flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.geoserver, "geoserver", "", "GeoServer REST endpoint (default: configured)")
	cmd.Flags().StringVar(&t.workspace, "workspace", "", "workspace (default: configured)")
	cmd.Flags().StringVar(&t.store, "store", "", "store (default: configured)")
	cmd.Flags().StringVar(&t.layer, "layer", "", "layer name (default: the resource id)")
}

func exposeCmd() *cobra.Command {
	var (
		t           layerTarget
		colGeometry string
		style       string
	)
	cmd := &cobra.Command{
		Use:   "expose RESOURCE_ID",
		Short: "Publish a spatialized resource as a GeoServer layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.PublishService.Publish(ctx, domain.ExposeRequest{
					ResourceID:    args[0],
					GeoServer:     t.geoserver,
					WorkspaceName: t.workspace,
					StoreName:     t.store,
					LayerName:     t.layer,
					ColGeography:  colGeometry,
					Style:         style,
				})
			})
		},
	}
	t.flags(cmd)
	cmd.Flags().StringVar(&colGeometry, "col-geography", "", "geometry column (default: the first one)")
	cmd.Flags().StringVar(&style, "style", "", "SLD style key in the style source")
	return cmd
}

func unexposeCmd() *cobra.Command {
	var t layerTarget
	cmd := &cobra.Command{
		Use:   "unexpose RESOURCE_ID",
		Short: "Remove a layer published with expose",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return nil, a.PublishService.RemoveExposedLayer(ctx, domain.RemoveExposedLayerRequest{
					ResourceID:    args[0],
					GeoServer:     t.geoserver,
					WorkspaceName: t.workspace,
					StoreName:     t.store,
					LayerName:     t.layer,
				})
			})
		},
	}
	t.flags(cmd)
	return cmd
}

func layersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layers [RESOURCE_ID]",
		Short: "List published layers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req domain.ListExposedLayersRequest
			if len(args) == 1 {
				req.ResourceID = args[0]
			}
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.PublishService.ListExposedLayers(ctx, req)
			})
		},
	}

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Forget published layers that no longer exist on their GeoServer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Reconciler.Reconcile(ctx)
			})
		},
	}

	cmd.AddCommand(reconcile)
	return cmd
}

func workspaceCmd() *cobra.Command {
	var geoserver, uri string
	var recurse bool

	cmd := &cobra.Command{Use: "workspace", Short: "Manage GeoServer workspaces"}

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				req := domain.CreateWorkspaceRequest{GeoServer: geoserver, WorkspaceName: args[0], WorkspaceURI: uri}
				if req.WorkspaceURI == "" {
					req.WorkspaceURI = a.PublishService.NamespaceURI(args[0])
				}
				return a.CatalogService.CreateWorkspace(ctx, req)
			})
		},
	}
	create.Flags().StringVar(&uri, "uri", "", "namespace URI (default: derived from the name)")

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a workspace and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !recurse {
				return fmt.Errorf("deleting workspace %s removes all of its stores and layers, pass --recurse to confirm", args[0])
			}
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return nil, a.CatalogService.DeleteWorkspace(ctx, domain.DeleteWorkspaceRequest{GeoServer: geoserver, WorkspaceName: args[0]})
			})
		},
	}
	del.Flags().BoolVar(&recurse, "recurse", false, "confirm deleting the workspace contents")

	cmd.PersistentFlags().StringVar(&geoserver, "geoserver", "", "GeoServer REST endpoint (default: configured)")
	cmd.AddCommand(create, del)
	return cmd
}

func storeCmd() *cobra.Command {
	var geoserver string
	var conn domain.StoreConnection

	cmd := &cobra.Command{Use: "store", Short: "Manage GeoServer datastores"}

	create := &cobra.Command{
		Use:   "create WORKSPACE NAME",
		Short: "Register the datastore as a store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.CatalogService.CreateStore(ctx, domain.CreateStoreRequest{
					GeoServer:       geoserver,
					WorkspaceName:   args[0],
					StoreName:       args[1],
					StoreConnection: conn,
				})
			})
		},
	}
	create.Flags().StringVar(&conn.PgHost, "pg-host", "", "database host as seen by GeoServer")
	create.Flags().StringVar(&conn.PgPort, "pg-port", "", "database port")
	create.Flags().StringVar(&conn.PgDB, "pg-db", "", "database name")
	create.Flags().StringVar(&conn.PgUser, "pg-user", "", "database user")
	create.Flags().StringVar(&conn.PgPassword, "pg-password", "", "database password")

	del := &cobra.Command{
		Use:   "delete WORKSPACE NAME",
		Short: "Delete a store and its layers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return nil, a.CatalogService.DeleteStore(ctx, domain.DeleteStoreRequest{
					GeoServer:     geoserver,
					WorkspaceName: args[0],
					StoreName:     args[1],
				})
			})
		},
	}

	cmd.PersistentFlags().StringVar(&geoserver, "geoserver", "", "GeoServer REST endpoint (default: configured)")
	cmd.AddCommand(create, del)
	return cmd
}

func layerCmd() *cobra.Command {
	var geoserver, name, colGeometry string

	cmd := &cobra.Command{Use: "layer", Short: "Manage GeoServer layers"}

	create := &cobra.Command{
		Use:   "create WORKSPACE STORE RESOURCE_ID",
		Short: "Create a layer for a resource in an existing store",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				req := domain.CreateLayerRequest{
					GeoServer:     geoserver,
					WorkspaceName: args[0],
					StoreName:     args[1],
					ResourceID:    args[2],
					LayerName:     name,
					ColGeography:  colGeometry,
				}
				if req.LayerName == "" {
					req.LayerName = req.ResourceID
				}
				return a.CatalogService.CreateLayer(ctx, req)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "layer name (default: the resource id)")
	create.Flags().StringVar(&colGeometry, "col-geography", "", "geometry column (default: the first one)")

	cmd.PersistentFlags().StringVar(&geoserver, "geoserver", "", "GeoServer REST endpoint (default: configured)")
	cmd.AddCommand(create)
	return cmd
}

func stylesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "styles", Short: "Inspect the style source"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List SLD documents in the style source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				if a.StyleService == nil {
					return nil, fmt.Errorf("no style source is configured")
				}
				return a.StyleService.List(ctx)
			})
		},
	}

	refresh := &cobra.Command{
		Use:   "refresh KEY",
		Short: "Upload a style again to every workspace using it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				if a.StyleService == nil {
					return nil, fmt.Errorf("no style source is configured")
				}
				n, err := a.StyleService.Refresh(ctx, args[0])
				return map[string]int{"workspaces": n}, err
			})
		},
	}

	cmd.AddCommand(list, refresh)
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{Use: "token", Short: "Manage API tokens"}

	issue := &cobra.Command{
		Use:   "issue USER",
		Short: "Issue an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			verifier := auth.NewTokenVerifier(auth.TokenConfig{
				Secret:    cfg.Auth.Secret,
				Issuer:    cfg.Auth.Issuer,
				Sysadmins: cfg.Auth.Sysadmins,
			})
			token, err := verifier.Issue(args[0], ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")

	cmd.AddCommand(issue)
	return cmd
}
