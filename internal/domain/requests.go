package domain

// StoreConnection holds the datastore parameters a store is registered with.
// Defaults match a stock CKAN datastore.
type StoreConnection struct {
	PgHost     string `mapstructure:"pg_host" json:"pg_host" default:"localhost" validate:"required,hostname_rfc1123|ip"`
	PgPort     string `mapstructure:"pg_port" json:"pg_port" default:"5432" validate:"required,numeric"`
	PgDB       string `mapstructure:"pg_db" json:"pg_db" default:"datastore" validate:"required"`
	PgUser     string `mapstructure:"pg_user" json:"pg_user" default:"ckanuser" validate:"required"`
	PgPassword string `mapstructure:"pg_password" json:"-" default:"pass"`
	DBType     string `mapstructure:"db_type" json:"db_type" default:"postgis" validate:"required"`
}

// Params converts the request fields to catalog connection parameters.
func (c StoreConnection) Params() ConnectionParams {
	return ConnectionParams{
		Host:     c.PgHost,
		Port:     c.PgPort,
		Database: c.PgDB,
		User:     c.PgUser,
		Password: c.PgPassword,
		DBType:   c.DBType,
	}
}

// ExposeRequest publishes a spatialized resource as a layer.
type ExposeRequest struct {
	ResourceID    string `mapstructure:"resource_id" json:"resource_id" validate:"required"`
	ID            string `mapstructure:"id" json:"id,omitempty"`
	GeoServer     string `mapstructure:"geoserver" json:"geoserver,omitempty" validate:"omitempty,url"`
	WorkspaceName string `mapstructure:"workspace_name" json:"workspace_name" default:"NGDS" validate:"required"`
	StoreName     string `mapstructure:"store_name" json:"store_name" default:"datastore" validate:"required"`
	LayerName     string `mapstructure:"layer_name" json:"layer_name,omitempty"`
	ColGeography  string `mapstructure:"col_geography" json:"col_geography,omitempty"`
	Style         string `mapstructure:"style" json:"style,omitempty"`

	StoreConnection `mapstructure:",squash"`
}

// Normalize accepts "id" as an alias for "resource_id" and names the layer
// after the resource when no name was given.
func (r *ExposeRequest) Normalize() {
	if r.ID != "" {
		r.ResourceID = r.ID
	}
	if r.LayerName == "" {
		r.LayerName = r.ResourceID
	}
}

// RemoveExposedLayerRequest removes a layer created by an expose call.
type RemoveExposedLayerRequest struct {
	ResourceID    string `mapstructure:"resource_id" json:"resource_id" validate:"required"`
	ID            string `mapstructure:"id" json:"id,omitempty"`
	GeoServer     string `mapstructure:"geoserver" json:"geoserver,omitempty" validate:"omitempty,url"`
	WorkspaceName string `mapstructure:"workspace_name" json:"workspace_name" default:"NGDS" validate:"required"`
	StoreName     string `mapstructure:"store_name" json:"store_name" default:"datastore" validate:"required"`
	LayerName     string `mapstructure:"layer_name" json:"layer_name,omitempty"`
}

// Normalize mirrors ExposeRequest.Normalize.
func (r *RemoveExposedLayerRequest) Normalize() {
	if r.ID != "" {
		r.ResourceID = r.ID
	}
	if r.LayerName == "" {
		r.LayerName = r.ResourceID
	}
}

// ListExposedLayersRequest lists publications, optionally for one resource.
type ListExposedLayersRequest struct {
	ResourceID string `mapstructure:"resource_id" json:"resource_id,omitempty"`
}

// CreateWorkspaceRequest creates a workspace with a namespace URI.
type CreateWorkspaceRequest struct {
	GeoServer     string `mapstructure:"geoserver" json:"geoserver,omitempty" validate:"omitempty,url"`
	WorkspaceName string `mapstructure:"workspace_name" json:"workspace_name" validate:"required"`
	WorkspaceURI  string `mapstructure:"workspace_uri" json:"workspace_uri" validate:"required,uri"`
}

// DeleteWorkspaceRequest deletes a workspace and everything in it.
type DeleteWorkspaceRequest struct {
	GeoServer     string `mapstructure:"geoserver" json:"geoserver,omitempty" validate:"omitempty,url"`
	WorkspaceName string `mapstructure:"workspace_name" json:"workspace_name" validate:"required"`
}

// CreateStoreRequest registers the datastore as a store in a workspace.
type CreateStoreRequest struct {
	GeoServer     string `mapstructure:"geoserver" json:"geoserver,omitempty" validate:"omitempty,url"`
	WorkspaceName string `mapstructure:"workspace_name" json:"workspace_name" validate:"required"`
	StoreName     string `mapstructure:"store_name" json:"store_name" validate:"required"`

	StoreConnection `mapstructure:",squash"`
}

// DeleteStoreRequest deletes a store and its feature types.
type DeleteStoreRequest struct {
	GeoServer     string `mapstructure:"geoserver" json:"geoserver,omitempty" validate:"omitempty,url"`
	WorkspaceName string `mapstructure:"workspace_name" json:"workspace_name" validate:"required"`
	StoreName     string `mapstructure:"store_name" json:"store_name" validate:"required"`
}

// CreateLayerRequest creates a layer for a resource in an existing store.
type CreateLayerRequest struct {
	GeoServer     string `mapstructure:"geoserver" json:"geoserver,omitempty" validate:"omitempty,url"`
	WorkspaceName string `mapstructure:"workspace_name" json:"workspace_name" validate:"required"`
	StoreName     string `mapstructure:"store_name" json:"store_name" validate:"required"`
	LayerName     string `mapstructure:"layer_name" json:"layer_name" validate:"required"`
	ResourceID    string `mapstructure:"resource_id" json:"resource_id" validate:"required"`
	ColGeography  string `mapstructure:"col_geography" json:"col_geography,omitempty"`
}
