package domain

import (
	"strconv"
	"time"

	"github.com/go-spatial/geom"
)

// Workspace is a namespace on the remote catalog.
type Workspace struct {
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
}

// ConnectionParams describe how the catalog reaches the datastore.
type ConnectionParams struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"-"`
	DBType   string `json:"dbtype"`
}

// Entries returns the parameters keyed the way GeoServer expects them.
func (c ConnectionParams) Entries() map[string]string {
	return map[string]string{
		"host":     c.Host,
		"port":     c.Port,
		"database": c.Database,
		"user":     c.User,
		"passwd":   c.Password,
		"dbtype":   c.DBType,
		"schema":   "public",
	}
}

// ConnectionParamsFromEntries is the inverse of Entries.
func ConnectionParamsFromEntries(entries map[string]string) ConnectionParams {
	return ConnectionParams{
		Host:     entries["host"],
		Port:     entries["port"],
		Database: entries["database"],
		User:     entries["user"],
		Password: entries["passwd"],
		DBType:   entries["dbtype"],
	}
}

// Store is a data source registered on the remote catalog.
type Store struct {
	Name       string           `json:"name"`
	Workspace  string           `json:"workspace"`
	Type       string           `json:"type,omitempty"`
	Enabled    bool             `json:"enabled"`
	Connection ConnectionParams `json:"connection"`
}

// Layer is a published layer on the remote catalog.
type Layer struct {
	Name         string `json:"name"`
	Workspace    string `json:"workspace"`
	Store        string `json:"store,omitempty"`
	Type         string `json:"type,omitempty"`
	DefaultStyle string `json:"default_style,omitempty"`
	ResourceHref string `json:"resource_href,omitempty"`
}

// QualifiedName returns "workspace:name".
func (l *Layer) QualifiedName() string {
	if l.Workspace == "" {
		return l.Name
	}
	return l.Workspace + ":" + l.Name
}

// Attribute is a single attribute of a feature type.
type Attribute struct {
	Name     string // Column name
	Binding  string // Java class binding
	Nillable bool
}

// FeatureTypeDefinition describes a layer's attributes and geometry to the
// remote catalog.
type FeatureTypeDefinition struct {
	Name           string       // Layer name
	NativeName     string       // Resource (table) name
	Title          string       // Display title
	Abstract       string       // Description
	SRID           int          // Always SRIDWGS84
	GeometryColumn string       // Geometry column
	GeometryType   string       // Geometry type, e.g. Point
	KeyColumn      string       // Primary key column, optional
	SQL            string       // Virtual table select
	Attributes     []Attribute  // Attributes, geometry included
	Extent         *geom.Extent // Native extent, nil when unknown
}

// SRS returns the EPSG code of the definition.
func (d *FeatureTypeDefinition) SRS() string {
	return "EPSG:" + strconv.Itoa(d.SRID)
}

// Publication records that a resource has been exposed as a layer.
type Publication struct {
	ResourceID     string    `json:"resource_id"`
	GeoServer      string    `json:"geoserver"`
	Workspace      string    `json:"workspace"`
	Store          string    `json:"store"`
	Layer          string    `json:"layer"`
	GeometryColumn string    `json:"geometry_column"`
	Style          string    `json:"style,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
}
