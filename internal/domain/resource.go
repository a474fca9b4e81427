// Package domain contains the core business entities and value objects.
package domain

import "strings"

// SRIDWGS84 is the spatial reference every spatialized column and published
// layer uses.
const SRIDWGS84 = 4326

// Field is a column of a datastore resource.
type Field struct {
	ID   string `json:"id"`   // Column name
	Type string `json:"type"` // Postgres data type name
}

// IsGeometry returns true if the column holds PostGIS geometries.
func (f Field) IsGeometry() bool {
	switch strings.ToLower(f.Type) {
	case "geometry", "geography", "user-defined":
		return true
	}
	return false
}

// TabularResource is a datastore table; its ID is the table name.
type TabularResource struct {
	ID             string  // Resource identifier (table name)
	Fields         []Field // Columns in table order
	GeometryColumn string  // Geometry column, empty if none
}

// Field returns a field by name.
func (r *TabularResource) Field(name string) (*Field, bool) {
	for i := range r.Fields {
		if r.Fields[i].ID == name {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// HasField reports whether the resource has a column with the given name.
func (r *TabularResource) HasField(name string) bool {
	_, ok := r.Field(name)
	return ok
}

// GeometryField returns the first geometry column.
func (r *TabularResource) GeometryField() (*Field, bool) {
	if r.GeometryColumn != "" {
		return r.Field(r.GeometryColumn)
	}
	for i := range r.Fields {
		if r.Fields[i].IsGeometry() {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// TableInfo is the pg_tables row of a resource.
type TableInfo struct {
	Schema string `json:"schemaname"`
	Name   string `json:"tablename"`
	Owner  string `json:"tableowner"`
}

// SpatializeRequest asks for a geometry column to be (re)computed from a
// latitude/longitude column pair.
type SpatializeRequest struct {
	ResourceID   string `mapstructure:"resource_id" json:"resource_id" validate:"required"`
	ID           string `mapstructure:"id" json:"id,omitempty"`
	ColLatitude  string `mapstructure:"col_latitude" json:"col_latitude" validate:"required"`
	ColLongitude string `mapstructure:"col_longitude" json:"col_longitude" validate:"required"`
	ColGeography string `mapstructure:"col_geography" json:"col_geography" validate:"required"`
}

// Normalize accepts "id" as an alias for "resource_id".
func (r *SpatializeRequest) Normalize() {
	if r.ID != "" {
		r.ResourceID = r.ID
	}
}

// SpatializeResult is returned by a successful spatialize call. It never
// carries connection details.
type SpatializeResult struct {
	ResourceID  string     `json:"resource_id"`
	Fields      []Field    `json:"fields"`
	Table       *TableInfo `json:"table,omitempty"`
	RowsUpdated int64      `json:"rows_updated"`
	ColumnAdded bool       `json:"column_added"`
}
