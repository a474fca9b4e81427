package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-spatial/geom"
	"github.com/jackc/pgx/v5"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// keyColumn is the datastore's row id column.
const keyColumn = "_id"

// bindings maps Postgres type names to the Java classes GeoServer binds
// attributes to.
var bindings = map[string]string{
	"text":        "java.lang.String",
	"varchar":     "java.lang.String",
	"bpchar":      "java.lang.String",
	"name":        "java.lang.String",
	"uuid":        "java.lang.String",
	"int2":        "java.lang.Short",
	"int4":        "java.lang.Integer",
	"int8":        "java.lang.Long",
	"numeric":     "java.math.BigDecimal",
	"float4":      "java.lang.Float",
	"float8":      "java.lang.Double",
	"bool":        "java.lang.Boolean",
	"date":        "java.sql.Date",
	"time":        "java.sql.Time",
	"timestamp":   "java.sql.Timestamp",
	"timestamptz": "java.sql.Timestamp",
	"geometry":    "org.locationtech.jts.geom.Point",
	"geography":   "org.locationtech.jts.geom.Point",
}

func binding(pgType string) string {
	if b, ok := bindings[strings.ToLower(pgType)]; ok {
		return b
	}
	return "java.lang.String"
}

// buildFeatureType describes a point layer over a datastore table as a SQL
// view so only the table's public columns are published.
func buildFeatureType(layer string, res *domain.TabularResource, extent *geom.Extent) *domain.FeatureTypeDefinition {
	cols := []string{pgx.Identifier{keyColumn}.Sanitize()}
	attrs := []domain.Attribute{{Name: keyColumn, Binding: binding("int4")}}

	for _, f := range res.Fields {
		cols = append(cols, pgx.Identifier{f.ID}.Sanitize())
		attrs = append(attrs, domain.Attribute{
			Name:     f.ID,
			Binding:  binding(f.Type),
			Nillable: true,
		})
	}

	//#nosec G201 -- identifiers are quoted
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), pgx.Identifier{res.ID}.Sanitize())

	return &domain.FeatureTypeDefinition{
		Name:           layer,
		NativeName:     layer,
		Title:          layer,
		Abstract:       fmt.Sprintf("Datastore resource %s", res.ID),
		SRID:           domain.SRIDWGS84,
		GeometryColumn: res.GeometryColumn,
		GeometryType:   "Point",
		KeyColumn:      keyColumn,
		SQL:            sql,
		Attributes:     attrs,
		Extent:         extent,
	}
}

// layerFactory creates layers for datastore resources.
type layerFactory struct {
	datastore output.Datastore
}

// layerSpec names the layer to create and the resource behind it.
type layerSpec struct {
	Workspace    string
	Store        string
	Layer        string
	ResourceID   string
	ColGeography string
}

// existing returns the layer if the catalog already has it, nil if it
// reports not-found, or the lookup error.
func existing(ctx context.Context, cat output.Catalog, workspace, layer string) (*domain.Layer, error) {
	l, err := cat.GetLayer(ctx, workspace, layer)
	switch {
	case err == nil:
		return l, nil
	case errors.Is(err, domain.ErrNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("looking up layer %s: %w", layer, err)
	}
}

// describe reads the resource and builds its feature type.
func (f layerFactory) describe(ctx context.Context, spec layerSpec) (*domain.FeatureTypeDefinition, error) {
	res := &domain.TabularResource{ID: spec.ResourceID}
	var extent *geom.Extent

	err := f.datastore.Connect(ctx, func(conn output.DatastoreConn) error {
		ok, err := conn.ResourceExists(ctx, spec.ResourceID)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Kind: domain.ErrResourceNotFound, Name: spec.ResourceID}
		}

		if res.Fields, err = conn.Fields(ctx, spec.ResourceID); err != nil {
			return err
		}

		if spec.ColGeography != "" {
			fld, ok := res.Field(spec.ColGeography)
			if !ok {
				return fieldError("col_geography", fmt.Sprintf("Column %q does not exist", spec.ColGeography))
			}
			if !fld.IsGeometry() {
				return fieldError("col_geography", fmt.Sprintf("Column %q is not a geometry column", spec.ColGeography))
			}
			res.GeometryColumn = spec.ColGeography
		} else {
			fld, ok := res.GeometryField()
			if !ok {
				return fmt.Errorf("%s: %w", spec.ResourceID, domain.ErrNotSpatialized)
			}
			res.GeometryColumn = fld.ID
		}

		extent, err = conn.Extent(ctx, spec.ResourceID, res.GeometryColumn)
		return err
	})
	if err != nil {
		return nil, datastoreErr(err)
	}

	return buildFeatureType(spec.Layer, res, extent), nil
}

// create builds the feature type, posts it and returns the new layer.
func (f layerFactory) create(ctx context.Context, cat output.Catalog, spec layerSpec) (*domain.Layer, *domain.FeatureTypeDefinition, error) {
	def, err := f.describe(ctx, spec)
	if err != nil {
		return nil, nil, err
	}

	if err := cat.CreateFeatureType(ctx, spec.Workspace, spec.Store, def); err != nil {
		return nil, nil, fmt.Errorf("creating feature type %s: %w", def.Name, err)
	}

	layer, err := cat.GetLayer(ctx, spec.Workspace, spec.Layer)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching created layer %s: %w", spec.Layer, err)
	}
	return layer, def, nil
}
