package geoserver

import "github.com/ngds/geobridge/internal/domain"

// virtualTableKey is the metadata key GeoServer reads SQL views from.
const virtualTableKey = "JDBC_VIRTUAL_TABLE"

type restFeatureTypeBody struct {
	FeatureType restFeatureType `json:"featureType"`
}

type restFeatureType struct {
	Name              string           `json:"name"`
	NativeName        string           `json:"nativeName"`
	Namespace         *restName        `json:"namespace,omitempty"`
	Title             string           `json:"title,omitempty"`
	Abstract          string           `json:"abstract,omitempty"`
	SRS               string           `json:"srs"`
	NativeBoundingBox *restBoundingBox `json:"nativeBoundingBox,omitempty"`
	LatLonBoundingBox *restBoundingBox `json:"latLonBoundingBox,omitempty"`
	ProjectionPolicy  string           `json:"projectionPolicy"`
	Enabled           bool             `json:"enabled"`
	Metadata          *restMetadata    `json:"metadata,omitempty"`
	Store             *restStoreRef    `json:"store,omitempty"`
	Attributes        *restAttributes  `json:"attributes,omitempty"`
}

type restBoundingBox struct {
	MinX float64 `json:"minx"`
	MaxX float64 `json:"maxx"`
	MinY float64 `json:"miny"`
	MaxY float64 `json:"maxy"`
	CRS  string  `json:"crs"`
}

type restStoreRef struct {
	Class string `json:"@class"`
	Name  string `json:"name"`
}

type restAttributes struct {
	Attribute []restAttribute `json:"attribute"`
}

type restAttribute struct {
	Name      string `json:"name"`
	MinOccurs int    `json:"minOccurs"`
	MaxOccurs int    `json:"maxOccurs"`
	Nillable  bool   `json:"nillable"`
	Binding   string `json:"binding"`
}

type restMetadata struct {
	Entry restVirtualTableEntry `json:"entry"`
}

type restVirtualTableEntry struct {
	Key          string           `json:"@key"`
	VirtualTable restVirtualTable `json:"virtualTable"`
}

type restVirtualTable struct {
	Name      string              `json:"name"`
	SQL       string              `json:"sql"`
	EscapeSQL bool                `json:"escapeSql"`
	KeyColumn string              `json:"keyColumn,omitempty"`
	Geometry  restVirtualGeometry `json:"geometry"`
}

type restVirtualGeometry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	SRID int    `json:"srid"`
}

// newFeatureTypeBody serializes a definition as a SQL-view feature type in
// the given workspace and store.
func newFeatureTypeBody(workspace, store string, def *domain.FeatureTypeDefinition) *restFeatureTypeBody {
	ft := restFeatureType{
		Name:             def.Name,
		NativeName:       def.Name,
		Namespace:        &restName{Name: workspace},
		Title:            def.Title,
		Abstract:         def.Abstract,
		SRS:              def.SRS(),
		ProjectionPolicy: "FORCE_DECLARED",
		Enabled:          true,
		Store: &restStoreRef{
			Class: "dataStore",
			Name:  workspace + ":" + store,
		},
		Metadata: &restMetadata{Entry: restVirtualTableEntry{
			Key: virtualTableKey,
			VirtualTable: restVirtualTable{
				Name:      def.Name,
				SQL:       def.SQL,
				KeyColumn: def.KeyColumn,
				Geometry: restVirtualGeometry{
					Name: def.GeometryColumn,
					Type: def.GeometryType,
					SRID: def.SRID,
				},
			},
		}},
	}

	if len(def.Attributes) > 0 {
		attrs := make([]restAttribute, 0, len(def.Attributes))
		for _, a := range def.Attributes {
			attrs = append(attrs, restAttribute{
				Name:      a.Name,
				MinOccurs: 0,
				MaxOccurs: 1,
				Nillable:  a.Nillable,
				Binding:   a.Binding,
			})
		}
		ft.Attributes = &restAttributes{Attribute: attrs}
	}

	if def.Extent != nil {
		bbox := &restBoundingBox{
			MinX: def.Extent.MinX(),
			MaxX: def.Extent.MaxX(),
			MinY: def.Extent.MinY(),
			MaxY: def.Extent.MaxY(),
			CRS:  def.SRS(),
		}
		// Native CRS is WGS84, so both boxes are the same.
		ft.NativeBoundingBox = bbox
		ft.LatLonBoundingBox = bbox
	}

	return &restFeatureTypeBody{FeatureType: ft}
}
