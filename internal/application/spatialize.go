package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// SpatializeService computes point geometries for datastore resources.
type SpatializeService struct {
	datastore output.Datastore
	instrumentation
}

// NewSpatializeService creates a new spatialize service.
func NewSpatializeService(
	datastore output.Datastore,
	authz output.Authorizer,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *SpatializeService {
	return &SpatializeService{
		datastore:       datastore,
		instrumentation: instrumentation{authz: authz, metrics: metrics, logger: logger},
	}
}

// Spatialize adds the geometry column to a resource if it is missing and
// sets it on every row from the latitude and longitude columns.
func (s *SpatializeService) Spatialize(ctx context.Context, req domain.SpatializeRequest) (result *domain.SpatializeResult, err error) {
	start := time.Now()
	defer func() { s.done(ctx, ActionSpatialize, start, err) }()

	req.Normalize()
	if err := check(&req); err != nil {
		return nil, err
	}

	result = &domain.SpatializeResult{ResourceID: req.ResourceID}

	err = s.datastore.Connect(ctx, func(conn output.DatastoreConn) error {
		ok, err := conn.ResourceExists(ctx, req.ResourceID)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Kind: domain.ErrResourceNotFound, Name: req.ResourceID}
		}

		if err := s.authorize(ctx, ActionSpatialize, req.ResourceID); err != nil {
			return err
		}

		fields, err := conn.Fields(ctx, req.ResourceID)
		if err != nil {
			return err
		}
		res := domain.TabularResource{ID: req.ResourceID, Fields: fields}

		var missing domain.ValidationErrors
		for _, c := range []struct{ key, col string }{
			{"col_latitude", req.ColLatitude},
			{"col_longitude", req.ColLongitude},
		} {
			if !res.HasField(c.col) {
				missing = append(missing, &domain.ValidationError{
					Field:   c.key,
					Value:   c.col,
					Message: fmt.Sprintf("Column %q does not exist", c.col),
				})
			}
		}
		if len(missing) > 0 {
			return missing
		}

		if fld, ok := res.Field(req.ColGeography); !ok {
			if err := conn.AddGeometryColumn(ctx, req.ResourceID, req.ColGeography, domain.SRIDWGS84); err != nil {
				return err
			}
			fields = append(fields, domain.Field{ID: req.ColGeography, Type: "geometry"})
			result.ColumnAdded = true
			s.logger.Info("geometry column added", "resource_id", req.ResourceID, "column", req.ColGeography)
		} else if !fld.IsGeometry() {
			return fieldError("col_geography", fmt.Sprintf("Column %q exists and is not a geometry column", req.ColGeography))
		}
		result.Fields = fields

		rows, err := conn.UpdateGeometry(ctx, req.ResourceID, output.GeometryColumns{
			Latitude:  req.ColLatitude,
			Longitude: req.ColLongitude,
			Geometry:  req.ColGeography,
		}, domain.SRIDWGS84)
		if err != nil {
			return err
		}
		result.RowsUpdated = rows
		s.metrics.AddRowsSpatialized(req.ResourceID, rows)

		result.Table, err = conn.TableInfo(ctx, req.ResourceID)
		return err
	})
	if err != nil {
		return nil, datastoreErr(err)
	}

	s.logger.Info("resource spatialized",
		"resource_id", req.ResourceID,
		"rows", result.RowsUpdated,
		"column_added", result.ColumnAdded,
	)
	return result, nil
}
