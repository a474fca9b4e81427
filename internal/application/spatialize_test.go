package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

func wellFields() []domain.Field {
	return []domain.Field{
		{ID: "name", Type: "text"},
		{ID: "lat", Type: "float8"},
		{ID: "lon", Type: "float8"},
	}
}

func wellRows() []map[string]interface{} {
	return []map[string]interface{}{
		{"name": "a", "lat": 39.7, "lon": -105.2},
		{"name": "b", "lat": 40.1, "lon": -104.9},
	}
}

func newTestSpatializer(ds *mockDatastore, authz *mockAuthorizer) *SpatializeService {
	if authz == nil {
		authz = &mockAuthorizer{}
	}
	return NewSpatializeService(ds, authz, &output.NoOpMetrics{}, testLogger())
}

func spatializeReq() domain.SpatializeRequest {
	return domain.SpatializeRequest{
		ResourceID:   "wells",
		ColLatitude:  "lat",
		ColLongitude: "lon",
		ColGeography: "shape",
	}
}

func TestSpatializeAddsColumnAndComputesPoints(t *testing.T) {
	ds := newMockDatastore()
	ds.addTable("wells", wellFields(), wellRows()...)
	svc := newTestSpatializer(ds, nil)

	result, err := svc.Spatialize(context.Background(), spatializeReq())
	if err != nil {
		t.Fatalf("Spatialize() error = %v", err)
	}

	if !result.ColumnAdded {
		t.Error("ColumnAdded should be true")
	}
	if ds.addCalls != 1 {
		t.Errorf("AddGeometryColumn called %d times, want 1", ds.addCalls)
	}
	if result.RowsUpdated != 2 {
		t.Errorf("RowsUpdated = %d, want 2", result.RowsUpdated)
	}
	if got := result.Fields[len(result.Fields)-1]; got != (domain.Field{ID: "shape", Type: "geometry"}) {
		t.Errorf("last field = %+v, want shape geometry", got)
	}
	if result.Table == nil || result.Table.Name != "wells" {
		t.Errorf("Table = %+v, want wells", result.Table)
	}

	for _, row := range ds.tables["wells"].rows {
		want := point{X: row["lon"].(float64), Y: row["lat"].(float64)}
		if row["shape"] != want {
			t.Errorf("row %v: shape = %v, want %v", row["name"], row["shape"], want)
		}
	}

	if ds.connections != 1 || ds.open != 0 {
		t.Errorf("connections = %d, open = %d; want one released connection", ds.connections, ds.open)
	}
}

func TestSpatializeExistingColumnIsRecomputed(t *testing.T) {
	ds := newMockDatastore()
	ds.addTable("wells", append(wellFields(), domain.Field{ID: "shape", Type: "geometry"}), wellRows()...)
	svc := newTestSpatializer(ds, nil)

	first, err := svc.Spatialize(context.Background(), spatializeReq())
	if err != nil {
		t.Fatalf("Spatialize() error = %v", err)
	}
	second, err := svc.Spatialize(context.Background(), spatializeReq())
	if err != nil {
		t.Fatalf("Spatialize() error = %v", err)
	}

	if ds.addCalls != 0 {
		t.Errorf("AddGeometryColumn called %d times, want 0", ds.addCalls)
	}
	if ds.updateCalls != 2 {
		t.Errorf("UpdateGeometry called %d times, want 2", ds.updateCalls)
	}
	if first.ColumnAdded || second.ColumnAdded {
		t.Error("ColumnAdded should be false")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-running changed the result: %v != %v", first, second)
	}
}

func TestSpatializeIDAlias(t *testing.T) {
	ds := newMockDatastore()
	ds.addTable("wells", wellFields(), wellRows()...)
	svc := newTestSpatializer(ds, nil)

	req := spatializeReq()
	req.ResourceID = ""
	req.ID = "wells"

	result, err := svc.Spatialize(context.Background(), req)
	if err != nil {
		t.Fatalf("Spatialize() error = %v", err)
	}
	if result.ResourceID != "wells" {
		t.Errorf("ResourceID = %q, want wells", result.ResourceID)
	}
}

func TestSpatializeErrors(t *testing.T) {
	timeout := &domain.DatastoreError{
		Op:       "update",
		Resource: "wells",
		Err:      fmt.Errorf("%w: canceling statement due to statement timeout", domain.ErrQueryTimeout),
	}

	tests := []struct {
		name      string
		setup     func(ds *mockDatastore, authz *mockAuthorizer)
		req       func() domain.SpatializeRequest
		wantErr   error
		wantField string
		mutated   bool
	}{
		{
			name:  "missing fields",
			setup: func(*mockDatastore, *mockAuthorizer) {},
			req: func() domain.SpatializeRequest {
				r := spatializeReq()
				r.ColLatitude, r.ColGeography = "", ""
				return r
			},
			wantErr:   domain.ErrInvalidInput,
			wantField: "col_latitude",
		},
		{
			name:  "unknown resource",
			setup: func(*mockDatastore, *mockAuthorizer) {},
			req: func() domain.SpatializeRequest {
				r := spatializeReq()
				r.ResourceID = "nope"
				return r
			},
			wantErr: domain.ErrResourceNotFound,
		},
		{
			name: "not authorized",
			setup: func(_ *mockDatastore, authz *mockAuthorizer) {
				authz.deny = map[string]bool{ActionSpatialize: true}
			},
			req:     spatializeReq,
			wantErr: domain.ErrForbidden,
		},
		{
			name:  "unknown latitude column",
			setup: func(*mockDatastore, *mockAuthorizer) {},
			req: func() domain.SpatializeRequest {
				r := spatializeReq()
				r.ColLatitude = "latitude"
				return r
			},
			wantErr:   domain.ErrInvalidInput,
			wantField: "col_latitude",
		},
		{
			name: "statement timeout",
			setup: func(ds *mockDatastore, _ *mockAuthorizer) {
				ds.updateErr = timeout
			},
			req:       spatializeReq,
			wantErr:   domain.ErrInvalidInput,
			wantField: "query",
			mutated:   true,
		},
		{
			name: "other datastore error",
			setup: func(ds *mockDatastore, _ *mockAuthorizer) {
				ds.updateErr = &domain.DatastoreError{Op: "update", Err: errors.New("disk full")}
			},
			req:     spatializeReq,
			wantErr: errors.New("disk full"),
			mutated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := newMockDatastore()
			ds.addTable("wells", wellFields(), wellRows()...)
			authz := &mockAuthorizer{}
			tt.setup(ds, authz)
			svc := newTestSpatializer(ds, authz)

			_, err := svc.Spatialize(context.Background(), tt.req())
			if err == nil {
				t.Fatal("Spatialize() should fail")
			}

			var dsErr *domain.DatastoreError
			switch {
			case errors.As(err, &dsErr) && !errors.Is(tt.wantErr, domain.ErrInvalidInput):
				if dsErr.Err.Error() != tt.wantErr.Error() {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case !errors.Is(err, tt.wantErr):
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}

			if tt.wantField != "" {
				var ve *domain.ValidationError
				var ves domain.ValidationErrors
				switch {
				case errors.As(err, &ve):
					if ve.Field != tt.wantField {
						t.Errorf("field = %q, want %q", ve.Field, tt.wantField)
					}
					if tt.wantField == "query" && ve.Message != "Query took too long" {
						t.Errorf("message = %q", ve.Message)
					}
				case errors.As(err, &ves):
					if _, ok := ves.Fields()[tt.wantField]; !ok {
						t.Errorf("fields = %v, want %q", ves.Fields(), tt.wantField)
					}
				default:
					t.Errorf("error %v is not a validation error", err)
				}
			}

			if !tt.mutated && (ds.addCalls != 0 || ds.updateCalls != 0) {
				t.Errorf("mutation happened: add=%d update=%d", ds.addCalls, ds.updateCalls)
			}
			for _, row := range ds.tables["wells"].rows {
				if _, ok := row["shape"]; ok {
					t.Error("rows should be untouched after a failure")
				}
			}
			if ds.open != 0 {
				t.Errorf("connection not released: open = %d", ds.open)
			}
		})
	}
}

func TestSpatializeRejectsNonGeometryColumn(t *testing.T) {
	ds := newMockDatastore()
	ds.addTable("wells", wellFields(), wellRows()...)
	svc := newTestSpatializer(ds, nil)

	req := spatializeReq()
	req.ColGeography = "name"

	_, err := svc.Spatialize(context.Background(), req)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("error = %v, want invalid input", err)
	}
	if ds.updateCalls != 0 {
		t.Error("UpdateGeometry should not be called")
	}
}
