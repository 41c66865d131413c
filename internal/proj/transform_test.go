package proj

import (
	"math"
	"testing"
)

func TestNewTransformer(t *testing.T) {
	if _, err := NewTransformer(SRID3857); err != nil {
		t.Errorf("3857: unexpected error: %v", err)
	}
	if _, err := NewTransformer(SRID4326); err != nil {
		t.Errorf("4326: unexpected error: %v", err)
	}
	if _, err := NewTransformer(25832); err == nil {
		t.Error("expected error for unsupported SRID")
	}
}

func TestTransform(t *testing.T) {
	p := LonLatToMercator(9.989095, 53.557078)

	merc, _ := NewTransformer(SRID3857)
	x, y := merc.Transform(p)
	if x != float64(p.X) || y != float64(p.Y) {
		t.Errorf("3857 Transform = (%f, %f), want (%d, %d)", x, y, p.X, p.Y)
	}

	wgs, _ := NewTransformer(SRID4326)
	lon, lat := wgs.Transform(p)
	if math.Abs(lon-9.989095) > 1e-4 || math.Abs(lat-53.557078) > 1e-4 {
		t.Errorf("4326 Transform = (%f, %f)", lon, lat)
	}

	coords := wgs.TransformPoints([]Point{p, p})
	if len(coords) != 4 {
		t.Fatalf("TransformPoints returned %d values, want 4", len(coords))
	}
	if coords[0] != lon || coords[3] != lat {
		t.Errorf("TransformPoints = %v", coords)
	}
}

func TestParseSRID(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"4326", SRID4326, false},
		{"EPSG:4326", SRID4326, false},
		{"3857", SRID3857, false},
		{"EPSG:3857", SRID3857, false},
		{"900913", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSRID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSRID(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
