package store

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/cwbudde/tilecloud/internal/canvas"
	"github.com/cwbudde/tilecloud/internal/config"
	"github.com/cwbudde/tilecloud/internal/pack"
	"github.com/cwbudde/tilecloud/internal/tile"
)

func TestRecord_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(createTestRecord("job-json"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, key := range []string{"jobId", "status", "ratio", "attempts", "placements", "layout"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Missing JSON key %q", key)
		}
	}

	placements := raw["placements"].([]any)
	first := placements[0].(map[string]any)
	if first["x"] != 360.0 || first["y"] != 180.0 {
		t.Errorf("Expected anchor (360,180), got (%v,%v)", first["x"], first["y"])
	}
}

func TestRecord_Validate(t *testing.T) {
	if err := createTestRecord("ok").Validate(); err != nil {
		t.Fatalf("Valid record rejected: %v", err)
	}

	tests := []struct {
		name   string
		field  string
		mutate func(*Record)
	}{
		{"empty id", "JobID", func(r *Record) { r.JobID = "" }},
		{"bad status", "Status", func(r *Record) { r.Status = "running" }},
		{"zero timestamp", "Timestamp", func(r *Record) { r.Timestamp = time.Time{} }},
		{"ratio below one", "Ratio", func(r *Record) { r.Ratio = 0.5 }},
		{"placed above total", "Placed", func(r *Record) { r.Placed = 3 }},
		{"placements mismatch", "Placements", func(r *Record) { r.Placements = r.Placements[:1] }},
		{"complete but partial", "Status", func(r *Record) {
			r.Placed = 1
			r.Placements = r.Placements[:1]
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := createTestRecord("job")
			tt.mutate(r)
			err := r.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
}

func TestNewRecord(t *testing.T) {
	tmpl, err := canvas.NewRectangle(40, 20, color.White)
	if err != nil {
		t.Fatalf("NewRectangle failed: %v", err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	src, err := tile.NewSource("block", 1, img)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}

	res, err := pack.NewController(pack.DefaultOptions(), nil).Run(context.Background(), tmpl, []*tile.Source{src})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	layout := config.Default()
	layout.Canvas.Shape = "rectangle"
	record := NewRecord("job-new", layout, res, time.Second)

	if record.Status != StatusComplete {
		t.Errorf("Expected complete status, got %s", record.Status)
	}
	if record.Width != 40 || record.Height != 20 {
		t.Errorf("Expected 40x20, got %dx%d", record.Width, record.Height)
	}
	if record.Placed != 1 || len(record.Placements) != 1 {
		t.Errorf("Expected one placement, got %d", len(record.Placements))
	}
	if err := record.Validate(); err != nil {
		t.Errorf("New record should validate: %v", err)
	}

	info := record.ToInfo()
	if info.JobID != "job-new" || info.Shape != "rectangle" || info.Ratio != res.Ratio {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestNewRecord_Partial(t *testing.T) {
	res := &pack.Result{
		Ratio:      2.9,
		Attempts:   20,
		Placed:     1,
		Total:      3,
		Placements: []pack.Placement{{Name: "a"}},
		Canvas:     mustCanvas(t),
	}
	record := NewRecord("job-partial", config.Default(), res, 0)
	if record.Status != StatusExhausted {
		t.Errorf("Expected exhausted status, got %s", record.Status)
	}
	if err := record.Validate(); err != nil {
		t.Errorf("Partial record should validate: %v", err)
	}
}

func mustCanvas(t *testing.T) *canvas.Canvas {
	t.Helper()
	tmpl, err := canvas.NewRectangle(10, 10, nil)
	if err != nil {
		t.Fatalf("NewRectangle failed: %v", err)
	}
	return tmpl.Instantiate()
}
