package tile

import (
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/tilecloud/internal/imgutil"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestScaleFactors_SingleTileFillsArea(t *testing.T) {
	scales, err := ScaleFactors([]string{"a"}, []float64{1}, []image.Point{{20, 10}}, 720*360, 1)
	if err != nil {
		t.Fatalf("ScaleFactors failed: %v", err)
	}
	if math.Abs(scales[0]-36) > 1e-9 {
		t.Errorf("Expected scale 36, got %f", scales[0])
	}
}

func TestScaleFactors_RelaxShrinks(t *testing.T) {
	sizes := []image.Point{{10, 10}, {10, 10}}
	base, _ := ScaleFactors(nil, []float64{1, 2}, sizes, 1000, 1)
	relaxed, _ := ScaleFactors(nil, []float64{1, 2}, sizes, 1000, 2)

	for i := range base {
		if math.Abs(relaxed[i]*2-base[i]) > 1e-9 {
			t.Errorf("Tile %d: relax 2 should halve the scale (%f vs %f)", i, relaxed[i], base[i])
		}
	}

	// Total rendered area equals the canvas area at relax 1.
	var total float64
	for i, s := range base {
		total += float64(sizes[i].X*sizes[i].Y) * s * s
	}
	if math.Abs(total-1000) > 1e-6 {
		t.Errorf("Expected total area 1000, got %f", total)
	}
}

func TestScaleFactors_DoublingWeightDoublesLinearSize(t *testing.T) {
	sizes := []image.Point{{16, 16}, {16, 16}, {16, 16}}
	before, err := ScaleFactors(nil, []float64{1, 1, 1}, sizes, 5000, 1)
	if err != nil {
		t.Fatal(err)
	}
	after, err := ScaleFactors(nil, []float64{2, 1, 1}, sizes, 5000, 1)
	if err != nil {
		t.Fatal(err)
	}

	ratioBefore := before[0] / before[1]
	ratioAfter := after[0] / after[1]
	if math.Abs(ratioAfter/ratioBefore-2) > 1e-9 {
		t.Errorf("Relative linear size should double, got factor %f", ratioAfter/ratioBefore)
	}
}

func TestScaleFactors_Errors(t *testing.T) {
	if _, err := ScaleFactors(nil, nil, nil, 100, 1); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
	if _, err := Scales(nil, 100, 1); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput from Scales, got %v", err)
	}

	var weightErr *InvalidWeightError
	_, err := ScaleFactors([]string{"bad"}, []float64{0}, []image.Point{{1, 1}}, 100, 1)
	if !errors.As(err, &weightErr) || weightErr.Name != "bad" {
		t.Errorf("Expected InvalidWeightError for bad, got %v", err)
	}
	if _, err := ScaleFactors(nil, []float64{1}, []image.Point{{1, 1}}, 100, 0.5); err == nil {
		t.Error("Expected error for relax < 1")
	}
}

func TestExtractFootprint(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 12, 12))
	red := color.NRGBA{255, 0, 0, 255}
	for y := 4; y < 7; y++ {
		for x := 2; x < 5; x++ {
			img.SetNRGBA(x, y, red)
		}
	}

	fp, err := ExtractFootprint(img, 4)
	if err != nil {
		t.Fatalf("ExtractFootprint failed: %v", err)
	}

	if fp.Len() != 9 {
		t.Fatalf("Expected 9 opaque pixels, got %d", fp.Len())
	}
	if fp.Bounds != image.Rect(-1, -1, 2, 2) {
		t.Errorf("Expected bounds centered on the centroid, got %v", fp.Bounds)
	}

	// Farthest first: corners before edges before the center.
	last := fp.Offsets[fp.Len()-1]
	if last != image.Pt(0, 0) {
		t.Errorf("Centroid pixel should come last, got %v", last)
	}
	first := fp.Offsets[0]
	if first.X*first.X+first.Y*first.Y != 2 {
		t.Errorf("A corner should come first, got %v", first)
	}
	for i, c := range fp.Colors {
		if c != red {
			t.Errorf("Color %d = %v, want red", i, c)
		}
	}
}

func TestExtractFootprint_CentroidRounds(t *testing.T) {
	// 4x2 solid block: mean x = 1.5 rounds to 2, mean y = 0.5 rounds to 1.
	fp, err := ExtractFootprint(solid(4, 2, color.NRGBA{0, 0, 0, 255}), 1)
	if err != nil {
		t.Fatal(err)
	}
	if fp.Bounds != image.Rect(-2, -1, 2, 1) {
		t.Errorf("Unexpected bounds %v", fp.Bounds)
	}
	for _, off := range fp.Offsets {
		if !off.In(fp.Bounds) {
			t.Errorf("Offset %v outside bounds %v", off, fp.Bounds)
		}
	}
}

func TestExtractFootprint_Empty(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 5, 5))
	if _, err := ExtractFootprint(img, 4); !errors.Is(err, ErrEmptyFootprint) {
		t.Errorf("Expected ErrEmptyFootprint, got %v", err)
	}
}

func TestBuild(t *testing.T) {
	src, err := NewSource("block", 1.5, solid(10, 5, color.NRGBA{0, 255, 0, 255}))
	if err != nil {
		t.Fatal(err)
	}

	tl, err := Build(src, 3, 2, imgutil.LanczosResizer{}, 4)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if tl.Size != image.Pt(20, 10) {
		t.Errorf("Expected 20x10, got %v", tl.Size)
	}
	if tl.Footprint.Len() != 200 {
		t.Errorf("Expected 200 opaque pixels, got %d", tl.Footprint.Len())
	}
	if tl.Index != 3 || tl.Name != "block" || tl.Scale != 2 {
		t.Errorf("Metadata not carried over: %+v", tl)
	}
}

func TestNewSource_Validation(t *testing.T) {
	if _, err := NewSource("x", -1, solid(2, 2, color.NRGBA{0, 0, 0, 255})); err == nil {
		t.Error("Expected error for negative weight")
	}
	if _, err := NewSource("x", 1, image.NewNRGBA(image.Rect(0, 0, 2, 2))); !errors.Is(err, ErrEmptyFootprint) {
		t.Errorf("Expected ErrEmptyFootprint for transparent source, got %v", err)
	}
}

func TestCodepointKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1F602", "1f602"},
		{"1f1e6-1f1e8", "1f1e6-1f1e8"},
		{"\U0001F602", "1f602"},
		{"\U0001F1E6\U0001F1E8", "1f1e6-1f1e8"},
		{"⚽", "26bd"},
	}
	for _, tt := range tests {
		if got := CodepointKey(tt.in); got != tt.want {
			t.Errorf("CodepointKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLibraryResolve(t *testing.T) {
	root := t.TempDir()
	vendorDir := filepath.Join(root, "Twitter")
	if err := os.MkdirAll(vendorDir, 0755); err != nil {
		t.Fatal(err)
	}
	img := solid(4, 4, color.NRGBA{255, 200, 0, 255})
	for _, name := range []string{"1f602.png", "2764.png"} {
		if err := imgutil.Export(img, filepath.Join(vendorDir, name)); err != nil {
			t.Fatal(err)
		}
	}

	lib := Library{Root: root, Vendor: "Twitter"}

	tests := []struct {
		key  string
		want string
	}{
		{"1f602", filepath.Join(vendorDir, "1f602.png")},
		{"1F602", filepath.Join(vendorDir, "1f602.png")},
		{"\U0001F602", filepath.Join(vendorDir, "1f602.png")},
		{"❤️", filepath.Join(vendorDir, "2764.png")},
	}
	for _, tt := range tests {
		got, err := lib.Resolve(tt.key)
		if err != nil {
			t.Errorf("Resolve(%q) failed: %v", tt.key, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %s, want %s", tt.key, got, tt.want)
		}
	}

	direct := filepath.Join(vendorDir, "2764.png")
	if got, err := (Library{}).Resolve(direct); err != nil || got != direct {
		t.Errorf("Existing path should resolve to itself, got %s, %v", got, err)
	}
	if _, err := lib.Resolve("ffff"); err == nil {
		t.Error("Expected error for missing key")
	}
}

func TestListImagesAndDefaultWeight(t *testing.T) {
	dir := t.TempDir()
	img := solid(2, 2, color.NRGBA{0, 0, 0, 255})
	for _, name := range []string{"b.png", "a.png"} {
		if err := imgutil.Export(img, filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	paths, err := ListImages(dir)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.png" {
		t.Errorf("Expected [a.png b.png], got %v", paths)
	}

	if w := DefaultWeight(0); math.Abs(w-1.1) > 1e-12 {
		t.Errorf("DefaultWeight(0) = %f, want 1.1", w)
	}
	if w := DefaultWeight(19); math.Abs(w-3.0) > 1e-12 {
		t.Errorf("DefaultWeight(19) = %f, want 3.0", w)
	}
}
