package pack

import (
	"context"
	"errors"
	"image"
	"image/color"
	"slices"
	"testing"

	"github.com/cwbudde/tilecloud/internal/canvas"
	"github.com/cwbudde/tilecloud/internal/imgutil"
	"github.com/cwbudde/tilecloud/internal/tile"
	"golang.org/x/image/draw"
)

var nearest = imgutil.KernelResizer{Scaler: draw.NearestNeighbor}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func mustSource(t *testing.T, name string, weight float64, img *image.NRGBA) *tile.Source {
	t.Helper()
	src, err := tile.NewSource(name, weight, img)
	if err != nil {
		t.Fatalf("NewSource(%s) failed: %v", name, err)
	}
	return src
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Workers = 2
	return opts
}

func TestRun_SingleTileFillsRectangle(t *testing.T) {
	tmpl, err := canvas.NewRectangle(720, 360, color.White)
	if err != nil {
		t.Fatalf("NewRectangle failed: %v", err)
	}
	red := color.NRGBA{255, 0, 0, 255}
	sources := []*tile.Source{mustSource(t, "red", 1, solid(20, 10, red))}

	res, err := NewController(testOptions(), nearest).Run(context.Background(), tmpl, sources)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Attempts != 1 || res.Ratio != 1.0 {
		t.Errorf("Expected success on first attempt at ratio 1.0, got attempt %d ratio %v", res.Attempts, res.Ratio)
	}
	if len(res.Placements) != 1 {
		t.Fatalf("Expected 1 placement, got %d", len(res.Placements))
	}
	p := res.Placements[0]
	if p.Scale != 36 {
		t.Errorf("Expected scale 36, got %v", p.Scale)
	}
	if p.Anchor() != image.Pt(360, 180) {
		t.Errorf("Expected anchor at center (360,180), got %v", p.Anchor())
	}
	if p.Cells != 720*360 {
		t.Errorf("Expected tile to cover the canvas, got %d cells", p.Cells)
	}

	img := res.Image()
	for _, pt := range []image.Point{{0, 0}, {719, 359}, {360, 180}} {
		if got := img.NRGBAAt(pt.X, pt.Y); got != red {
			t.Errorf("Pixel %v = %v, want %v", pt, got, red)
		}
	}
}

func TestRun_ExhaustsOnTwoLargeTiles(t *testing.T) {
	tmpl, err := canvas.NewRectangle(100, 100, color.White)
	if err != nil {
		t.Fatalf("NewRectangle failed: %v", err)
	}
	sources := []*tile.Source{
		mustSource(t, "a", 1, solid(10, 10, color.NRGBA{255, 0, 0, 255})),
		mustSource(t, "b", 1, solid(10, 10, color.NRGBA{0, 0, 255, 255})),
	}

	opts := testOptions()
	opts.MaxAttempts = 3
	ctrl := NewController(opts, nearest)
	var attempts []Attempt
	ctrl.OnAttempt = func(a Attempt) { attempts = append(attempts, a) }

	_, err = ctrl.Run(context.Background(), tmpl, sources)
	if !errors.Is(err, ErrPlacementExhausted) {
		t.Fatalf("Expected ErrPlacementExhausted, got %v", err)
	}

	var pe *PlacementExhaustedError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *PlacementExhaustedError, got %T", err)
	}
	if pe.Attempts != 3 || pe.Placed != 1 || pe.Total != 2 {
		t.Errorf("Unexpected error details: %+v", pe)
	}
	if pe.Partial != nil {
		t.Error("Partial should be nil unless KeepPartial is set")
	}

	if len(attempts) != 3 {
		t.Fatalf("Expected 3 attempt callbacks, got %d", len(attempts))
	}
	for i, a := range attempts {
		if a.Success() {
			t.Errorf("Attempt %d should have failed", i+1)
		}
		if i > 0 && a.Ratio <= attempts[i-1].Ratio {
			t.Errorf("Ratios should grow: %v then %v", attempts[i-1].Ratio, a.Ratio)
		}
	}
}

func TestRun_KeepPartial(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(100, 100, color.White)
	sources := []*tile.Source{
		mustSource(t, "a", 1, solid(10, 10, color.NRGBA{255, 0, 0, 255})),
		mustSource(t, "b", 1, solid(10, 10, color.NRGBA{0, 0, 255, 255})),
	}

	opts := testOptions()
	opts.MaxAttempts = 2
	opts.KeepPartial = true

	_, err := NewController(opts, nearest).Run(context.Background(), tmpl, sources)
	var pe *PlacementExhaustedError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *PlacementExhaustedError, got %v", err)
	}
	if pe.Partial == nil {
		t.Fatal("Expected partial result")
	}
	if pe.Partial.Placed != 1 || len(pe.Partial.Placements) != 1 {
		t.Errorf("Partial should hold the one placed tile, got %d", pe.Partial.Placed)
	}
}

func TestRun_RelaxesUntilSuccess(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(100, 100, color.White)
	sources := []*tile.Source{
		mustSource(t, "a", 1, solid(10, 10, color.NRGBA{255, 0, 0, 255})),
		mustSource(t, "b", 1, solid(10, 10, color.NRGBA{0, 0, 255, 255})),
	}

	res, err := NewController(testOptions(), nearest).Run(context.Background(), tmpl, sources)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Attempts < 2 {
		t.Errorf("Two 70px tiles cannot share a 100px canvas, expected relaxation, got %d attempts", res.Attempts)
	}
	if res.Ratio <= 1 {
		t.Errorf("Expected ratio > 1, got %v", res.Ratio)
	}
	if res.Placed != 2 || res.Total != 2 {
		t.Errorf("Expected 2/2 placed, got %d/%d", res.Placed, res.Total)
	}
}

func mixedSources(t *testing.T) []*tile.Source {
	t.Helper()
	return []*tile.Source{
		mustSource(t, "big", 3, solid(12, 8, color.NRGBA{200, 0, 0, 255})),
		mustSource(t, "mid", 2, solid(6, 6, color.NRGBA{0, 200, 0, 255})),
		mustSource(t, "small", 1, solid(4, 4, color.NRGBA{0, 0, 200, 255})),
		mustSource(t, "tiny", 1, solid(4, 2, color.NRGBA{0, 200, 200, 128})),
	}
}

func TestRun_PlacementsAreDisjointAndInsideCanvas(t *testing.T) {
	tmpl, err := canvas.NewEllipse(120, 80, color.White)
	if err != nil {
		t.Fatalf("NewEllipse failed: %v", err)
	}

	res, err := NewController(testOptions(), nearest).Run(context.Background(), tmpl, mixedSources(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	cells := 0
	for _, p := range res.Placements {
		cells += p.Cells
	}
	// Any overlap with another tile or with a cell outside the ellipse would
	// leave the taken count short of this sum.
	initiallyTaken := tmpl.Width*tmpl.Height - tmpl.FreeCells()
	if got := res.Canvas.TakenCount(); got != initiallyTaken+cells {
		t.Errorf("Taken count %d, want %d + %d", got, initiallyTaken, cells)
	}

	for _, p := range res.Canvas.Queue().Cells() {
		if res.Canvas.Taken(p.X, p.Y) {
			t.Fatalf("Queue holds taken cell %v", p)
		}
	}
}

func TestRun_PlacesHeaviestFirst(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(120, 80, color.White)
	res, err := NewController(testOptions(), nearest).Run(context.Background(), tmpl, mixedSources(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Placements[0].Name != "big" {
		t.Errorf("Expected heaviest tile first, got %s", res.Placements[0].Name)
	}
	if res.Placements[0].Anchor() != tmpl.Center {
		t.Errorf("First tile should land on the center %v, got %v", tmpl.Center, res.Placements[0].Anchor())
	}
	for i := 1; i < len(res.Placements); i++ {
		if res.Placements[i].Scale > res.Placements[i-1].Scale {
			t.Errorf("Placement %d has larger scale than its predecessor", i)
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	tmpl, _ := canvas.NewEllipse(120, 80, color.White)

	first, err := NewController(testOptions(), nearest).Run(context.Background(), tmpl, mixedSources(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	opts := testOptions()
	opts.Workers = 1
	second, err := NewController(opts, nearest).Run(context.Background(), tmpl, mixedSources(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !slices.Equal(first.Placements, second.Placements) {
		t.Errorf("Placements differ:\n%v\n%v", first.Placements, second.Placements)
	}
	if !slices.Equal(first.Image().Pix, second.Image().Pix) {
		t.Error("Images differ between identical runs")
	}
}

func TestPlace_StopsAtFirstFailure(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(20, 20, color.White)
	build := func(name string, w, h int) *tile.Tile {
		tl, err := tile.Build(mustSource(t, name, 1, solid(w, h, color.NRGBA{0, 0, 0, 255})), 0, 1, nearest, 1)
		if err != nil {
			t.Fatalf("Build(%s) failed: %v", name, err)
		}
		return tl
	}

	tiles := []*tile.Tile{build("fits", 10, 10), build("too-big", 20, 20), build("would-fit", 2, 2)}
	pass := Place(tmpl.Instantiate(), tiles)

	if pass.Placed != 1 {
		t.Errorf("Expected 1 placed tile, got %d", pass.Placed)
	}
	if pass.FailedTile != "too-big" {
		t.Errorf("Expected failure on too-big, got %q", pass.FailedTile)
	}
}

func TestFits_RejectsOutOfBounds(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(10, 10, color.White)
	c := tmpl.Instantiate()
	fp, err := tile.ExtractFootprint(solid(4, 4, color.NRGBA{0, 0, 0, 255}), 1)
	if err != nil {
		t.Fatalf("ExtractFootprint failed: %v", err)
	}

	if !Fits(c, fp, image.Pt(5, 5)) {
		t.Error("Footprint should fit at the center")
	}
	if Fits(c, fp, image.Pt(0, 0)) {
		t.Error("Footprint should not fit at the corner")
	}
	if Fits(c, fp, image.Pt(9, 5)) {
		t.Error("Footprint should not fit past the right edge")
	}
}

func TestRun_EmptyInput(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(10, 10, color.White)
	_, err := NewController(testOptions(), nearest).Run(context.Background(), tmpl, nil)
	if !errors.Is(err, tile.ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(100, 100, color.White)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewController(testOptions(), nearest).Run(ctx, tmpl, mixedSources(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// gridOptimizer evaluates evenly spaced points; it stands in for the
// stochastic optimizer so the test outcome is exact.
type gridOptimizer struct{ steps int }

func (g gridOptimizer) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	best := []float64{lower[0]}
	bestCost := eval(best)
	for i := 1; i <= g.steps; i++ {
		x := []float64{lower[0] + (upper[0]-lower[0])*float64(i)/float64(g.steps)}
		if c := eval(x); c < bestCost {
			best, bestCost = x, c
		}
	}
	return best, bestCost
}

func TestRun_SearchFindsSmallestSuccessfulRatio(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(100, 100, color.White)
	sources := []*tile.Source{
		mustSource(t, "a", 1, solid(10, 10, color.NRGBA{255, 0, 0, 255})),
		mustSource(t, "b", 1, solid(10, 10, color.NRGBA{0, 0, 255, 255})),
	}

	sweep, err := NewController(testOptions(), nearest).Run(context.Background(), tmpl, sources)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	opts := testOptions()
	opts.Strategy = StrategySearch
	// Grid points coincide with the sweep ratios 1.0, 1.1, ..., 2.9.
	ctrl := NewController(opts, nearest).WithOptimizer(gridOptimizer{steps: 19})
	res, err := ctrl.Run(context.Background(), tmpl, sources)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if res.Ratio > sweep.Ratio+1e-9 {
		t.Errorf("Search ratio %v should not exceed sweep ratio %v", res.Ratio, sweep.Ratio)
	}
	if res.Placed != res.Total {
		t.Errorf("Search result should place every tile, got %d/%d", res.Placed, res.Total)
	}
}

func TestRun_UnknownStrategy(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(10, 10, color.White)
	opts := testOptions()
	opts.Strategy = "annealing"
	_, err := NewController(opts, nearest).Run(context.Background(), tmpl, mixedSources(t))
	if err == nil {
		t.Error("Expected error for unknown strategy")
	}
}

// vanishingResizer renders images fully transparent below minScale.
type vanishingResizer struct{ minScale float64 }

func (v vanishingResizer) Resize(img *image.NRGBA, scale float64) *image.NRGBA {
	out := nearest.Resize(img, scale)
	if scale < v.minScale {
		return image.NewNRGBA(out.Bounds())
	}
	return out
}

// vanishingSources holds two 10x10 tiles that cannot share a 100x100 canvas
// before ratio 1.4 and a small "dot" whose scale is about 0.354/ratio.
func vanishingSources(t *testing.T) []*tile.Source {
	return []*tile.Source{
		mustSource(t, "a", 1, solid(10, 10, color.NRGBA{255, 0, 0, 255})),
		mustSource(t, "b", 1, solid(10, 10, color.NRGBA{0, 0, 255, 255})),
		mustSource(t, "dot", 0.05, solid(4, 4, color.NRGBA{0, 255, 0, 255})),
	}
}

func TestRun_TileVanishingDuringRelaxationExhausts(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(100, 100, color.White)

	opts := testOptions()
	opts.KeepPartial = true
	// The dot drops below scale 0.3 at ratio 1.2, the third attempt.
	_, err := NewController(opts, vanishingResizer{minScale: 0.3}).Run(context.Background(), tmpl, vanishingSources(t))

	if !errors.Is(err, ErrPlacementExhausted) {
		t.Fatalf("Expected ErrPlacementExhausted, got %v", err)
	}
	if !errors.Is(err, tile.ErrEmptyFootprint) {
		t.Errorf("Expected the empty footprint as cause, got %v", err)
	}
	var pe *PlacementExhaustedError
	errors.As(err, &pe)
	if pe.Attempts != 2 {
		t.Errorf("Expected 2 completed attempts, got %d", pe.Attempts)
	}
	if pe.Partial == nil || pe.Partial.Placed == 0 {
		t.Fatalf("Expected a partial result, got %+v", pe.Partial)
	}
	if pe.Placed != pe.Partial.Placed || pe.Total != 3 {
		t.Errorf("Unexpected error details: %+v", pe)
	}
}

func TestRun_TileEmptyAtStartRatioIsInputError(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(100, 100, color.White)

	_, err := NewController(testOptions(), vanishingResizer{minScale: 0.36}).Run(context.Background(), tmpl, vanishingSources(t))

	if !errors.Is(err, tile.ErrEmptyFootprint) {
		t.Fatalf("Expected ErrEmptyFootprint, got %v", err)
	}
	if errors.Is(err, ErrPlacementExhausted) {
		t.Errorf("An empty tile at the start ratio must not be reported as exhaustion: %v", err)
	}
}

func TestRun_SearchSkipsRatiosWhereTileVanishes(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(100, 100, color.White)

	opts := testOptions()
	opts.Strategy = StrategySearch
	// Everything above ratio 1.2 loses the dot, so no evaluation succeeds.
	ctrl := NewController(opts, vanishingResizer{minScale: 0.3}).WithOptimizer(gridOptimizer{steps: 19})
	_, err := ctrl.Run(context.Background(), tmpl, vanishingSources(t))

	if !errors.Is(err, ErrPlacementExhausted) {
		t.Fatalf("Expected ErrPlacementExhausted, got %v", err)
	}
	if !errors.Is(err, tile.ErrEmptyFootprint) {
		t.Errorf("Expected the empty footprint as cause, got %v", err)
	}
	var pe *PlacementExhaustedError
	errors.As(err, &pe)
	if pe.Attempts != 2 {
		t.Errorf("Expected the 2 ratios below 1.2 to be evaluated, got %d", pe.Attempts)
	}
}

func TestRun_SearchIsDeterministicForSeed(t *testing.T) {
	tmpl, _ := canvas.NewRectangle(100, 100, color.White)
	sources := []*tile.Source{
		mustSource(t, "a", 1, solid(10, 10, color.NRGBA{255, 0, 0, 255})),
		mustSource(t, "b", 1, solid(10, 10, color.NRGBA{0, 0, 255, 255})),
	}

	opts := testOptions()
	opts.Strategy = StrategySearch
	opts.Search = SearchOptions{Iterations: 3, Population: 20, Seed: 7}

	run := func() *Result {
		res, err := NewController(opts, nearest).Run(context.Background(), tmpl, sources)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		return res
	}
	first, second := run(), run()

	if first.Ratio != second.Ratio || first.Attempts != second.Attempts {
		t.Errorf("Reruns differ: ratio %v/%v, attempts %d/%d", first.Ratio, second.Ratio, first.Attempts, second.Attempts)
	}
	if !slices.Equal(first.Placements, second.Placements) {
		t.Errorf("Placements differ:\n%v\n%v", first.Placements, second.Placements)
	}
	if !slices.Equal(first.Image().Pix, second.Image().Pix) {
		t.Error("Images differ between identical searches")
	}
}
