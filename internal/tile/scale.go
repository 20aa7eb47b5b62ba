package tile

import (
	"fmt"
	"image"
	"math"
)

// ScaleFactors converts raw weights into render scale factors.
//
// Weights are normalized to sum to one and every tile gets
// scale_i = weight_i * zoom, with
//
//	zoom = sqrt(area / Σ w_i·h_i·weight_i²) / relax
//
// so that the summed rendered area equals area/relax². Because the weight
// enters squared, a tile's linear size is proportional to its weight.
func ScaleFactors(names []string, weights []float64, sizes []image.Point, area, relax float64) ([]float64, error) {
	if len(weights) == 0 {
		return nil, ErrEmptyInput
	}
	if len(sizes) != len(weights) {
		return nil, fmt.Errorf("got %d sizes for %d weights", len(sizes), len(weights))
	}
	if relax < 1 {
		return nil, fmt.Errorf("relax ratio must be >= 1, got %v", relax)
	}
	if area <= 0 {
		return nil, fmt.Errorf("canvas area must be positive, got %v", area)
	}

	var sum float64
	for i, w := range weights {
		if !(w > 0) || math.IsInf(w, 0) {
			name := ""
			if i < len(names) {
				name = names[i]
			}
			return nil, &InvalidWeightError{Name: name, Weight: w}
		}
		sum += w
	}

	norm := make([]float64, len(weights))
	var s float64
	for i, w := range weights {
		norm[i] = w / sum
		s += float64(sizes[i].X*sizes[i].Y) * norm[i] * norm[i]
	}
	if s == 0 {
		return nil, fmt.Errorf("tiles have zero native area")
	}

	zoom := math.Sqrt(area/s) / relax
	scales := make([]float64, len(weights))
	for i := range norm {
		scales[i] = norm[i] * zoom
	}
	return scales, nil
}

// Scales is ScaleFactors over a slice of sources.
func Scales(sources []*Source, area, relax float64) ([]float64, error) {
	names := make([]string, len(sources))
	weights := make([]float64, len(sources))
	sizes := make([]image.Point, len(sources))
	for i, s := range sources {
		names[i] = s.Name
		weights[i] = s.Weight
		sizes[i] = s.Image.Bounds().Size()
	}
	return ScaleFactors(names, weights, sizes, area, relax)
}
