package imgutil

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Resizer scales an image by a uniform factor.
type Resizer interface {
	Resize(img *image.NRGBA, scale float64) *image.NRGBA
}

// ScaledSize returns the target size for scaling (w, h) by scale. Dimensions
// are truncated and clamped to at least one pixel.
func ScaledSize(w, h int, scale float64) (int, int) {
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
}

// LanczosResizer resamples with a Lanczos-3 filter.
type LanczosResizer struct{}

// Resize implements Resizer.
func (LanczosResizer) Resize(img *image.NRGBA, scale float64) *image.NRGBA {
	w, h := ScaledSize(img.Bounds().Dx(), img.Bounds().Dy(), scale)
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// KernelResizer resamples with one of the golang.org/x/image/draw scalers.
type KernelResizer struct {
	Scaler draw.Scaler
}

// Resize implements Resizer.
func (k KernelResizer) Resize(img *image.NRGBA, scale float64) *image.NRGBA {
	w, h := ScaledSize(img.Bounds().Dx(), img.Bounds().Dy(), scale)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	k.Scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// NewResizer returns the resizer registered under name. An empty name selects
// lanczos.
func NewResizer(name string) (Resizer, error) {
	switch strings.ToLower(name) {
	case "", "lanczos":
		return LanczosResizer{}, nil
	case "catmullrom", "catmull-rom":
		return KernelResizer{Scaler: draw.CatmullRom}, nil
	case "bilinear":
		return KernelResizer{Scaler: draw.BiLinear}, nil
	case "approxbilinear":
		return KernelResizer{Scaler: draw.ApproxBiLinear}, nil
	case "nearest":
		return KernelResizer{Scaler: draw.NearestNeighbor}, nil
	default:
		return nil, fmt.Errorf("unknown resampler: %s", name)
	}
}
