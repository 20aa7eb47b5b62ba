package server

import (
	"encoding/json"
	"image"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
)

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writePNG encodes img as an uncached PNG response
func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// sortJobs orders jobs by start time, then ID
func sortJobs(jobs []*Job) {
	slices.SortFunc(jobs, func(a, b *Job) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
