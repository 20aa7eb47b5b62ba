package tile

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff"}

// Library resolves tile keys to image files. Images live under
// <Root>/<Vendor>/<key>.png, where key is a lowercase codepoint sequence such
// as "1f602" or "1f1e6-1f1e8".
type Library struct {
	Root   string
	Vendor string
}

// CodepointKey converts text (typically one emoji) into its codepoint key.
// ASCII-only input is assumed to already be a key and is lowercased.
func CodepointKey(s string) string {
	ascii := true
	for _, r := range s {
		if r > 0x7f {
			ascii = false
			break
		}
	}
	if ascii {
		return strings.ToLower(s)
	}
	parts := make([]string, 0, len(s))
	for _, r := range s {
		parts = append(parts, fmt.Sprintf("%x", r))
	}
	return strings.Join(parts, "-")
}

// candidates lists the key spellings tried during resolution.
func candidates(key string) []string {
	k := CodepointKey(key)
	out := []string{k}
	if stripped := strings.ReplaceAll(k, "-fe0f", ""); stripped != k {
		out = append(out, stripped)
	}
	upper := strings.ToUpper(k)
	if upper != k {
		out = append(out, upper)
	}
	return out
}

// Resolve returns the image path for key. An existing file path is returned
// unchanged.
func (l Library) Resolve(key string) (string, error) {
	if info, err := os.Stat(key); err == nil && !info.IsDir() {
		return key, nil
	}
	if l.Root == "" {
		return "", fmt.Errorf("tile %q is not a file and no library is configured", key)
	}

	dir := filepath.Join(l.Root, l.Vendor)
	for _, c := range candidates(key) {
		for _, ext := range imageExts {
			path := filepath.Join(dir, c+ext)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("tile %q not found in %s", key, dir)
}

// ListImages returns the image files in dir sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExts, strings.ToLower(filepath.Ext(e.Name()))) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// DefaultWeight is the weight given to the i-th image of a directory when no
// explicit weights are configured: 1.1, 1.2, 1.3, ...
func DefaultWeight(i int) float64 {
	return float64(i+1)/10 + 1
}
