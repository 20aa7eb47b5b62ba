package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/tilecloud/internal/config"
	"github.com/cwbudde/tilecloud/internal/imgutil"
	"github.com/cwbudde/tilecloud/internal/pack"
	"github.com/cwbudde/tilecloud/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	shape        string
	width        int
	height       int
	maskPath     string
	contourWidth int
	contourColor string
	background   string
	tileFlags    []string
	tileDir      string
	libraryRoot  string
	vendor       string
	outPaths     []string
	resultPath   string
	strategy     string
	maxAttempts  int
	keepPartial  bool
	resampler    string
	workers      int
	runDataDir   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single layout",
	Long: `Lays out the given tiles on a canvas and writes the collage image(s)
plus a JSON result with every placement.

Tiles come from --config, --tile (repeatable, "name[:weight]") and --tile-dir.
A tile name is a file path, a codepoint key such as 1f602, or an emoji; keys
and emoji are resolved in --library/<vendor>/. Flags override the config file.`,
	RunE: runLayout,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Layout file (.toml, .yaml, .json)")
	f.StringVar(&shape, "shape", "ellipse", "Canvas shape: rectangle, ellipse, mask")
	f.IntVar(&width, "width", 720, "Canvas width (rectangle, ellipse)")
	f.IntVar(&height, "height", 360, "Canvas height (rectangle, ellipse)")
	f.StringVar(&maskPath, "mask", "", "Mask image (mask shape)")
	f.IntVar(&contourWidth, "contour-width", 5, "Contour band width in pixels (mask shape, 0 = none)")
	f.StringVar(&contourColor, "contour-color", "#00acee", "Contour band color")
	f.StringVar(&background, "background", "white", "Canvas background color")
	f.StringArrayVarP(&tileFlags, "tile", "t", nil, `Tile as "name[:weight]" (repeatable)`)
	f.StringVar(&tileDir, "tile-dir", "", "Use every image in this directory as a tile")
	f.StringVar(&libraryRoot, "library", "", "Tile library root")
	f.StringVar(&vendor, "vendor", "", "Tile library vendor subdirectory")
	f.StringArrayVarP(&outPaths, "out", "o", []string{"collage.png"}, "Output image path; format by extension (repeatable)")
	f.StringVar(&resultPath, "result", "", "Result JSON path (default: first output with .json)")
	f.StringVar(&strategy, "strategy", "sweep", "Relaxation strategy: sweep, search")
	f.IntVar(&maxAttempts, "max-attempts", 20, "Maximum relaxation attempts")
	f.BoolVar(&keepPartial, "keep-partial", false, "Write the best partial layout when every attempt fails")
	f.StringVar(&resampler, "resampler", "lanczos", "Resampler: lanczos, catmullrom, bilinear, approxbilinear, nearest")
	f.IntVar(&workers, "workers", 0, "Parallel tile workers (0 = number of CPUs)")
	f.StringVar(&runDataDir, "data-dir", "", "Also store the result under this data directory")

	rootCmd.AddCommand(runCmd)
}

// parseTileFlag splits "name[:weight]". A suffix that is not a number is
// part of the name.
func parseTileFlag(s string) (config.TileConfig, error) {
	if s == "" {
		return config.TileConfig{}, fmt.Errorf("empty tile")
	}
	if i := strings.LastIndex(s, ":"); i > 0 {
		if w, err := strconv.ParseFloat(s[i+1:], 64); err == nil {
			return config.TileConfig{Name: s[:i], Weight: w}, nil
		}
	}
	return config.TileConfig{Name: s, Weight: 1}, nil
}

// buildLayout merges the config file with the flags that were set explicitly.
func buildLayout(cmd *cobra.Command) (config.Layout, error) {
	layout := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return layout, err
		}
		layout = loaded
	}

	f := cmd.Flags()
	if f.Changed("shape") {
		layout.Canvas.Shape = shape
	}
	if f.Changed("width") {
		layout.Canvas.Width = width
	}
	if f.Changed("height") {
		layout.Canvas.Height = height
	}
	if f.Changed("mask") {
		layout.Canvas.Mask = maskPath
	}
	if f.Changed("contour-width") {
		layout.Canvas.ContourWidth = contourWidth
	}
	if f.Changed("contour-color") {
		layout.Canvas.ContourColor = contourColor
	}
	if f.Changed("background") {
		layout.Canvas.Background = background
	}
	for _, s := range tileFlags {
		t, err := parseTileFlag(s)
		if err != nil {
			return layout, err
		}
		layout.Tiles = append(layout.Tiles, t)
	}
	if f.Changed("tile-dir") {
		layout.TileDir = tileDir
	}
	if f.Changed("library") {
		layout.Library.Root = libraryRoot
	}
	if f.Changed("vendor") {
		layout.Library.Vendor = vendor
	}
	if f.Changed("out") || len(layout.Outputs) == 0 {
		layout.Outputs = outPaths
	}
	if f.Changed("strategy") {
		layout.Relax.Strategy = strategy
	}
	if f.Changed("max-attempts") {
		layout.Relax.MaxAttempts = maxAttempts
	}
	if f.Changed("keep-partial") {
		layout.Relax.KeepPartial = keepPartial
	}
	if f.Changed("resampler") {
		layout.Resampler = resampler
	}
	if f.Changed("workers") {
		layout.Workers = workers
	}

	if err := layout.Validate(); err != nil {
		return layout, err
	}
	return layout, nil
}

// defaultResultPath returns the first output path with a .json extension.
func defaultResultPath(outputs []string) string {
	if len(outputs) == 0 {
		return "result.json"
	}
	out := outputs[0]
	return strings.TrimSuffix(out, filepath.Ext(out)) + ".json"
}

func runLayout(cmd *cobra.Command, args []string) error {
	layout, err := buildLayout(cmd)
	if err != nil {
		return err
	}

	tmpl, err := layout.Template()
	if err != nil {
		return fmt.Errorf("failed to build canvas: %w", err)
	}
	sources, err := layout.Sources()
	if err != nil {
		return fmt.Errorf("failed to load tiles: %w", err)
	}
	ctrl, err := layout.Controller()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	res, runErr := ctrl.Run(ctx, tmpl, sources)
	elapsed := time.Since(start)

	if runErr != nil {
		var pe *pack.PlacementExhaustedError
		if !errors.As(runErr, &pe) || pe.Partial == nil {
			return runErr
		}
		slog.Warn("Writing partial layout", "placed", pe.Partial.Placed, "total", pe.Partial.Total)
		res = pe.Partial
	}

	jobID := uuid.New().String()
	record := store.NewRecord(jobID, layout, res, elapsed)

	for _, out := range layout.Outputs {
		if err := imgutil.Export(res.Image(), out); err != nil {
			return err
		}
	}

	rp := resultPath
	if rp == "" {
		rp = defaultResultPath(layout.Outputs)
	}
	if err := writeRecord(rp, record); err != nil {
		return err
	}

	if runDataDir != "" {
		fs, err := store.NewFSStore(runDataDir)
		if err != nil {
			return fmt.Errorf("failed to create result store: %w", err)
		}
		if err := fs.SaveImage(jobID, res.Image()); err != nil {
			return err
		}
		if err := fs.SaveResult(jobID, record); err != nil {
			return err
		}
		slog.Info("Result stored", "job_id", jobID, "dir", fs.JobDir(jobID))
	}

	slog.Info("Layout written",
		"outputs", layout.Outputs,
		"result", rp,
		"ratio", res.Ratio,
		"attempts", res.Attempts,
		"placed", res.Placed,
		"total", res.Total,
		"elapsed", elapsed,
	)
	fmt.Printf("Wrote %s (%d/%d tiles, ratio %.2f after %d attempts)\n",
		strings.Join(layout.Outputs, ", "), res.Placed, res.Total, res.Ratio, res.Attempts)

	return runErr
}

func writeRecord(path string, record *store.Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create result directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
