package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/tilecloud/internal/config"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the fields of the server's job JSON that the CLI prints.
type jobStatus struct {
	ID        string        `json:"id"`
	State     string        `json:"state"`
	Layout    config.Layout `json:"layout"`
	Attempts  int           `json:"attempts"`
	Ratio     float64       `json:"ratio"`
	Placed    int           `json:"placed"`
	Total     int           `json:"total"`
	Elapsed   float64       `json:"elapsed"`
	StartTime time.Time     `json:"startTime"`
	Error     string        `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func fetchJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(url string) error {
	var jobs []jobStatus
	if _, err := fetchJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job.ID)
		fmt.Printf("  State: %s\n", job.State)
		fmt.Printf("  Canvas: %s\n", describeCanvas(job.Layout.Canvas))
		fmt.Printf("  Started: %s\n", humanize.Time(job.StartTime))
		if job.Attempts > 0 {
			fmt.Printf("  Placed: %d/%d (ratio %.2f, %d attempts)\n", job.Placed, job.Total, job.Ratio, job.Attempts)
		}
		fmt.Println()
	}

	return nil
}

func getJobStatus(url, jobID string) error {
	var status jobStatus
	code, err := fetchJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Job: %s\n", status.ID)
	fmt.Printf("State: %s\n", status.State)
	fmt.Println()

	layout := status.Layout
	fmt.Println("Layout:")
	fmt.Printf("  Canvas: %s\n", describeCanvas(layout.Canvas))
	fmt.Printf("  Tiles: %d\n", len(layout.Tiles))
	if layout.TileDir != "" {
		fmt.Printf("  Tile directory: %s\n", layout.TileDir)
	}
	fmt.Printf("  Strategy: %s (max %d attempts)\n", layout.Relax.Strategy, layout.Relax.MaxAttempts)
	fmt.Println()

	fmt.Println("Progress:")
	fmt.Printf("  Attempts: %d\n", status.Attempts)
	if status.Total > 0 {
		fmt.Printf("  Placed: %d/%d\n", status.Placed, status.Total)
		fmt.Printf("  Ratio: %.2f\n", status.Ratio)
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.Error != "" {
		fmt.Printf("\nError: %s\n", status.Error)
	}

	return nil
}

func describeCanvas(c config.CanvasConfig) string {
	if c.Shape == "mask" {
		return fmt.Sprintf("mask %s", c.Mask)
	}
	return fmt.Sprintf("%s %dx%d", c.Shape, c.Width, c.Height)
}
