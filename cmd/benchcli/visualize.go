package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/r2cap/internal/metrics"
	"github.com/zzenonn/r2cap/internal/record"
)

var (
	visualizeInputFile string
	visualizeOutputDir string
	visualizeWindowSec float64
)

// visualizeCmd is a report-only companion to check: it never talks to
// storage, it only summarizes request records that check already flushed to
// disk. Kept deliberately thin, since detailed plotting sits outside this
// repo's core concern.
var visualizeCmd = &cobra.Command{
	Use:   "visualize",
	Short: "Summarize flushed request records into a per-phase report",
	Run:   runVisualize,
}

func init() {
	visualizeCmd.Flags().StringVar(&visualizeInputFile, "input-file", "", "request-record CSV file to summarize (required)")
	visualizeCmd.Flags().StringVar(&visualizeOutputDir, "output-dir", "", "directory to write the report to (default: stdout only)")
	visualizeCmd.Flags().Float64Var(&visualizeWindowSec, "window-seconds", 30, "window size for the throughput time series")
	visualizeCmd.MarkFlagRequired("input-file")
}

func runVisualize(cmd *cobra.Command, args []string) {
	records, err := record.LoadFile(visualizeInputFile)
	if err != nil {
		log.Errorf("failed to load %s: %v", visualizeInputFile, err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("no records found")
		return
	}

	boundaries := metrics.DeriveBoundaries(records)
	phaseIDs := make([]string, 0, len(boundaries))
	for id := range boundaries {
		phaseIDs = append(phaseIDs, id)
	}
	sort.Strings(phaseIDs)

	var report string
	report += fmt.Sprintf("loaded %d records across %d phases\n\n", len(records), len(phaseIDs))
	for _, id := range phaseIDs {
		stats := metrics.Aggregate(records, id, boundaries[id])
		report += fmt.Sprintf(
			"phase=%-10s requests=%-6d errors=%-6d error_rate=%.3f throughput=%.2fGbps p50=%.1fms p95=%.1fms p99=%.1fms\n",
			stats.PhaseID, stats.TotalRequests, stats.ErrorRequests, stats.ErrorRate,
			stats.ThroughputGbps, stats.P50LatencyMs, stats.P95LatencyMs, stats.P99LatencyMs,
		)
	}

	report += "\nthroughput time series:\n"
	for _, p := range metrics.WindowSeries(records, visualizeWindowSec) {
		report += fmt.Sprintf("  [%.1f, %.1f) %.2fGbps\n", p.Start, p.End, p.ThroughputGbps)
	}

	fmt.Print(report)

	if visualizeOutputDir != "" {
		if err := os.MkdirAll(visualizeOutputDir, 0o755); err != nil {
			log.Errorf("failed to create output dir %s: %v", visualizeOutputDir, err)
			os.Exit(1)
		}
		outPath := filepath.Join(visualizeOutputDir, "report.txt")
		if err := os.WriteFile(outPath, []byte(report), 0o644); err != nil {
			log.Errorf("failed to write %s: %v", outPath, err)
			os.Exit(1)
		}
		fmt.Printf("\nwrote report to %s\n", outPath)
	}
}
