package metrics

import (
	"math"
	"testing"

	"github.com/zzenonn/r2cap/internal/record"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// S5 — Prorating across two phases: one request starting in ramp_1 and
// finishing after ramp_2 has begun straddles both phases' adjacent,
// non-overlapping windows, and its bytes split 50/50 between them.
func TestProratingAcrossTwoPhases(t *testing.T) {
	req := record.RequestRecord{StartTs: 150, EndTs: 250, BytesDownloaded: 1000, HTTPStatus: 200}

	phase1Bytes := ProratedBytes(req, 100, 200)
	phase2Bytes := ProratedBytes(req, 200, 300)

	if !almostEqual(phase1Bytes, 500, 1e-6) {
		t.Fatalf("expected phase 1 prorated bytes ~500, got %f", phase1Bytes)
	}
	if !almostEqual(phase2Bytes, 500, 1e-6) {
		t.Fatalf("expected phase 2 prorated bytes ~500, got %f", phase2Bytes)
	}
	if !almostEqual(phase1Bytes+phase2Bytes, 1000, 1e-6) {
		t.Fatalf("expected sum of per-phase bytes to equal total bytes, got %f", phase1Bytes+phase2Bytes)
	}
}

// S6 — Prorating across three phases.
func TestProratingAcrossThreePhases(t *testing.T) {
	req := record.RequestRecord{StartTs: 170, EndTs: 370, BytesDownloaded: 1000, HTTPStatus: 200}

	ramp1 := ProratedBytes(req, 100, 200)
	ramp2 := ProratedBytes(req, 200, 300)
	ramp3 := ProratedBytes(req, 300, 400)

	if !almostEqual(ramp1, 150, 1e-6) {
		t.Fatalf("expected ramp_1 bytes ~150, got %f", ramp1)
	}
	if !almostEqual(ramp2, 500, 1e-6) {
		t.Fatalf("expected ramp_2 bytes ~500, got %f", ramp2)
	}
	if !almostEqual(ramp3, 350, 1e-6) {
		t.Fatalf("expected ramp_3 bytes ~350, got %f", ramp3)
	}
	if !almostEqual(ramp1+ramp2+ramp3, 1000, 1e-6) {
		t.Fatalf("expected sum of per-phase bytes to equal total bytes, got %f", ramp1+ramp2+ramp3)
	}
}

// Aggregate must prorate a request tagged with one phase into an adjacent
// phase's throughput when their time windows overlap, not just sum bytes
// for records tagged with the phase being aggregated (spec.md invariant I4).
func TestAggregateProratesStraddlingRecordIntoAdjacentPhase(t *testing.T) {
	records := []record.RequestRecord{
		{PhaseID: "ramp_1", StartTs: 100, EndTs: 200, BytesDownloaded: 1000, HTTPStatus: 200},
		{PhaseID: "ramp_2", StartTs: 150, EndTs: 250, BytesDownloaded: 1000, HTTPStatus: 200},
	}
	boundaries := DeriveBoundaries(records)

	ramp1Stats := Aggregate(records, "ramp_1", boundaries["ramp_1"])
	ramp2Stats := Aggregate(records, "ramp_2", boundaries["ramp_2"])

	// ramp_1's boundary is [100, 200]; ramp_2's record overlaps it from 150-200
	// (half its duration), contributing 500 prorated bytes on top of ramp_1's
	// own full 1000, for (1000*8)/(100*1e9) + half of ramp_2's bytes prorated
	// over the same 100s window.
	wantRamp1 := ((1000.0 + 500.0) * 8) / (100 * 1e9)
	if !almostEqual(ramp1Stats.ThroughputGbps, wantRamp1, 1e-9) {
		t.Fatalf("expected ramp_1 throughput %f, got %f", wantRamp1, ramp1Stats.ThroughputGbps)
	}

	// ramp_2's boundary is [150, 250]; ramp_1's record overlaps it from 150-200
	// (half its duration), contributing 500 prorated bytes on top of ramp_2's
	// own full 1000, over ramp_2's 100s window.
	wantRamp2 := ((1000.0 + 500.0) * 8) / (100 * 1e9)
	if !almostEqual(ramp2Stats.ThroughputGbps, wantRamp2, 1e-9) {
		t.Fatalf("expected ramp_2 throughput %f, got %f", wantRamp2, ramp2Stats.ThroughputGbps)
	}

	// Request counts stay scoped to each phase's own tag.
	if ramp1Stats.TotalRequests != 1 || ramp2Stats.TotalRequests != 1 {
		t.Fatalf("expected request counts to stay scoped per phase tag, got ramp_1=%d ramp_2=%d",
			ramp1Stats.TotalRequests, ramp2Stats.TotalRequests)
	}
}

// B2 — zero successful requests in a phase.
func TestAggregateZeroSuccessfulRequests(t *testing.T) {
	records := []record.RequestRecord{
		{PhaseID: "ramp_1", StartTs: 0, EndTs: 1, HTTPStatus: 500, BytesDownloaded: 0},
		{PhaseID: "ramp_1", StartTs: 1, EndTs: 2, HTTPStatus: 500, BytesDownloaded: 0},
	}
	boundary := Boundary{PhaseID: "ramp_1", Start: 0, End: 2}

	stats := Aggregate(records, "ramp_1", boundary)
	if stats.ThroughputGbps != 0 {
		t.Fatalf("expected zero throughput, got %f", stats.ThroughputGbps)
	}
	if stats.ErrorRate != 1.0 {
		t.Fatalf("expected error_rate 1.0, got %f", stats.ErrorRate)
	}
}

func TestAggregateComputesLatencyPercentiles(t *testing.T) {
	records := []record.RequestRecord{
		{PhaseID: "ramp_1", StartTs: 0, EndTs: 1, HTTPStatus: 200, BytesDownloaded: 100, LatencyMs: 10},
		{PhaseID: "ramp_1", StartTs: 0, EndTs: 1, HTTPStatus: 200, BytesDownloaded: 100, LatencyMs: 20},
		{PhaseID: "ramp_1", StartTs: 0, EndTs: 1, HTTPStatus: 200, BytesDownloaded: 100, LatencyMs: 30},
		{PhaseID: "ramp_1", StartTs: 0, EndTs: 1, HTTPStatus: 500, BytesDownloaded: 0, LatencyMs: 999},
	}
	boundary := Boundary{PhaseID: "ramp_1", Start: 0, End: 1}

	stats := Aggregate(records, "ramp_1", boundary)
	if stats.TotalRequests != 4 || stats.SuccessfulRequests != 3 || stats.ErrorRequests != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if !almostEqual(stats.ErrorRate, 0.25, 1e-9) {
		t.Fatalf("expected error_rate 0.25, got %f", stats.ErrorRate)
	}
	if !almostEqual(stats.AvgLatencyMs, 20, 1e-9) {
		t.Fatalf("expected avg latency 20ms, got %f", stats.AvgLatencyMs)
	}
}

func TestDeriveBoundariesMinMaxPerPhase(t *testing.T) {
	records := []record.RequestRecord{
		{PhaseID: "warmup", StartTs: 5, EndTs: 10},
		{PhaseID: "warmup", StartTs: 2, EndTs: 8},
		{PhaseID: "ramp_1", StartTs: 10, EndTs: 20},
	}
	boundaries := DeriveBoundaries(records)
	if boundaries["warmup"].Start != 2 || boundaries["warmup"].End != 10 {
		t.Fatalf("unexpected warmup boundary: %+v", boundaries["warmup"])
	}
	if boundaries["ramp_1"].Start != 10 || boundaries["ramp_1"].End != 20 {
		t.Fatalf("unexpected ramp_1 boundary: %+v", boundaries["ramp_1"])
	}
}

func TestWindowSeriesSkipsEmptyWindows(t *testing.T) {
	records := []record.RequestRecord{
		{StartTs: 0, EndTs: 1, BytesDownloaded: 1000, HTTPStatus: 200},
		{StartTs: 100, EndTs: 101, BytesDownloaded: 1000, HTTPStatus: 200},
	}
	points := WindowSeries(records, 1)
	if len(points) != 2 {
		t.Fatalf("expected 2 non-empty windows (gap skipped), got %d", len(points))
	}
}
