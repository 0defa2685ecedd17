// Package metrics implements MetricsAggregator (spec.md §4.C): per-phase
// statistics with time-prorated throughput across phase and window
// boundaries, grounded on the teacher's aggregation-by-reduce style seen in
// its repository layer's summary queries, generalized to the byte-overlap
// algorithm spec.md §4.C requires.
package metrics

import (
	"math"
	"sort"

	"github.com/zzenonn/r2cap/internal/record"
)

// Boundary is the derived (start, end) wall-time interval a phase_id spans,
// computed from the min start_ts / max end_ts over its records (spec.md §3,
// PhaseBoundaries).
type Boundary struct {
	PhaseID string
	Start   float64
	End     float64
}

// DeriveBoundaries computes one Boundary per distinct phase_id present in
// records.
func DeriveBoundaries(records []record.RequestRecord) map[string]Boundary {
	out := make(map[string]Boundary)
	for _, r := range records {
		b, ok := out[r.PhaseID]
		if !ok {
			out[r.PhaseID] = Boundary{PhaseID: r.PhaseID, Start: r.StartTs, End: r.EndTs}
			continue
		}
		if r.StartTs < b.Start {
			b.Start = r.StartTs
		}
		if r.EndTs > b.End {
			b.End = r.EndTs
		}
		out[r.PhaseID] = b
	}
	return out
}

// overlap returns the duration a request [start, end] shares with window
// [wStart, wEnd], 0 if disjoint.
func overlap(start, end, wStart, wEnd float64) float64 {
	lo := math.Max(start, wStart)
	hi := math.Min(end, wEnd)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// ProratedBytes attributes r's bytes to window [wStart, wEnd] in proportion
// to the overlap of r's [start_ts, end_ts] interval with that window
// (spec.md §4.C's prorated throughput algorithm). A zero-duration request
// is charged in full to any window containing its instant.
func ProratedBytes(r record.RequestRecord, wStart, wEnd float64) float64 {
	duration := r.EndTs - r.StartTs
	if duration <= 0 {
		if r.StartTs >= wStart && r.StartTs < wEnd {
			return float64(r.BytesDownloaded)
		}
		return 0
	}
	ov := overlap(r.StartTs, r.EndTs, wStart, wEnd)
	if ov <= 0 {
		return 0
	}
	return float64(r.BytesDownloaded) * (ov / duration)
}

// PhaseStats is the output of aggregating one phase's records.
type PhaseStats struct {
	PhaseID             string
	TotalRequests       int
	SuccessfulRequests  int
	ErrorRequests       int
	ErrorRate           float64
	AvgLatencyMs        float64
	P50LatencyMs        float64
	P95LatencyMs        float64
	P99LatencyMs        float64
	ThroughputGbps      float64
	DurationSeconds     float64
}

// Aggregate computes PhaseStats for phaseID. Request counts, error rate, and
// latency percentiles come only from records tagged phaseID, but throughput
// is prorated over every successful record in records that overlaps
// boundary — including records tagged with an adjacent phase — per spec.md
// invariant I4 ("summed over every record overlapping P"). A request that
// starts in one phase and finishes after the next phase has begun charges
// part of its bytes to each; restricting the sum to same-tagged records
// would make that proration a no-op, since a record's own phase boundary is
// by construction wide enough to fully contain it. With zero successful
// requests it returns zero throughput and error_rate 1.0 without dividing
// by zero (spec.md boundary B2).
func Aggregate(records []record.RequestRecord, phaseID string, boundary Boundary) PhaseStats {
	stats := PhaseStats{PhaseID: phaseID}

	var latencies []float64

	for _, r := range records {
		if r.PhaseID != phaseID {
			continue
		}
		stats.TotalRequests++
		if isSuccessful(r) {
			stats.SuccessfulRequests++
			latencies = append(latencies, r.LatencyMs)
		} else {
			stats.ErrorRequests++
		}
	}

	if stats.TotalRequests == 0 {
		stats.ErrorRate = 1.0
		return stats
	}
	stats.ErrorRate = float64(stats.ErrorRequests) / float64(stats.TotalRequests)

	stats.DurationSeconds = boundary.End - boundary.Start

	if stats.SuccessfulRequests == 0 {
		stats.ErrorRate = 1.0
		return stats
	}

	sort.Float64s(latencies)
	stats.AvgLatencyMs = mean(latencies)
	stats.P50LatencyMs = percentile(latencies, 0.50)
	stats.P95LatencyMs = percentile(latencies, 0.95)
	stats.P99LatencyMs = percentile(latencies, 0.99)

	var proratedBytes float64
	for _, r := range records {
		if !isSuccessful(r) {
			continue
		}
		proratedBytes += ProratedBytes(r, boundary.Start, boundary.End)
	}

	if stats.DurationSeconds > 0 {
		stats.ThroughputGbps = (proratedBytes * 8) / (stats.DurationSeconds * 1e9)
	}

	return stats
}

func isSuccessful(r record.RequestRecord) bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus < 300
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// percentile uses nearest-rank over a pre-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// WindowPoint is one row of a per-window time series: the prorated bytes
// (and derived throughput) attributable to window [Start, Start+W).
type WindowPoint struct {
	Start          float64
	End            float64
	ThroughputGbps float64
}

// WindowSeries buckets records into fixed-size windows starting at the
// earliest start_ts seen, emitting a prorated throughput per window. A
// window with no overlapping requests emits no row (spec.md §4.C).
func WindowSeries(records []record.RequestRecord, windowSeconds float64) []WindowPoint {
	if len(records) == 0 || windowSeconds <= 0 {
		return nil
	}

	minStart := records[0].StartTs
	maxEnd := records[0].EndTs
	for _, r := range records[1:] {
		if r.StartTs < minStart {
			minStart = r.StartTs
		}
		if r.EndTs > maxEnd {
			maxEnd = r.EndTs
		}
	}

	var points []WindowPoint
	for wStart := minStart; wStart < maxEnd; wStart += windowSeconds {
		wEnd := wStart + windowSeconds
		var bytesSum float64
		hasOverlap := false
		for _, r := range records {
			if !isSuccessful(r) {
				continue
			}
			b := ProratedBytes(r, wStart, wEnd)
			if b > 0 {
				hasOverlap = true
				bytesSum += b
			}
		}
		if !hasOverlap {
			continue
		}
		points = append(points, WindowPoint{
			Start:          wStart,
			End:            wEnd,
			ThroughputGbps: (bytesSum * 8) / (windowSeconds * 1e9),
		})
	}
	return points
}
