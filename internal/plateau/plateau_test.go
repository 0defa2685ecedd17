package plateau

import "testing"

// S1 — Clean improvement.
func TestCleanImprovementContinues(t *testing.T) {
	d := New(0.2, 0)
	d.Add(8, 100, 60)
	d.Add(16, 120, 60)
	d.Add(24, 140, 60)

	stop, reason := d.IsPlateau()
	if stop {
		t.Fatalf("expected continue, got stop with reason %q", reason)
	}
	if reason != "still improving" {
		t.Fatalf("expected 'still improving', got %q", reason)
	}
}

// S2 — Small improvements trigger plateau.
func TestSmallImprovementsTriggerPlateau(t *testing.T) {
	d := New(0.2, 0)
	d.Add(8, 100, 60)
	d.Add(16, 105, 60)
	d.Add(24, 108, 60)

	stop, reason := d.IsPlateau()
	if !stop {
		t.Fatal("expected stop")
	}
	if reason != "improvement below threshold" {
		t.Fatalf("expected threshold reason, got %q", reason)
	}
}

// S3 — Degradation from peak.
func TestDegradationFromPeak(t *testing.T) {
	d := New(0.2, 0)
	d.Add(8, 100, 60)
	d.Add(16, 150, 60)
	d.Add(24, 100, 60)

	stop, reason := d.IsPlateau()
	if !stop {
		t.Fatal("expected stop")
	}
	if reason != "significant degradation from peak" {
		t.Fatalf("expected degradation reason, got %q", reason)
	}
	summary := d.Summary()
	if summary.Peak != 150 || summary.Latest.ThroughputGbps != 100 {
		t.Fatalf("expected literal peak 150 and latest 100, got peak=%f latest=%f", summary.Peak, summary.Latest.ThroughputGbps)
	}
}

// S4 — Hard bandwidth cap.
func TestHardBandwidthCap(t *testing.T) {
	d := New(0.2, 5)
	d.Add(8, 1, 60)
	d.Add(16, 6, 60)

	stop, reason := d.IsPlateau()
	if !stop {
		t.Fatal("expected stop")
	}
	if reason != "bandwidth limit reached" {
		t.Fatalf("expected cap reason, got %q", reason)
	}
}

// B3 — fewer than 3 measurements never stops unless the hard cap or a peak
// regression triggers.
func TestFewerThanThreeMeasurementsNeverStopsWithoutCap(t *testing.T) {
	d := New(0.2, 0)
	d.Add(8, 100, 60)
	if stop, reason := d.IsPlateau(); stop {
		t.Fatalf("expected continue with 1 measurement, got stop %q", reason)
	}

	d.Add(16, 50, 60) // large single-step drop, but still only 2 measurements
	if stop, reason := d.IsPlateau(); stop {
		t.Fatalf("expected continue with 2 measurements absent hard cap or peak regression, got stop %q", reason)
	}
}

func TestConsistentDecline(t *testing.T) {
	d := New(0.2, 0)
	d.Add(8, 100, 60)
	d.Add(16, 80, 60)
	d.Add(24, 60, 60)

	stop, reason := d.IsPlateau()
	if !stop || reason != "consistent degradation" {
		t.Fatalf("expected consistent degradation, got stop=%v reason=%q", stop, reason)
	}
}

func TestIsPureFunctionOfMeasurementSequence(t *testing.T) {
	d1 := New(0.2, 0)
	d2 := New(0.2, 0)
	seq := []Measurement{{8, 100, 60}, {16, 120, 60}, {24, 140, 60}}
	for _, m := range seq {
		d1.Add(m.Concurrency, m.ThroughputGbps, m.DurationSec)
		d2.Add(m.Concurrency, m.ThroughputGbps, m.DurationSec)
	}
	s1, r1 := d1.IsPlateau()
	s2, r2 := d2.IsPlateau()
	if s1 != s2 || r1 != r2 {
		t.Fatal("two detectors fed the same sequence must agree")
	}
}
