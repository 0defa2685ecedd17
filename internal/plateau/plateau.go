// Package plateau implements PlateauDetector (spec.md §4.H): a pure
// function of an ordered measurement sequence, deciding when further ramp
// steps stop helping. Grounded on the "system bandwidth" variant named
// authoritative by spec.md §9's open-question resolution — see DESIGN.md.
package plateau

// Measurement is one RampMeasurement: a (concurrency, throughput, duration)
// triple in insertion order (spec.md §3).
type Measurement struct {
	Concurrency    int
	ThroughputGbps float64
	DurationSec    float64
}

// Detector holds configured thresholds and the ordered measurement history.
// is_plateau is a pure function of that history (invariant I5): Detector
// carries no hidden state beyond the measurements themselves.
type Detector struct {
	threshold           float64
	systemBandwidthGbps float64
	measurements        []Measurement
}

// New creates a Detector. threshold defaults to 0.2 per spec.md §6;
// systemBandwidthGbps <= 0 disables the hard cap.
func New(threshold, systemBandwidthGbps float64) *Detector {
	return &Detector{threshold: threshold, systemBandwidthGbps: systemBandwidthGbps}
}

// Add appends a measurement to the ordered history.
func (d *Detector) Add(concurrency int, throughputGbps, durationSec float64) {
	d.measurements = append(d.measurements, Measurement{
		Concurrency:    concurrency,
		ThroughputGbps: throughputGbps,
		DurationSec:    durationSec,
	})
}

func (d *Detector) peak() float64 {
	peak := 0.0
	for _, m := range d.measurements {
		if m.ThroughputGbps > peak {
			peak = m.ThroughputGbps
		}
	}
	return peak
}

// IsPlateau evaluates the precedence chain in spec.md §4.H and returns
// whether the ramp should stop, and why.
func (d *Detector) IsPlateau() (bool, string) {
	n := len(d.measurements)
	if n == 0 {
		return false, "not enough measurements"
	}
	latest := d.measurements[n-1].ThroughputGbps

	// 1. Hard cap.
	if d.systemBandwidthGbps > 0 && latest >= d.systemBandwidthGbps {
		return true, "bandwidth limit reached"
	}

	// 2. Peak regression.
	peak := d.peak()
	if peak > 0 && (peak-latest)/peak > 0.2 {
		return true, "significant degradation from peak"
	}

	// 3. Not enough measurements (boundary B3).
	if n < 3 {
		return false, "not enough measurements"
	}

	// 4. Two consecutive relative changes among the last three measurements.
	a := d.measurements[n-3].ThroughputGbps
	b := d.measurements[n-2].ThroughputGbps
	c := d.measurements[n-1].ThroughputGbps

	change1 := relativeChange(a, b)
	change2 := relativeChange(b, c)

	if abs(change1) < d.threshold && abs(change2) < d.threshold {
		return true, "improvement below threshold"
	}
	if change1 < -0.1 && change2 < -0.1 {
		return true, "consistent degradation"
	}

	// 5. Otherwise.
	return false, "still improving"
}

// relativeChange is (to - from) / from, 0 if from is 0 (no prior baseline to
// regress against).
func relativeChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Summary is the current verdict plus the data it was computed from,
// exposed for the driver's final report (spec.md §4.H's summary()).
type Summary struct {
	MeasurementCount int
	Latest           Measurement
	Peak             float64
	Stop             bool
	Reason           string
}

// Summary exposes the measurement count, latest values, and current
// verdict.
func (d *Detector) Summary() Summary {
	stop, reason := d.IsPlateau()
	var latest Measurement
	if n := len(d.measurements); n > 0 {
		latest = d.measurements[n-1]
	}
	return Summary{
		MeasurementCount: len(d.measurements),
		Latest:           latest,
		Peak:             d.peak(),
		Stop:             stop,
		Reason:           reason,
	}
}

// Measurements returns the ordered history, primarily for reporting.
func (d *Detector) Measurements() []Measurement {
	out := make([]Measurement, len(d.measurements))
	copy(out, d.measurements)
	return out
}
