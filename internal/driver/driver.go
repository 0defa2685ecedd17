// Package driver implements CapacityDriver (spec.md §4.I): the top-level
// state machine Init → EnsureObject → Warmup → Ramp → Terminate that owns
// PhaseManager (one per shard, via the coordinator), ShardCoordinator, and
// PlateauDetector, and decides when to stop ramping.
package driver

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/r2cap/internal/config"
	r2err "github.com/zzenonn/r2cap/internal/errors"
	"github.com/zzenonn/r2cap/internal/metrics"
	"github.com/zzenonn/r2cap/internal/plateau"
	"github.com/zzenonn/r2cap/internal/rangeio"
	"github.com/zzenonn/r2cap/internal/shard"
	"github.com/zzenonn/r2cap/internal/uploader"
	"github.com/zzenonn/r2cap/internal/worker"
)

// Options configures one capacity-discovery run. Unset fields are expected
// to already carry config.DefaultValues() per the CLI layer.
type Options struct {
	StorageKind              config.StorageKind
	ObjectKey                string
	ObjectSizeBytes          int64
	RangeSizeBytes           int64
	Shards                   int
	InitialWorkers           int
	RampStepWorkers          int
	RampStepDuration         time.Duration
	WarmUpDuration           time.Duration
	MaxWorkers               int
	PipelineDepth            int
	MaxRetries               int
	MaxConsecutiveErrors     int
	MaxErrorRate             float64
	MinRequestsForErrorCheck int
	PlateauThreshold         float64
	SystemBandwidthGbps      float64
	ResultsDir               string
}

// StepResult is one row of the ramp's per-step table, used in the final
// summary.
type StepResult struct {
	PhaseID     string
	Concurrency int
	Stats       metrics.PhaseStats
}

// Summary is CapacityDriver's Terminate-phase output (spec.md §4.I).
type Summary struct {
	BestConcurrency int
	BestThroughput  float64
	Steps           []StepResult
	PlateauVerdict  plateau.Summary
	TerminationNote string
	FilePaths       []string
}

// Driver runs the Init → EnsureObject → Warmup → Ramp → Terminate state
// machine against one RangeGetter.
type Driver struct {
	opts     Options
	getter   rangeio.RangeGetter
	cfg      *config.Config
	kind     config.StorageKind
	detector *plateau.Detector
}

// New constructs a Driver. cfg and kind are retained only for EnsureObject's
// fallback upload path.
func New(opts Options, getter rangeio.RangeGetter, cfg *config.Config, kind config.StorageKind) *Driver {
	return &Driver{
		opts:     opts,
		getter:   getter,
		cfg:      cfg,
		kind:     kind,
		detector: plateau.New(opts.PlateauThreshold, opts.SystemBandwidthGbps),
	}
}

// Run executes the full state machine and returns the final summary.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	if err := d.ensureObject(ctx); err != nil {
		return Summary{}, r2err.Wrap(r2err.KindMissingObject, err)
	}

	coord := shard.New(d.opts.Shards, d.opts.ResultsDir, worker.Config{
		PipelineDepth:        d.opts.PipelineDepth,
		MaxRetries:           d.opts.MaxRetries,
		MaxConsecutiveErrors: d.opts.MaxConsecutiveErrors,
		RangeSizeBytes:       d.opts.RangeSizeBytes,
		ObjectSizeBytes:      d.opts.ObjectSizeBytes,
	}, d.getter)

	workersPerShard := func(totalWorkers int) int {
		if d.opts.Shards <= 0 {
			return totalWorkers
		}
		n := totalWorkers / d.opts.Shards
		if n < 1 {
			n = 1
		}
		return n
	}

	// Warmup: results are recorded but not fed to the plateau detector.
	_, err := coord.RunPhase(workersPerShard(d.opts.InitialWorkers), "warmup", d.opts.InitialWorkers, d.opts.ObjectKey, d.opts.WarmUpDuration)
	if err != nil {
		coord.Shutdown()
		return Summary{}, fmt.Errorf("warmup phase: %w", err)
	}

	summary := Summary{FilePaths: coord.FilePaths()}
	currentConcurrency := d.opts.InitialWorkers
	step := 0

	for {
		select {
		case crashedShard := <-coord.Crashed():
			coord.Shutdown()
			summary.TerminationNote = fmt.Sprintf("shard %d crashed", crashedShard)
			return d.finalize(summary, coord), r2err.Wrap(r2err.KindShardCrash, fmt.Errorf("shard %d stopped polling", crashedShard))
		default:
		}

		step++
		phaseID := fmt.Sprintf("ramp_%d", step)

		stats, err := coord.RunPhase(workersPerShard(currentConcurrency), phaseID, currentConcurrency, d.opts.ObjectKey, d.opts.RampStepDuration)
		if err != nil {
			coord.Shutdown()
			return Summary{}, fmt.Errorf("%s: %w", phaseID, err)
		}

		summary.Steps = append(summary.Steps, StepResult{PhaseID: phaseID, Concurrency: currentConcurrency, Stats: stats})
		if stats.ThroughputGbps > summary.BestThroughput {
			summary.BestThroughput = stats.ThroughputGbps
			summary.BestConcurrency = currentConcurrency
		}

		if stats.TotalRequests >= d.opts.MinRequestsForErrorCheck && stats.ErrorRate > d.opts.MaxErrorRate {
			summary.TerminationNote = "high error rate"
			coord.Shutdown()
			return d.finalize(summary, coord), r2err.Wrap(r2err.KindPhaseErrorRate,
				fmt.Errorf("phase %s error_rate %.3f exceeds %.3f", phaseID, stats.ErrorRate, d.opts.MaxErrorRate))
		}

		d.detector.Add(currentConcurrency, stats.ThroughputGbps, stats.DurationSeconds)
		if stop, reason := d.detector.IsPlateau(); stop {
			summary.TerminationNote = reason
			summary.PlateauVerdict = d.detector.Summary()
			break
		}

		currentConcurrency += d.opts.RampStepWorkers
		if currentConcurrency > d.opts.MaxWorkers {
			summary.TerminationNote = "max concurrency reached"
			summary.PlateauVerdict = d.detector.Summary()
			break
		}
	}

	coord.Shutdown()
	return d.finalize(summary, coord), nil
}

func (d *Driver) finalize(summary Summary, coord *shard.Coordinator) Summary {
	summary.FilePaths = coord.FilePaths()
	if summary.PlateauVerdict.MeasurementCount == 0 {
		summary.PlateauVerdict = d.detector.Summary()
	}
	log.Infof("run terminated: %s (best concurrency %d, best throughput %.2f Gbps)",
		summary.TerminationNote, summary.BestConcurrency, summary.BestThroughput)
	return summary
}

// ensureObject verifies the test object exists, attempting to seed a
// default-sized object via the external uploader on miss. Failure here is
// fatal (spec.md §7's missing_object kind).
func (d *Driver) ensureObject(ctx context.Context) error {
	exists, err := d.getter.Exists(ctx, d.opts.ObjectKey)
	if err != nil {
		return fmt.Errorf("checking object existence: %w", err)
	}
	if exists {
		return nil
	}

	log.Warnf("object %s not found, seeding a %d-byte test object", d.opts.ObjectKey, d.opts.ObjectSizeBytes)
	if _, err := uploader.Upload(ctx, d.cfg, d.kind, d.opts.ObjectKey, d.opts.ObjectSizeBytes, false); err != nil {
		return fmt.Errorf("seeding test object: %w", err)
	}
	return nil
}
