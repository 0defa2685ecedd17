// Package shard implements ShardCoordinator (spec.md §4.G): the Go
// re-architecture of a process-based worker pool into goroutine-based
// shards, per spec.md §9's "thread-safe ramp state across shards" note.
// Cross-shard shared state (`phase_id`, `object_key`, `workers_per_shard`)
// is published through an atomic.Pointer-backed cell with one writer (the
// coordinator) and many readers (the shards' poll loops) — the direct Go
// analogue of a seq-lock-style single-writer/many-reader shared-memory
// segment, instead of relying on a language-level manager proxy.
package shard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/r2cap/internal/metrics"
	"github.com/zzenonn/r2cap/internal/phase"
	"github.com/zzenonn/r2cap/internal/rangeio"
	"github.com/zzenonn/r2cap/internal/record"
	"github.com/zzenonn/r2cap/internal/telemetry"
	"github.com/zzenonn/r2cap/internal/worker"
)

// pollInterval is how often each shard checks the published shared state
// (spec.md §4.G: "≈ every 2s").
const pollInterval = 2 * time.Second

// propagationDelay is the bound on how long it takes a freshly-published
// phase id to show up on new records (spec.md §4.G: "≈ 3s").
const propagationDelay = 3 * time.Second

// flushDrainTimeout bounds how long RunPhase waits for a forced flush to
// complete before giving up on stragglers.
const flushDrainTimeout = 10 * time.Second

// sharedCell is the cross-shard published state. Replaced wholesale by the
// coordinator on every publish; shards only ever read a snapshot pointer,
// never mutate it.
type sharedCell struct {
	phaseID           string
	objectKey         string
	workersPerShard   int
	targetConcurrency int
	flushGen          int
	flushLabel        string
}

// Coordinator owns N shards, each with its own WorkerPool, PhaseManager,
// and RecordStore (spec.md §3's ownership rule: no cross-shard sharing of
// those).
type Coordinator struct {
	resultsDir string
	workerCfg  worker.Config
	getter     rangeio.RangeGetter

	shared atomic.Pointer[sharedCell]

	mu      sync.Mutex
	shards  []*shardRuntime
	started bool

	crashed chan int // shard id that missed its liveness heartbeat

	cutoffMu sync.Mutex
	// cutoffs[phaseID][shardID] is the measurement_started_ts that shard
	// observed for that phase, in seconds since epoch. Steady-state stats
	// exclude any record from that shard with start_ts before this cutoff,
	// per spec.md §4.D's "downstream steady-state stats only include
	// records whose start_ts ≥ measurement_started_ts" rule. A shard with
	// no recorded cutoff (it never saturated) contributes its records
	// unfiltered.
	cutoffs map[string]map[int]float64
}

type shardRuntime struct {
	id       int
	pool     *worker.Pool
	phaseMgr *phase.Manager
	store    *record.Store

	observedPhaseID  string
	observedFlushGen atomic.Int64

	heartbeat atomic.Int64 // unix nanos of last successful poll iteration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New builds a Coordinator for numShards shards, each configured from
// workerCfg (ShardID is overwritten per shard).
func New(numShards int, resultsDir string, workerCfg worker.Config, getter rangeio.RangeGetter) *Coordinator {
	c := &Coordinator{
		resultsDir: resultsDir,
		workerCfg:  workerCfg,
		getter:     getter,
		crashed:    make(chan int, numShards),
		cutoffs:    make(map[string]map[int]float64),
	}
	c.shared.Store(&sharedCell{})
	c.shards = make([]*shardRuntime, numShards)
	for i := 0; i < numShards; i++ {
		cfg := workerCfg
		cfg.ShardID = i
		pm := phase.NewManager()
		store := record.NewStore(i, resultsDir)
		c.shards[i] = &shardRuntime{
			id:       i,
			pool:     worker.New(cfg, pm, store, getter),
			phaseMgr: pm,
			store:    store,
			stopCh:   make(chan struct{}),
		}
	}
	return c
}

// Crashed returns a channel that yields a shard id whenever the
// coordinator's liveness watchdog finds a shard has stopped polling —
// spec.md §7's shard_crash condition.
func (c *Coordinator) Crashed() <-chan int {
	return c.crashed
}

func (c *Coordinator) spawnShards() {
	for _, s := range c.shards {
		s.wg.Add(1)
		go c.pollLoop(s)
	}
	go c.watchLiveness()
}

// watchLiveness detects a shard that has stopped polling — spec.md §7's
// shard_crash condition — and reports it on the Crashed channel. A shard is
// considered dead once it misses three consecutive poll intervals.
func (c *Coordinator) watchLiveness() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	reported := make(map[int]bool)

	for range ticker.C {
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if !started {
			return
		}

		now := time.Now().UnixNano()
		staleAfter := int64(3 * pollInterval)
		for _, s := range c.shards {
			last := s.heartbeat.Load()
			if last == 0 || reported[s.id] {
				continue
			}
			if now-last > staleAfter {
				reported[s.id] = true
				select {
				case c.crashed <- s.id:
				default:
				}
			}
		}
	}
}

// pollLoop is the per-shard poll goroutine: reads the published shared
// cell at pollInterval, and on a change to phase_id/workers_per_shard or a
// flush request, applies it locally.
func (c *Coordinator) pollLoop(s *shardRuntime) {
	defer s.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			cell := c.shared.Load()
			s.heartbeat.Store(time.Now().UnixNano())

			if int64(cell.flushGen) != s.observedFlushGen.Load() {
				if path, err := s.store.Flush(cell.flushLabel); err != nil {
					log.Warnf("shard %d: forced flush failed, batch retained: %v", s.id, err)
				} else if path != "" {
					log.Debugf("shard %d: forced flush wrote %s", s.id, path)
				}
				// Mark the generation observed only after the flush has run, so
				// waitForFlushDrain does not return before the file exists.
				s.observedFlushGen.Store(int64(cell.flushGen))
			}

			if cell.phaseID != s.observedPhaseID {
				s.observedPhaseID = cell.phaseID
				s.phaseMgr.BeginPhase(cell.phaseID, cell.targetConcurrency)
			}
			s.pool.Start(cell.workersPerShard, cell.objectKey)
		}
	}
}

// RunPhase publishes a new (workers_per_shard, phase_id) to every shard, on
// first call also spawning the shards, waits duration, force-flushes every
// shard's RecordStore, and returns the aggregated PhaseStats for phaseID.
func (c *Coordinator) RunPhase(workersPerShard int, phaseID string, targetConcurrency int, objectKey string, duration time.Duration) (metrics.PhaseStats, error) {
	c.mu.Lock()
	if !c.started {
		c.started = true
		c.spawnShards()
	}
	c.mu.Unlock()

	cell := &sharedCell{
		phaseID:           phaseID,
		objectKey:         objectKey,
		workersPerShard:   workersPerShard,
		targetConcurrency: targetConcurrency,
		flushGen:          c.currentFlushGen() + 1,
		flushLabel:        phaseID,
	}
	c.shared.Store(cell)

	time.Sleep(duration)

	// Force a final flush labeled "{phase_id}_flush" so every shard's
	// in-memory buffer reaches disk before stats are computed.
	flushCell := *cell
	flushCell.flushGen = cell.flushGen + 1
	flushCell.flushLabel = phaseID + "_flush"
	c.shared.Store(&flushCell)

	c.waitForFlushDrain(flushCell.flushGen)
	c.captureMeasurementCutoffs(phaseID)

	stats, err := c.StatsForPhase(phaseID)
	if err == nil {
		telemetry.ObservePhaseThroughput(phaseID, stats.ThroughputGbps)
	}
	return stats, err
}

// captureMeasurementCutoffs records each shard's measurement_started_ts for
// phaseID, read while that shard's PhaseManager is still showing phaseID as
// current (i.e. before the next RunPhase call advances it).
func (c *Coordinator) captureMeasurementCutoffs(phaseID string) {
	perShard := make(map[int]float64)
	for _, s := range c.shards {
		snap := s.phaseMgr.Snapshot()
		if snap.PhaseID == phaseID && snap.MeasurementStarted {
			perShard[s.id] = float64(snap.MeasurementStartTs.UnixNano()) / 1e9
		}
	}
	c.cutoffMu.Lock()
	c.cutoffs[phaseID] = perShard
	c.cutoffMu.Unlock()
}

func (c *Coordinator) currentFlushGen() int {
	return c.shared.Load().flushGen
}

// waitForFlushDrain polls until every shard has observed flushGen, bounded
// by flushDrainTimeout.
func (c *Coordinator) waitForFlushDrain(flushGen int) {
	deadline := time.Now().Add(flushDrainTimeout)
	for time.Now().Before(deadline) {
		allCaughtUp := true
		for _, s := range c.shards {
			if s.observedFlushGen.Load() != int64(flushGen) {
				allCaughtUp = false
				break
			}
		}
		if allCaughtUp {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Warnf("flush drain exceeded %s, proceeding with stragglers possibly unflushed", flushDrainTimeout)
}

// StatsForPhase loads every record flushed so far across every phase (not
// just phaseID — Aggregate needs the neighboring phases' records too, to
// prorate a request that straddles a phase boundary into both), drops each
// record's own phase's ramp-in transient (start_ts preceding that phase's
// measurement_started_ts on the shard that produced it), and runs
// MetricsAggregator for phaseID over the result. Invariant R2: the result
// does not depend on file load order.
func (c *Coordinator) StatsForPhase(phaseID string) (metrics.PhaseStats, error) {
	all, err := c.loadSteadyStateRecords()
	if err != nil {
		return metrics.PhaseStats{}, err
	}

	boundaries := metrics.DeriveBoundaries(all)
	boundary := boundaries[phaseID]
	return metrics.Aggregate(all, phaseID, boundary), nil
}

// loadSteadyStateRecords loads every record any shard has flushed so far,
// across every phase, dropping each record whose own phase's measurement
// had not yet started on the shard that produced it (spec.md §4.D). Unlike
// the prior single-phase load, this intentionally does not filter by
// phase_id: DeriveBoundaries and Aggregate both need every phase's records
// present to correctly prorate requests that straddle into an adjacent
// phase (spec.md §4.C, invariant I4).
func (c *Coordinator) loadSteadyStateRecords() ([]record.RequestRecord, error) {
	c.cutoffMu.Lock()
	cutoffs := make(map[string]map[int]float64, len(c.cutoffs))
	for phaseID, perShard := range c.cutoffs {
		cutoffs[phaseID] = perShard
	}
	c.cutoffMu.Unlock()

	var all []record.RequestRecord
	for _, s := range c.shards {
		for _, path := range s.store.Paths() {
			recs, err := record.LoadFile(path)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
			for _, r := range recs {
				if perShard, ok := cutoffs[r.PhaseID]; ok {
					if cutoff, hasCutoff := perShard[r.ShardID]; hasCutoff && r.StartTs < cutoff {
						continue
					}
				}
				all = append(all, r)
			}
		}
	}
	return all, nil
}

// FilePaths returns every file any shard has flushed so far, across all
// phases.
func (c *Coordinator) FilePaths() []string {
	var all []string
	for _, s := range c.shards {
		all = append(all, s.store.Paths()...)
	}
	return all
}

// Shutdown signals every shard to stop, joins with a bounded timeout
// (spec.md §4.G), and returns the full set of flushed file paths, including
// any straggler produced during shutdown.
func (c *Coordinator) Shutdown() []string {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}

	for _, s := range c.shards {
		close(s.stopCh)
	}

	done := make(chan struct{})
	go func() {
		for _, s := range c.shards {
			s.wg.Wait()
			s.pool.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		log.Warn("shard coordinator shutdown exceeded timeout, forcing termination")
	}

	return c.FilePaths()
}
