// Package worker implements WorkerPool (spec.md §4.F): a fixed pool of
// logical workers, each driving a small pipeline of outstanding range-GETs,
// cooperating through a ResizableGate. Pipeline depth D > 1 is modeled as D
// goroutines sharing one logical worker id, per spec.md §9's re-architecture
// note — the direct Go analogue of "D cooperative tasks per worker".
package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	r2err "github.com/zzenonn/r2cap/internal/errors"
	"github.com/zzenonn/r2cap/internal/gate"
	"github.com/zzenonn/r2cap/internal/phase"
	"github.com/zzenonn/r2cap/internal/rangeio"
	"github.com/zzenonn/r2cap/internal/record"
	"github.com/zzenonn/r2cap/internal/telemetry"
)

// Config fixes the parameters of a Pool for its lifetime.
type Config struct {
	ShardID              int
	PipelineDepth        int
	MaxRetries           int
	MaxConsecutiveErrors int
	RangeSizeBytes       int64
	ObjectSizeBytes      int64
}

// Pool is a per-shard WorkerPool. One Pool owns one ResizableGate and one
// RecordStore; workers within it append concurrently.
type Pool struct {
	cfg      Config
	gate     *gate.ResizableGate
	phaseMgr *phase.Manager
	store    *record.Store
	getter   rangeio.RangeGetter

	mu             sync.Mutex
	running        bool
	activeWorkers  int
	spawnedWorkers int
	objectKey      string
	stopCh         chan struct{}
	wg             sync.WaitGroup
}

// New builds a Pool. The gate's ceiling tracks targetWorkers × pipelineDepth
// — the total outstanding concurrency this shard exposes to the storage
// system (spec.md §4.G).
func New(cfg Config, phaseMgr *phase.Manager, store *record.Store, getter rangeio.RangeGetter) *Pool {
	if cfg.PipelineDepth <= 0 {
		cfg.PipelineDepth = 3
	}
	return &Pool{
		cfg:      cfg,
		gate:     gate.New(0),
		phaseMgr: phaseMgr,
		store:    store,
		getter:   getter,
	}
}

// Start brings the pool up to targetWorkers logical workers against
// objectKey. If stopped, it spawns workers and sets the gate to
// targetWorkers × pipelineDepth. If already running and target grows, it
// resizes the gate upward and spawns the difference. If target shrinks, it
// resizes downward; the excess workers self-exit the next time they notice
// their worker id is no longer active (spec.md §4.F).
func (p *Pool) Start(targetWorkers int, objectKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.objectKey = objectKey
	newMax := targetWorkers * p.cfg.PipelineDepth

	if !p.running {
		p.running = true
		p.stopCh = make(chan struct{})
		p.gate.Resize(newMax)
		p.activeWorkers = targetWorkers
		p.spawnLocked(targetWorkers)
		return
	}

	if targetWorkers > p.activeWorkers {
		p.gate.Resize(newMax)
		p.spawnLocked(targetWorkers - p.activeWorkers)
		p.activeWorkers = targetWorkers
	} else if targetWorkers < p.activeWorkers {
		p.gate.Resize(newMax)
		p.activeWorkers = targetWorkers
	}
}

// spawnLocked spawns n new logical workers, each as pipelineDepth
// goroutines sharing a worker id. Must be called with mu held.
func (p *Pool) spawnLocked(n int) {
	for i := 0; i < n; i++ {
		workerID := p.spawnedWorkers
		p.spawnedWorkers++
		for d := 0; d < p.cfg.PipelineDepth; d++ {
			p.wg.Add(1)
			go p.workerLoop(workerID, p.stopCh)
		}
	}
}

// Stop signals every worker to exit, waits up to 10s for them to drain, and
// releases the pool's references.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warnf("shard %d: workers did not drain within timeout", p.cfg.ShardID)
	}
	p.gate.Close()
}

// InFlight reports the shard's current in-flight request count.
func (p *Pool) InFlight() int {
	return p.gate.InFlight()
}

func (p *Pool) isActive(workerID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return workerID < p.activeWorkers
}

func (p *Pool) currentObjectKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.objectKey
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// workerLoop is the per-worker cooperative loop of spec.md §4.F, steps 1-9.
func (p *Pool) workerLoop(workerID int, stopCh chan struct{}) {
	defer p.wg.Done()
	consecutiveErrors := 0

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if !p.isActive(workerID) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := p.gate.Acquire(ctx)
		cancel()
		if err != nil {
			// Timeout or cancellation: loop again while not stopped.
			continue
		}

		snap := p.phaseMgr.Snapshot()
		if !snap.MeasurementStarted {
			p.phaseMgr.ObserveInFlight(p.gate.InFlight())
		}

		objectKey := p.currentObjectKey()
		start, length := p.computeRange(workerID)

		startTs := nowSeconds()
		var result rangeio.RangeResult
		var callErr error
		for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
			result, callErr = p.getter.GetRange(context.Background(), objectKey, start, length)
			if callErr == nil {
				break
			}
			if attempt < p.cfg.MaxRetries {
				time.Sleep(time.Second)
			}
		}
		endTs := nowSeconds()

		rec := record.RequestRecord{
			ShardID:     p.cfg.ShardID,
			WorkerID:    workerID,
			ObjectKey:   objectKey,
			RangeStart:  start,
			RangeLen:    length,
			Concurrency: snap.TargetConcurrency,
			PhaseID:     snap.PhaseID,
			StartTs:     startTs,
			EndTs:       endTs,
		}

		if callErr != nil {
			rec.BytesDownloaded = 0
			rec.HTTPStatus = 0
			rec.Status = "err" + r2err.ClassOf(callErr).String()
			consecutiveErrors++
		} else {
			rec.BytesDownloaded = int64(len(result.Data))
			rec.HTTPStatus = result.HTTPStatus
			rec.LatencyMs = result.LatencyMs
			rec.Status = record.StatusOK
			consecutiveErrors = 0
		}

		p.store.Append(rec)
		telemetry.ObserveRequest(rec.Status, rec.LatencyMs)
		p.gate.Release()
		telemetry.ObserveGate(strconv.Itoa(p.cfg.ShardID), p.gate.InFlight(), p.gate.Max())

		if consecutiveErrors >= p.cfg.MaxConsecutiveErrors {
			log.Warnf("shard %d worker %d: exiting after %d consecutive errors",
				p.cfg.ShardID, workerID, consecutiveErrors)
			return
		}
	}
}

// computeRange picks the byte range a worker requests. This pool uses the
// deterministic-spread variant spec.md §4.F names as an acceptable
// alternative to random sampling: (worker_id × range_size) mod
// (object_size − range_size + 1), giving even coverage of the object across
// workers without coordination.
func (p *Pool) computeRange(workerID int) (start, length int64) {
	length = p.cfg.RangeSizeBytes
	span := p.cfg.ObjectSizeBytes - p.cfg.RangeSizeBytes + 1
	if span <= 0 {
		return 0, length
	}
	start = (int64(workerID) * p.cfg.RangeSizeBytes) % span
	return start, length
}
