package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zzenonn/r2cap/internal/phase"
	"github.com/zzenonn/r2cap/internal/rangeio"
	"github.com/zzenonn/r2cap/internal/record"
)

// fakeGetter is a synthetic RangeGetter: it returns a configurable number of
// bytes, fails a configurable number of leading calls, and reports a fixed
// 1ms latency without sleeping.
type fakeGetter struct {
	mu        sync.Mutex
	calls     int
	failNext  int
	bytesEach int64
}

func (f *fakeGetter) GetRange(ctx context.Context, objectKey string, start, length int64) (rangeio.RangeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return rangeio.RangeResult{}, context.DeadlineExceeded
	}
	return rangeio.RangeResult{
		Data:       make([]byte, f.bytesEach),
		LatencyMs:  1,
		HTTPStatus: 200,
	}, nil
}

func (f *fakeGetter) Exists(ctx context.Context, objectKey string) (bool, error) {
	return true, nil
}

func (f *fakeGetter) BucketName() string { return "test-bucket" }

func newTestPool(t *testing.T, getter *fakeGetter) (*Pool, *phase.Manager, *record.Store) {
	t.Helper()
	pm := phase.NewManager()
	pm.BeginPhase("warmup", 2)
	store := record.NewStore(0, t.TempDir())
	pool := New(Config{
		ShardID:              0,
		PipelineDepth:        1,
		MaxRetries:           1,
		MaxConsecutiveErrors: 3,
		RangeSizeBytes:       1024,
		ObjectSizeBytes:      1024 * 1024,
	}, pm, store, getter)
	return pool, pm, store
}

func TestPoolProducesSuccessfulRecords(t *testing.T) {
	getter := &fakeGetter{bytesEach: 1024}
	pool, _, store := newTestPool(t, getter)

	pool.Start(2, "test-object")
	time.Sleep(200 * time.Millisecond)
	pool.Stop()

	path, err := store.Flush("warmup")
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if path == "" {
		t.Fatal("expected at least one record appended")
	}
	records, err := record.LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("expected non-zero records")
	}
	for _, r := range records {
		if r.Status != record.StatusOK {
			t.Fatalf("expected ok status, got %q", r.Status)
		}
	}
}

func TestPoolShrinkReducesActiveWorkers(t *testing.T) {
	getter := &fakeGetter{bytesEach: 1024}
	pool, _, _ := newTestPool(t, getter)

	pool.Start(4, "test-object")
	time.Sleep(50 * time.Millisecond)
	pool.Start(1, "test-object")
	time.Sleep(50 * time.Millisecond)

	if pool.activeWorkers != 1 {
		t.Fatalf("expected activeWorkers to shrink to 1, got %d", pool.activeWorkers)
	}
	pool.Stop()
}

func TestWorkerExitsAfterConsecutiveErrorLimit(t *testing.T) {
	getter := &fakeGetter{bytesEach: 1024, failNext: 1000}
	pool, _, _ := newTestPool(t, getter)

	pool.Start(1, "test-object")
	time.Sleep(300 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.wg.Wait()
		close(done)
	}()

	// Each failed request makes one retry after a 1s delay, so the three
	// consecutive failures of the limit take about 3s.
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never exited after consecutive error limit")
	}
	pool.Stop()
}

func TestComputeRangeStaysWithinObjectBounds(t *testing.T) {
	pool := &Pool{cfg: Config{RangeSizeBytes: 100, ObjectSizeBytes: 1000}}
	for workerID := 0; workerID < 20; workerID++ {
		start, length := pool.computeRange(workerID)
		if start < 0 || start+length > pool.cfg.ObjectSizeBytes {
			t.Fatalf("worker %d: range [%d, %d) exceeds object size %d", workerID, start, start+length, pool.cfg.ObjectSizeBytes)
		}
	}
}
