package driver

import (
	"context"
	"testing"
	"time"

	"github.com/zzenonn/r2cap/internal/config"
	"github.com/zzenonn/r2cap/internal/rangeio"
)

type steadyGetter struct {
	exists bool
}

func (g *steadyGetter) GetRange(ctx context.Context, objectKey string, start, length int64) (rangeio.RangeResult, error) {
	return rangeio.RangeResult{Data: make([]byte, length), LatencyMs: 1, HTTPStatus: 200}, nil
}

func (g *steadyGetter) Exists(ctx context.Context, objectKey string) (bool, error) {
	return g.exists, nil
}

func (g *steadyGetter) BucketName() string { return "test-bucket" }

func baseOptions(dir string) Options {
	return Options{
		StorageKind:              config.StorageS3,
		ObjectKey:                "test-object",
		ObjectSizeBytes:          1024 * 1024,
		RangeSizeBytes:           1024,
		Shards:                   1,
		InitialWorkers:           2,
		RampStepWorkers:          2,
		RampStepDuration:         200 * time.Millisecond,
		WarmUpDuration:           100 * time.Millisecond,
		MaxWorkers:               8,
		PipelineDepth:            1,
		MaxRetries:               1,
		MaxConsecutiveErrors:     20,
		MaxErrorRate:             0.2,
		MinRequestsForErrorCheck: 10,
		PlateauThreshold:         0.2,
		SystemBandwidthGbps:      0,
		ResultsDir:               dir,
	}
}

func TestRunTerminatesOnMaxConcurrency(t *testing.T) {
	dir := t.TempDir()
	opts := baseOptions(dir)
	opts.MaxWorkers = 3 // forces termination on the very first ramp step

	d := New(opts, &steadyGetter{exists: true}, &config.Config{}, config.StorageS3)
	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.TerminationNote != "max concurrency reached" {
		t.Fatalf("expected max concurrency termination, got %q", summary.TerminationNote)
	}
	if len(summary.Steps) == 0 {
		t.Fatal("expected at least one ramp step recorded")
	}
}

func TestRunFailsFastOnMissingObjectWithoutUploadableConfig(t *testing.T) {
	dir := t.TempDir()
	opts := baseOptions(dir)

	d := New(opts, &steadyGetter{exists: false}, &config.Config{BucketName: "b"}, config.StorageS3)
	_, err := d.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error when the object is missing and upload fails for lack of credentials")
	}
}
