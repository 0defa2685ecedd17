package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/r2cap/internal/config"
	"github.com/zzenonn/r2cap/internal/driver"
	"github.com/zzenonn/r2cap/internal/rangeio"
	"github.com/zzenonn/r2cap/internal/runstore"
	"github.com/zzenonn/r2cap/internal/telemetry"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

var (
	checkStorage         string
	checkObjectKey       string
	checkBandwidthGbps   float64
	checkProcesses       int
	checkWorkers         int
	checkRampStepWorkers int
	checkRampStepMinutes int
	checkPipelineDepth   int
	checkMaxWorkers      int
	checkMetricsAddr     string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run capacity discovery against a test object",
	Run:   runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkStorage, "storage", "", "storage backend: r2 or s3 (required)")
	checkCmd.Flags().StringVar(&checkObjectKey, "object-key", "benchmark-object", "object key to read")
	checkCmd.Flags().Float64Var(&checkBandwidthGbps, "bandwidth-gbps", 0, "system bandwidth cap in Gbps (default from config)")
	checkCmd.Flags().IntVar(&checkProcesses, "processes", 0, "number of shards (default: number of CPU cores)")
	checkCmd.Flags().IntVar(&checkWorkers, "workers", 0, "initial worker count (default from config)")
	checkCmd.Flags().IntVar(&checkRampStepWorkers, "ramp-step-workers", 0, "worker increment per ramp step (default from config)")
	checkCmd.Flags().IntVar(&checkRampStepMinutes, "ramp-step-minutes", 0, "ramp step duration in minutes (default from config)")
	checkCmd.Flags().IntVar(&checkPipelineDepth, "pipeline-depth", 3, "outstanding requests per logical worker")
	checkCmd.Flags().IntVar(&checkMaxWorkers, "max-workers", 0, "maximum worker count (default from config)")
	checkCmd.Flags().StringVar(&checkMetricsAddr, "metrics-addr", "", "address to expose /metrics on, e.g. :9090 (optional)")
	checkCmd.MarkFlagRequired("storage")
}

func runCheck(cmd *cobra.Command, args []string) {
	kind := config.StorageKind(checkStorage)
	if err := cfg.Validate(kind); err != nil {
		log.Errorf("invalid configuration: %v", err)
		os.Exit(1)
	}

	d := cfg.Defaults
	shards := checkProcesses
	if shards <= 0 {
		shards = runtime.NumCPU()
	}
	workers := firstPositive(checkWorkers, d.InitialConcurrency)
	rampStepWorkers := firstPositive(checkRampStepWorkers, d.RampStepConcurrency)
	rampStepMinutes := firstPositive(checkRampStepMinutes, d.RampStepMinutes)
	maxWorkers := firstPositive(checkMaxWorkers, d.MaxConcurrency)
	bandwidth := checkBandwidthGbps
	if bandwidth <= 0 {
		bandwidth = d.SystemBandwidthGbps
	}

	telemetry.Serve(checkMetricsAddr)

	ctx := context.Background()
	getter, err := rangeio.NewFromConfig(ctx, cfg, kind)
	if err != nil {
		log.Errorf("failed to build storage client: %v", err)
		os.Exit(1)
	}

	opts := driver.Options{
		StorageKind:              kind,
		ObjectKey:                checkObjectKey,
		ObjectSizeBytes:          int64(d.ObjectSizeGB) * 1024 * 1024 * 1024,
		RangeSizeBytes:           int64(d.RangeSizeMB) * 1024 * 1024,
		Shards:                   shards,
		InitialWorkers:           workers,
		RampStepWorkers:          rampStepWorkers,
		RampStepDuration:         time.Duration(rampStepMinutes) * time.Minute,
		WarmUpDuration:           time.Duration(d.WarmUpMinutes) * time.Minute,
		MaxWorkers:               maxWorkers,
		PipelineDepth:            checkPipelineDepth,
		MaxRetries:               d.MaxRetries,
		MaxConsecutiveErrors:     d.MaxConsecutiveErrors,
		MaxErrorRate:             d.MaxErrorRate,
		MinRequestsForErrorCheck: d.MinRequestsForErrCheck,
		PlateauThreshold:         d.PlateauThreshold,
		SystemBandwidthGbps:      bandwidth,
		ResultsDir:               cfg.ResultsDir,
	}

	run := driver.New(opts, getter, cfg, kind)
	summary, runErr := run.Run(ctx)

	fmt.Printf("best concurrency: %d\n", summary.BestConcurrency)
	fmt.Printf("best throughput: %.2f Gbps\n", summary.BestThroughput)
	fmt.Printf("termination: %s\n", summary.TerminationNote)
	fmt.Println("per-step results:")
	for _, step := range summary.Steps {
		fmt.Printf("  %-10s concurrency=%-5d throughput=%.2fGbps error_rate=%.3f\n",
			step.PhaseID, step.Concurrency, step.Stats.ThroughputGbps, step.Stats.ErrorRate)
	}
	fmt.Println("files:")
	for _, path := range summary.FilePaths {
		fmt.Printf("  %s\n", path)
	}

	if cfg.DynamoDBTable != "" {
		persistRunSummary(ctx, kind, summary)
	}

	if runErr != nil {
		log.Errorf("run terminated abnormally: %v", runErr)
		os.Exit(1)
	}
}

// persistRunSummary always talks to AWS DynamoDB using the S3 credentials,
// regardless of which storage kind the run benchmarked: R2's credentials are
// Cloudflare-scoped and cannot authenticate against an AWS service, so the
// run-summary table is only reachable when AWS credentials are configured.
func persistRunSummary(ctx context.Context, kind config.StorageKind, summary driver.Summary) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		),
	)
	if err != nil {
		log.Warnf("skipping run summary persistence: %v", err)
		return
	}

	client := dynamodb.NewFromConfig(awsCfg)
	if err := runstore.CreateRunSummaryTable(ctx, client, cfg.DynamoDBTable); err != nil {
		log.Warnf("skipping run summary persistence, could not ensure table: %v", err)
		return
	}

	store := runstore.New(client, cfg.DynamoDBTable)
	now := time.Now().Unix()
	err = store.Put(ctx, runstore.RunSummary{
		BucketName:      cfg.BucketName,
		RunID:           fmt.Sprintf("%s-%d", checkObjectKey, now),
		StorageKind:     string(kind),
		ObjectKey:       checkObjectKey,
		BestConcurrency: summary.BestConcurrency,
		BestThroughput:  summary.BestThroughput,
		TerminationNote: summary.TerminationNote,
		StepCount:       len(summary.Steps),
		FinishedAtUnix:  now,
	})
	if err != nil {
		log.Warnf("failed to persist run summary: %v", err)
	}
}

func firstPositive(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
