package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/r2cap/internal/config"
	"github.com/zzenonn/r2cap/internal/rangeio"
	"github.com/zzenonn/r2cap/internal/uploader"
)

var (
	uploadStorage string
	uploadSizeGB  int
	uploadKey     string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Seed a test object via the external uploader",
	Run:   runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadStorage, "storage", "", "storage backend: r2 or s3 (required)")
	uploadCmd.Flags().IntVar(&uploadSizeGB, "size-gb", 0, "object size in GB (default from config)")
	uploadCmd.Flags().StringVar(&uploadKey, "object-key", "benchmark-object", "object key to create")
	uploadCmd.MarkFlagRequired("storage")
}

func runUpload(cmd *cobra.Command, args []string) {
	kind := config.StorageKind(uploadStorage)
	if err := cfg.Validate(kind); err != nil {
		log.Errorf("invalid configuration: %v", err)
		os.Exit(1)
	}

	sizeGB := uploadSizeGB
	if sizeGB <= 0 {
		sizeGB = cfg.Defaults.ObjectSizeGB
	}
	sizeBytes := int64(sizeGB) * 1024 * 1024 * 1024

	ctx := context.Background()
	rangeio.TagBenchmarkBucket(ctx, cfg, kind)

	location, err := uploader.Upload(ctx, cfg, kind, uploadKey, sizeBytes, false)
	if err != nil {
		log.Errorf("upload failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("uploaded test object to %s\n", location)
}
