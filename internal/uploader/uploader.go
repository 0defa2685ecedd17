// Package uploader seeds the pre-uploaded test object a benchmark run reads
// range-GETs against (spec.md §4.I's EnsureObject transition, and the
// `upload` CLI subcommand of spec.md §6).
//
// Grounded on the teacher's S3ObjectRepository.Upload
// (internal/repository/objectstore/s3_object_repository.go): manager.NewUploader
// plus a progressbar-wrapped reader, carried over unchanged in shape since
// it already does exactly what EnsureObject needs.
package uploader

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/schollz/progressbar/v3"

	"github.com/zzenonn/r2cap/internal/config"
)

// randomObjectReader streams sizeBytes of cryptographically random data
// without holding the whole object in memory, so seeding a multi-GB test
// object doesn't require a multi-GB buffer.
type randomObjectReader struct {
	remaining int64
}

func (r *randomObjectReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := rand.Read(p)
	r.remaining -= int64(n)
	return n, err
}

// Upload seeds objectKey in the configured bucket with sizeBytes of random
// data, reporting progress unless quiet is set.
func Upload(ctx context.Context, cfg *config.Config, kind config.StorageKind, objectKey string, sizeBytes int64, quiet bool) (string, error) {
	creds := cfg.S3
	endpoint := ""
	if kind == config.StorageR2 {
		creds = cfg.R2
		endpoint = cfg.R2.Endpoint
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return "", fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	up := manager.NewUploader(client)

	var body io.Reader = &randomObjectReader{remaining: sizeBytes}
	if !quiet {
		bar := progressbar.DefaultBytes(sizeBytes, "uploading")
		pbReader := progressbar.NewReader(body, bar)
		body = &pbReader
	}

	_, err = up.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.BucketName),
		Key:    aws.String(objectKey),
		Body:   body,
	})
	if err != nil {
		return "", err
	}

	return cfg.BucketName + "/" + objectKey, nil
}
