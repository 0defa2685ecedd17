// Package config loads every recognized benchmark option from environment
// variables into a single record, following the teacher's env-driven,
// load-once LoadConfig pattern.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// StorageKind is the sum type over supported S3-compatible backends.
type StorageKind string

const (
	StorageS3 StorageKind = "s3"
	StorageR2 StorageKind = "r2"
)

// Defaults mirrors spec.md §6's defaults table exactly.
type Defaults struct {
	ObjectSizeGB           int
	RangeSizeMB            int
	WarmUpMinutes          int
	InitialConcurrency     int
	RampStepMinutes        int
	RampStepConcurrency    int
	MaxConcurrency         int
	PlateauThreshold       float64
	MaxErrorRate           float64
	MaxConsecutiveErrors   int
	MaxRetries             int
	SystemBandwidthGbps    float64
	MinRequestsForErrCheck int
}

// DefaultValues returns spec.md §6's literal defaults.
func DefaultValues() Defaults {
	return Defaults{
		ObjectSizeGB:           9,
		RangeSizeMB:            100,
		WarmUpMinutes:          1,
		InitialConcurrency:     8,
		RampStepMinutes:        5,
		RampStepConcurrency:    32,
		MaxConcurrency:         400,
		PlateauThreshold:       0.2,
		MaxErrorRate:           0.2,
		MaxConsecutiveErrors:   20,
		MaxRetries:             3,
		SystemBandwidthGbps:    50,
		MinRequestsForErrCheck: 10,
	}
}

// Credentials holds the access keys for one storage backend.
type Credentials struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Config is the single, load-once record of recognized options (spec.md §9's
// "Configuration" re-architecture note — no implicit process-wide mutation).
type Config struct {
	BucketName string
	S3         Credentials
	R2         Credentials

	Defaults Defaults

	LogLevel      string
	DynamoDBTable string
	ResultsDir    string
}

// Load reads configuration from environment variables, falling back to
// hardcoded defaults the same way the teacher's LoadConfig does. When
// configPath is non-empty the file is parsed and a read error is returned,
// but none of its values are applied to the returned Config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		BucketName: getEnv("BUCKET_NAME", ""),
		S3: Credentials{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Region:          getEnv("AWS_REGION", "us-east-1"),
		},
		R2: Credentials{
			Endpoint:        getEnv("R2_ENDPOINT", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			Region:          "auto",
		},
		Defaults:      DefaultValues(),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DynamoDBTable: getEnv("DYNAMODB_TABLE", ""),
		ResultsDir:    getEnv("RESULTS_DIR", "results"),
	}

	return cfg, nil
}

// Validate checks that the credentials required for storageKind are present.
// Absence is fatal for the relevant storage type, per spec.md §6.
func (c *Config) Validate(kind StorageKind) error {
	switch kind {
	case StorageS3:
		if c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "" {
			return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set for s3")
		}
	case StorageR2:
		if c.R2.Endpoint == "" || c.R2.AccessKeyID == "" || c.R2.SecretAccessKey == "" {
			return fmt.Errorf("R2_ENDPOINT, R2_ACCESS_KEY_ID and R2_SECRET_ACCESS_KEY must be set for r2")
		}
	default:
		return fmt.Errorf("unsupported storage kind: %s", kind)
	}
	if c.BucketName == "" {
		return fmt.Errorf("BUCKET_NAME must be set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}
