// Command benchcli drives capacity discovery against S3-compatible object
// storage. Subcommands follow the teacher's cobra.OnInitialize + persistent
// flags pattern (cmd/main.go in the teacher), generalized from bucket/user
// management to benchmark orchestration.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/r2cap/internal/config"
	"github.com/zzenonn/r2cap/internal/logging"
)

var (
	cfg        *config.Config
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "benchcli",
	Short: "Capacity-discovery benchmark for S3-compatible object storage",
	Long:  "Drives range-GET traffic at controlled concurrency against a test object and ramps concurrency until throughput plateaus or a hard limit is reached.",
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (trace, debug, info, warn, error)")
	addCommands()
}

func initConfig() {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logging.InitLogger(cfg)
}

func addCommands() {
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(visualizeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
