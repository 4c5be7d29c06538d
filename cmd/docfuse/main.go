package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/athapong/docfuse/pkg/config"
	"github.com/athapong/docfuse/pkg/metrics"
	"github.com/athapong/docfuse/services"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	envPath     string
	dbPath      string
	logLevel    string
	metricsFile string

	corpus *services.Corpus
)

var rootCmd = &cobra.Command{
	Use:           "docfuse",
	Short:         "Multimodal document model and candidate extraction",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, envPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger, err := config.NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		logger.SetOutput(cmd.ErrOrStderr())

		corpus, err = services.OpenCorpus(cfg, logger)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if metricsFile != "" {
			if err := metrics.WriteTextfile(metricsFile); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
		}
		return closeCorpus()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "Path to environment file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the corpus database (overrides configuration)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the command finishes")
}

func closeCorpus() error {
	if corpus == nil {
		return nil
	}
	err := corpus.Close()
	corpus = nil
	return err
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		closeCorpus()
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
