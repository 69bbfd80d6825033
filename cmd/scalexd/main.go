package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scalex/infra/logging"
	"scalex/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "scalexd",
		Short:        "Spot order book exchange with a custodial balance ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Recover state and serve the exchange over gRPC",
		RunE:  runServe,
	}

	serveCmd.Flags().String("data-dir", "./data", "base directory for the log, outbox and snapshots")
	serveCmd.Flags().String("grpc-addr", ":9090", "gRPC listen address")
	serveCmd.Flags().String("metrics-addr", ":9100", "Prometheus listen address, empty disables")
	serveCmd.Flags().String("owner", "", "ledger owner address")
	serveCmd.Flags().String("fee-receiver", "", "protocol fee receiver, defaults to the owner")
	serveCmd.Flags().String("pools", "", "YAML pool seed file")
	serveCmd.Flags().StringSlice("kafka-brokers", nil, "Kafka brokers (comma-separated)")
	serveCmd.Flags().String("kafka-topic", "scalex.events", "Kafka topic for events")
	serveCmd.Flags().String("kafka-client", "sarama", "Kafka client (sarama, kafka-go)")
	serveCmd.Flags().String("sqlite", "", "archive events into this sqlite file")
	serveCmd.Flags().String("pg-dsn", "", "archive events into Postgres")
	serveCmd.Flags().Duration("snapshot-interval", time.Minute, "snapshot interval")
	serveCmd.Flags().Bool("no-sync", false, "skip fsync on log appends")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().String("log-file", "", "also log to this rotated file")

	root.AddCommand(serveCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild state from snapshot and log, then print a summary",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("data-dir", "./data", "base directory for the log and snapshots")
	replayCmd.Flags().String("owner", "", "ledger owner address")
	replayCmd.Flags().Bool("no-snapshot", false, "replay the whole log, ignoring snapshots")
	replayCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)
	root.AddCommand(feesCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return cfg, nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}
