package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scalex/api/grpcserver"
	"scalex/domain/ledger"
	"scalex/infra/kafka"
	"scalex/infra/metrics"
	"scalex/infra/outbox"
	"scalex/infra/storage"
	"scalex/infra/storage/postgres"
	"scalex/infra/wal"
	"scalex/internal/config"
	"scalex/jobs/broadcaster"
	"scalex/service"
	"scalex/snapshot"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	log, err := wal.Open(wal.Config{Dir: cfg.WALDir, SegmentSize: cfg.SegmentSize, NoSync: cfg.NoSync})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer log.Close()

	box, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer box.Close()

	ex, err := service.New(service.Config{
		Ledger:  ledger.Config{Owner: cfg.Owner, FeeReceiver: cfg.FeeReceiver, Fees: cfg.Fees},
		WAL:     log,
		Outbox:  box,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if _, err := ex.Recover(cfg.SnapshotDir, cfg.WALDir); err != nil {
		return err
	}
	if err := seedPools(ex, cfg, logger); err != nil {
		return err
	}

	sinks, closeSinks, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	errCh := make(chan error, 3)

	if len(sinks) > 0 {
		b := broadcaster.New(box, sinks, broadcaster.Config{
			Interval:     cfg.BroadcastInterval,
			Retries:      cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			MaxAttempts:  cfg.MaxAttempts,
		}, m, logger)
		go func() { errCh <- b.Run(ctx) }()
	} else {
		logger.Warn("no event sinks configured, events stay in the outbox")
	}

	go ex.RunSnapshotJob(ctx, cfg.SnapshotDir, cfg.SnapshotInterval)

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics: %w", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	grpcSrv := grpcserver.NewGRPCServer(ex, logger)
	go func() { errCh <- grpcSrv.Serve(lis) }()

	logger.Info("scalexd running",
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.Uint64("lastSeq", ex.LastSeq()),
		zap.Int("sinks", len(sinks)))

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			logger.Error("component stopped", zap.Error(err))
		}
	}

	grpcSrv.GracefulStop()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if seq, cerr := ex.Checkpoint(&snapshot.Writer{Dir: cfg.SnapshotDir}); cerr != nil {
		logger.Warn("final snapshot failed", zap.Error(cerr))
	} else {
		logger.Info("final snapshot written", zap.Uint64("seq", seq))
	}
	return err
}

// seedPools creates the pools of the seed file that do not exist yet.
func seedPools(ex *service.Exchange, cfg config.Config, logger *zap.Logger) error {
	if cfg.PoolsFile == "" {
		return nil
	}
	pools, err := config.LoadPools(cfg.PoolsFile)
	if err != nil {
		return err
	}
	for _, p := range pools {
		if _, err := ex.Pool(p.Key.ID()); err == nil {
			continue
		} else if !errors.Is(err, service.ErrPoolNotFound) {
			return err
		}
		id, err := ex.CreatePool(cfg.Owner, p.Key, p.Rules, p.BaseDecimals)
		if err != nil {
			return fmt.Errorf("seed pool %s: %w", p.Key, err)
		}
		logger.Info("seeded pool", zap.String("pool", id.Hex()), zap.String("key", p.Key.String()))
	}
	return nil
}

func openSinks(ctx context.Context, cfg config.Config) ([]broadcaster.Sink, func(), error) {
	var sinks []broadcaster.Sink
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		switch cfg.KafkaClient {
		case "kafka-go":
			w := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
			sinks = append(sinks, w)
			closers = append(closers, func() { _ = w.Close() })
		default:
			p, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("kafka producer: %w", err)
			}
			sinks = append(sinks, p)
			closers = append(closers, func() { _ = p.Close() })
		}
	}
	if cfg.SQLitePath != "" {
		s, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, func() { _ = s.Close() })
	}
	if cfg.PostgresDSN != "" {
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, s.Close)
		if err := s.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, closeAll, nil
}
