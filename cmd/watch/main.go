// Command watch runs a streaming leader heuristic against live Solana
// trades, or against a ClickHouse replay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-leader-lab/internal/alerts"
	"solana-leader-lab/internal/config"
	"solana-leader-lab/internal/detector"
	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/ingestion"
	"solana-leader-lab/internal/marketcap"
	"solana-leader-lab/internal/normalize"
	"solana-leader-lab/internal/observability"
	"solana-leader-lab/internal/solana"
	"solana-leader-lab/internal/storage"
	chstore "solana-leader-lab/internal/storage/clickhouse"
	"solana-leader-lab/internal/storage/memory"
	"solana-leader-lab/internal/storage/migrations"
	pgstore "solana-leader-lab/internal/storage/postgres"
	"solana-leader-lab/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	strategyName := flag.String("strategy", "", "Streaming strategy: co_occurrence or fast_sell (overrides config)")
	source := flag.String("source", "", "Event source: ws or replay (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")
	migrate := flag.Bool("migrate", false, "Apply Postgres migrations before starting")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *strategyName != "" {
		cfg.Detection.Strategy = *strategyName
	}
	if *source != "" {
		cfg.Stream.Source = *source
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithField("cmd", "watch")

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			log.WithField("addr", cfg.MetricsAddr).Info("starting metrics server")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics server error")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Warn("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger, *migrate)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("watch failed")
	}
	log.Info("shutdown complete")
}

// closers runs cleanup in reverse order.
type closers []func()

func (c *closers) add(f func()) { *c = append(*c, f) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger, migrate bool) error {
	var cleanup closers
	defer cleanup.run()

	var pool *pgstore.Pool
	if cfg.Postgres.DSN != "" {
		p, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, pgstore.WithMaxConns(cfg.Postgres.MaxConns))
		if err != nil {
			return err
		}
		cleanup.add(p.Close)
		pool = p
		if migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
				return fmt.Errorf("postgres migrations: %w", err)
			}
		}
	}

	sink, err := buildSink(cfg, pool, logger, &cleanup)
	if err != nil {
		return err
	}

	heuristic, err := buildStrategy(ctx, cfg, logger, &cleanup)
	if err != nil {
		return err
	}

	src, err := buildSource(ctx, cfg, pool, logger, &cleanup)
	if err != nil {
		return err
	}

	engine := strategy.NewEngine(heuristic, sink,
		strategy.WithEngineLogger(logger),
		strategy.WithSweepInterval(config.Seconds(cfg.Detection.SweepIntervalSec)),
	)

	events := make(chan domain.TradeEvent, 4096)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		return src.Run(gctx, events)
	})
	g.Go(func() error {
		return engine.Run(gctx, events)
	})
	return g.Wait()
}

func buildSink(cfg *config.Config, pool *pgstore.Pool, logger *logrus.Logger, cleanup *closers) (alerts.Sink, error) {
	var sinks []alerts.Sink
	for _, name := range cfg.Alerts.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, alerts.NewLogSink(logger))
		case "postgres":
			if pool == nil {
				return nil, fmt.Errorf("postgres sink requires POSTGRES_DSN")
			}
			sinks = append(sinks, alerts.NewStoreSink(pgstore.NewAlertStore(pool)))
		case "kafka":
			k, err := alerts.NewKafkaSink(alerts.KafkaConfig{
				Brokers: cfg.Alerts.KafkaBrokers,
				Topic:   cfg.Alerts.KafkaTopic,
			})
			if err != nil {
				return nil, err
			}
			cleanup.add(func() { k.Close() })
			sinks = append(sinks, k)
		}
	}
	return alerts.NewMultiSink(logger, sinks...), nil
}

func buildStrategy(ctx context.Context, cfg *config.Config, logger *logrus.Logger, cleanup *closers) (strategy.Streaming, error) {
	d := cfg.Detection
	switch d.Strategy {
	case config.StrategyFastSell:
		caps, err := buildMarketCaps(ctx, cfg, logger, cleanup)
		if err != nil {
			return nil, err
		}
		s, err := strategy.NewFastSell(strategy.FastSellConfig{
			Detector: detector.FastSellConfig{
				Window:    config.Seconds(d.FastSellWindowSec),
				Retention: config.Seconds(d.FastSellRetentionSec),
			},
			Ceiling:  decimal.NewFromFloat(cfg.MarketCap.CeilingUSD),
			Cooldown: config.Seconds(d.CooldownSec),
		}, caps)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := strategy.NewCoOccurrence(strategy.CoOccurrenceConfig{
			Group: detector.GroupConfig{
				Window:       config.Seconds(d.WindowSec),
				MinGroupSize: d.MinGroupSize,
				MinSightings: d.MinGroupSightings,
			},
			Horizon:        config.Seconds(d.HistoryHorizonSec),
			Cooldown:       config.Seconds(d.CooldownSec),
			GroupRetention: config.Seconds(d.GroupRetentionSec),
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func buildMarketCaps(ctx context.Context, cfg *config.Config, logger *logrus.Logger, cleanup *closers) (*marketcap.Cache, error) {
	m := cfg.MarketCap
	opts := []marketcap.CacheOption{marketcap.WithLogger(logger)}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		cleanup.add(func() { client.Close() })
		opts = append(opts, marketcap.WithSharedStore(marketcap.NewRedisStore(client, m.RedisPrefix)))
	}

	cache := marketcap.NewCache(
		marketcap.NewDexScreener(m.BaseURL, config.Seconds(m.TimeoutSec)),
		marketcap.CacheConfig{
			TTL:         config.Seconds(m.TTLSec),
			NegativeTTL: config.Seconds(m.NegativeTTLSec),
			Timeout:     config.Seconds(m.TimeoutSec),
		},
		opts...,
	)

	purgeCtx, stop := context.WithCancel(ctx)
	cleanup.add(stop)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-purgeCtx.Done():
				return
			case <-ticker.C:
				cache.Purge()
			}
		}
	}()
	return cache, nil
}

func buildSource(ctx context.Context, cfg *config.Config, pool *pgstore.Pool, logger *logrus.Logger, cleanup *closers) (ingestion.Source, error) {
	s := cfg.Stream
	log := logger.WithField("cmd", "watch")

	if s.Source == config.SourceReplay {
		conn, err := chstore.NewConn(ctx, cfg.ClickHouse.ConnString(),
			chstore.WithDialTimeout(10*time.Second),
			chstore.WithMaxExecutionTime(config.Seconds(cfg.ClickHouse.QueryTimeoutSec)))
		if err != nil {
			return nil, err
		}
		cleanup.add(func() { conn.Close() })
		now := time.Now().UTC()
		filter := storage.TradeFilter{
			Since: now.Add(-time.Duration(s.ReplayLookbackHours * float64(time.Hour))),
			Until: now,
		}
		if cfg.Detection.Strategy == config.StrategyCoOccurrence {
			filter.Sides = []domain.Side{domain.SideBuy}
		}
		return ingestion.NewReplaySource(chstore.NewTradeQuery(conn, cfg.ClickHouse.Database), filter, s.ReplaySpeed, logger), nil
	}

	rpc := solana.NewHTTPClient(s.RPCURL,
		solana.WithCommitment(s.Commitment),
		solana.WithLogger(logger),
	)
	if slot, err := rpc.GetSlot(ctx); err != nil {
		log.WithError(err).Warn("rpc health check failed")
	} else {
		log.WithField("slot", slot).Info("rpc reachable")
	}

	wsCfg := solana.DefaultWSConfig()
	ws := solana.NewWSClient(s.WSURL, &wsCfg, logger)

	policy := normalize.QuoteLegBuys
	if cfg.Detection.Strategy == config.StrategyFastSell {
		policy = normalize.AllDeltas
	}
	decoder := normalize.NewDecoder(policy,
		normalize.WithDropOffCurveOwners(true),
		normalize.WithAddressValidation(true),
	)

	var checkpoints storage.CheckpointStore = memory.NewCheckpointStore()
	if pool != nil {
		checkpoints = pgstore.NewCheckpointStore(pool)
	}

	wsSource := ingestion.NewWSTradeSource(ws, rpc, decoder, ingestion.WSSourceConfig{
		Programs:   s.Programs,
		Commitment: s.Commitment,
		Workers:    s.Workers,
		Stream:     s.Checkpoint,
	},
		ingestion.WithCheckpoints(checkpoints),
		ingestion.WithSourceLogger(logger),
	)

	supCfg := ingestion.DefaultSupervisorConfig()
	if s.RetryInitialSec > 0 {
		supCfg.InitialInterval = config.Seconds(s.RetryInitialSec)
	}
	if s.RetryMaxSec > 0 {
		supCfg.MaxInterval = config.Seconds(s.RetryMaxSec)
	}
	supCfg.MaxFailures = s.MaxFailures
	return ingestion.NewSupervisor(wsSource, supCfg, logger), nil
}
