// Command batch runs the historical leader heuristics over ClickHouse trade
// views, lists stored alerts, or checks replay against streaming.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"solana-leader-lab/internal/alerts"
	"solana-leader-lab/internal/config"
	"solana-leader-lab/internal/detector"
	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/orchestrator"
	"solana-leader-lab/internal/reporting"
	chstore "solana-leader-lab/internal/storage/clickhouse"
	"solana-leader-lab/internal/storage/migrations"
	pgstore "solana-leader-lab/internal/storage/postgres"
	"solana-leader-lab/internal/strategy"
	"solana-leader-lab/internal/verification"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	mode := flag.String("mode", "run", "Mode: run (execute strategies), alerts (list stored alerts) or verify (compare streaming and replay)")
	strategyName := flag.String("strategy", "", "Run only this strategy (name or alias), overriding the config list")
	migrateCH := flag.Bool("migrate-clickhouse", false, "Create the ClickHouse database and event views before running")
	migratePG := flag.Bool("migrate-postgres", false, "Apply Postgres migrations before running")
	from := flag.String("from", "", "Alerts mode: start time (RFC3339), defaults to 24h ago")
	to := flag.String("to", "", "Alerts mode: end time (RFC3339), defaults to now")
	format := flag.String("format", "text", "Output format: text, json, markdown, csv")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the report
	logger.SetOutput(os.Stderr)
	log := logger.WithField("cmd", "batch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
	}()

	var pool *pgstore.Pool
	if cfg.Postgres.DSN != "" {
		pool, err = pgstore.NewPool(ctx, cfg.Postgres.DSN, pgstore.WithMaxConns(cfg.Postgres.MaxConns))
		if err != nil {
			log.WithError(err).Fatal("connect to postgres")
		}
		defer pool.Close()
		if *migratePG {
			if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
				log.WithError(err).Fatal("postgres migrations")
			}
		}
	}

	switch *mode {
	case "run":
		err = runStrategies(ctx, cfg, pool, logger, *strategyName, *migrateCH, *format)
	case "alerts":
		err = listAlerts(ctx, pool, *from, *to, *format)
	case "verify":
		err = verify(ctx, cfg, logger, *format)
	default:
		err = fmt.Errorf("invalid mode %q (must be run, alerts or verify)", *mode)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("batch failed")
	}
}

func buildStrategies(cfg *config.Config, only string) ([]strategy.Batch, error) {
	registry := strategy.NewRegistry()

	specs := cfg.Batch.Strategies
	if only != "" {
		specs = []config.StrategySpec{{Name: only}}
		// keep configured params for the selected strategy
		if want, ok := registry.Resolve(only); ok {
			for _, s := range cfg.Batch.Strategies {
				if got, _ := registry.Resolve(s.Name); got == want {
					specs[0].Params = s.Params
				}
			}
		}
	}
	if len(specs) == 0 {
		// Nothing configured: run everything with default parameters.
		for _, name := range registry.Names() {
			specs = append(specs, config.StrategySpec{Name: name})
		}
	}

	out := make([]strategy.Batch, 0, len(specs))
	for _, spec := range specs {
		s, err := registry.New(spec.Name, strategy.Params(spec.Params))
		if err != nil {
			return nil, fmt.Errorf("strategy %q: %w", spec.Name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func runStrategies(ctx context.Context, cfg *config.Config, pool *pgstore.Pool, logger *logrus.Logger, only string, migrate bool, format string) error {
	strategies, err := buildStrategies(cfg, only)
	if err != nil {
		return err
	}

	conn, err := connectClickHouse(ctx, cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer conn.Close()

	var sinks []alerts.Sink
	if pool != nil && cfg.HasSink("postgres") {
		sinks = append(sinks, alerts.NewStoreSink(pgstore.NewAlertStore(pool)))
	}
	if cfg.HasSink("kafka") {
		k, err := alerts.NewKafkaSink(alerts.KafkaConfig{
			Brokers: cfg.Alerts.KafkaBrokers,
			Topic:   cfg.Alerts.KafkaTopic,
		})
		if err != nil {
			return err
		}
		defer k.Close()
		sinks = append(sinks, k)
	}

	orch := orchestrator.New(orchestrator.Options{
		TradeQuery: chstore.NewTradeQuery(conn, cfg.ClickHouse.Database),
		Sink:       alerts.NewMultiSink(logger, sinks...),
		Strategies: strategies,
		Logger:     logger,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	return write(format, result, reporting.NewGenerator(nil).FromRun(result), func() { printResult(result) })
}

func connectClickHouse(ctx context.Context, cfg *config.Config, logger *logrus.Logger, migrate bool) (*chstore.Conn, error) {
	var (
		conn *chstore.Conn
		err  error
	)
	if migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.ConnString(), logger)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.ClickHouse.ConnString(),
			chstore.WithDialTimeout(10*time.Second),
			chstore.WithMaxExecutionTime(config.Seconds(cfg.ClickHouse.QueryTimeoutSec)))
	}
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	return conn, nil
}

// write renders one result in the requested format. text prints the
// console form.
func write(format string, v any, r *reporting.Report, text func()) error {
	switch format {
	case "json":
		output, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
	case "markdown":
		fmt.Print(reporting.RenderMarkdown(r))
	case "csv":
		out, err := reporting.RenderCSV(r)
		if err != nil {
			return err
		}
		fmt.Print(out)
	case "text":
		text()
	default:
		return fmt.Errorf("invalid format %q (must be text, json, markdown or csv)", format)
	}
	return nil
}

func printResult(r *orchestrator.RunResult) {
	fmt.Println()
	fmt.Println("=== Batch Result ===")
	fmt.Printf("Trades loaded:      %d\n", r.TradesLoaded)
	fmt.Printf("Alerts emitted:     %d\n", r.AlertsEmitted)
	for _, s := range r.Strategies {
		fmt.Println()
		fmt.Printf("%s: %d rows, %d alerts, %d delivered (%s)\n",
			s.Strategy, s.Rows, len(s.Alerts), s.Delivered, s.Duration.Round(time.Millisecond))
		for _, a := range s.Alerts {
			printAlert(a)
		}
	}
	if len(r.Errors) > 0 {
		fmt.Println()
		fmt.Println("Errors:")
		for _, e := range r.Errors {
			fmt.Printf("  %s\n", e)
		}
	}
}

func printAlert(a *domain.Alert) {
	fmt.Printf("  potential leader %s  %d/%d (%.0f%%)", a.Wallet, a.Votes, a.TotalVotes, a.Confidence*100)
	if len(a.Evidence.Members) > 0 {
		fmt.Printf("  group=%s", strings.Join(a.Evidence.Members, ","))
	}
	if len(a.Evidence.Mints) > 0 {
		fmt.Printf("  mints=%d", len(a.Evidence.Mints))
	}
	if a.Evidence.HoldSeconds > 0 {
		fmt.Printf("  hold=%.1fs", a.Evidence.HoldSeconds)
	}
	fmt.Println()
}

func parseTime(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, s)
}

func listAlerts(ctx context.Context, pool *pgstore.Pool, from, to, format string) error {
	if pool == nil {
		return errors.New("alerts mode requires POSTGRES_DSN")
	}
	now := time.Now().UTC()
	start, err := parseTime(from, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("parse -from: %w", err)
	}
	end, err := parseTime(to, now)
	if err != nil {
		return fmt.Errorf("parse -to: %w", err)
	}

	report, err := reporting.NewGenerator(pgstore.NewAlertStore(pool)).FromStore(ctx, start, end)
	if err != nil {
		return err
	}

	return write(format, report.Alerts, report, func() {
		fmt.Printf("%d alerts between %s and %s\n", len(report.Alerts), start.Format(time.RFC3339), end.Format(time.RFC3339))
		for _, a := range report.Alerts {
			fmt.Printf("%s  [%s]", a.Timestamp.Format(time.RFC3339), a.Strategy)
			printAlert(a)
		}
	})
}

// groupReplayConfig mirrors the streaming detection settings so the replay
// is comparable with what watch would have raised.
func groupReplayConfig(cfg *config.Config) strategy.GroupReplayConfig {
	d := cfg.Detection
	out := strategy.DefaultGroupReplayConfig()
	out.CoOccurrence = strategy.CoOccurrenceConfig{
		Group: detector.GroupConfig{
			Window:       config.Seconds(d.WindowSec),
			MinGroupSize: d.MinGroupSize,
			MinSightings: d.MinGroupSightings,
		},
		Horizon:        config.Seconds(d.HistoryHorizonSec),
		Cooldown:       config.Seconds(d.CooldownSec),
		GroupRetention: config.Seconds(d.GroupRetentionSec),
	}
	if h := cfg.Stream.ReplayLookbackHours; h > 0 {
		out.Lookback = time.Duration(h * float64(time.Hour))
	}
	return out
}

func verify(ctx context.Context, cfg *config.Config, logger *logrus.Logger, format string) error {
	conn, err := connectClickHouse(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer conn.Close()

	v := verification.NewVerifier(chstore.NewTradeQuery(conn, cfg.ClickHouse.Database), groupReplayConfig(cfg), logger)
	report, err := v.Verify(ctx)
	if err != nil {
		return err
	}

	if format == "json" {
		output, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
	} else {
		fmt.Printf("Trades:    %d\n", report.Trades)
		fmt.Printf("Streamed:  %d alerts\n", report.Streamed)
		fmt.Printf("Replayed:  %d alerts\n", report.Replayed)
		for _, d := range report.Divergences {
			fmt.Printf("  alert %d %s: streamed=%v replayed=%v\n", d.Index, d.Field, d.Expected, d.Actual)
		}
	}
	if !report.Match {
		return fmt.Errorf("%d divergences between streaming and replay", len(report.Divergences))
	}
	return nil
}
