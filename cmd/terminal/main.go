package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"market-terminal/config"
	"market-terminal/internal/api"
	"market-terminal/internal/composite"
	"market-terminal/internal/gateway"
	"market-terminal/internal/indicator"
	"market-terminal/internal/logger"
	"market-terminal/internal/marketdata"
	"market-terminal/internal/markethours"
	"market-terminal/internal/metrics"
	"market-terminal/internal/model"
	"market-terminal/internal/notification"
	"market-terminal/internal/portfolio"
	filestore "market-terminal/internal/store/file"
	redisstore "market-terminal/internal/store/redis"
	sqlitestore "market-terminal/internal/store/sqlite"
	"market-terminal/internal/strategy"
	"market-terminal/internal/terminal"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	once := flag.Bool("once", false, "run a single evaluation cycle, print the report and exit")
	totpSetup := flag.Bool("totp-setup", false, "generate a TOTP secret for the operator API and exit")
	flag.Parse()

	if *totpSetup {
		if err := printTOTPSecret(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Init(cfg.Service, cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, *once, log); err != nil {
		log.Fatal().Err(err).Msg("terminal stopped")
	}
}

func run(cfg *config.Config, once bool, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- State store ----
	store, journal, lister, err := openStore(cfg.Store, logger.Component(log, "store"))
	if err != nil {
		return err
	}
	defer store.Close()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(cfg.Store.Backend, cfg.Metrics.StaleAfter)
	health.StartLivenessChecker(ctx, func(ctx context.Context) error {
		_, err := store.Load(ctx)
		return err
	}, cfg.Metrics.ProbeEvery)

	// ---- Market data ----
	breaker := marketdata.NewCircuitBreaker(cfg.MarketData.Breaker.MaxFailures, cfg.MarketData.Breaker.ResetTimeout)
	breaker.OnStateChange = func(from, to marketdata.State) {
		log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("market data circuit breaker")
		prom.FeedBreakerState.Set(float64(to))
		if to == marketdata.StateOpen {
			prom.FeedBreakerTrips.Inc()
		}
		health.SetFeedBreaker(to.String())
	}
	provider := marketdata.NewGuarded(
		marketdata.NewYahooClient(cfg.MarketData.Yahoo, logger.Component(log, "yahoo")),
		breaker,
	)

	// ---- Scoring pipeline ----
	session, err := markethours.NewSession(cfg.Session)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	calc, err := composite.NewCalculator(cfg.Composite)
	if err != nil {
		return err
	}
	instruments, err := cfg.BuildInstruments()
	if err != nil {
		return err
	}

	// ---- Notifications ----
	notifier, closeNotifier, err := buildNotifier(cfg, logger.Component(log, "notify"))
	if err != nil {
		return err
	}
	defer closeNotifier()

	// ---- UI hub ----
	hub := gateway.NewHub(cfg.Gateway, logger.Component(log, "gateway"))
	hub.OnClients = func(n int) { prom.UIClients.Set(float64(n)) }

	svc, err := terminal.New(cfg.Cycle, instruments, terminal.Deps{
		Provider:  provider,
		Composite: calc,
		Engine:    indicator.NewEngine(cfg.Indicators),
		Scorer:    strategy.NewScorer(cfg.Scoring, session, logger.Component(log, "scorer")),
		Sizer:     portfolio.NewSizer(cfg.Sizing),
		Manager:   portfolio.NewManager(cfg.Limits, logger.Component(log, "lifecycle")),
		Notifier:  notifier,
		Store:     store,
		Journal:   journal,
		Publisher: hub,
		Metrics:   prom,
		Health:    health,
		Session:   session,
	}, logger.Component(log, "cycle"))
	if err != nil {
		return err
	}

	if once {
		report, err := svc.RunCycle(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	// ---- Servers ----
	metricsSrv := metrics.NewServer(cfg.Metrics.Addr, health, logger.Component(log, "metrics"))
	metricsSrv.Start()

	apiSrv := api.NewServer(cfg.API, api.NewHandler(svc, lister, logger.Component(log, "api")), hub, health, logger.Component(log, "api"))
	apiSrv.Start()

	go hub.StartStatusBroadcast(ctx, cfg.Metrics.StatusEvery, func() any {
		now := time.Now()
		return map[string]any{
			"session_open": session.IsOpen(now),
			"session":      session.StatusString(now),
			"feed_breaker": breaker.CurrentState().String(),
			"clients":      hub.ClientCount(),
		}
	})

	log.Info().
		Int("instruments", len(instruments)).
		Str("store", cfg.Store.Backend).
		Dur("interval", cfg.Cycle.Interval).
		Msg("terminal started")

	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	// ---- Wait for shutdown signal ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received, cleaning up...")

	cancel()
	<-done

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer stop()
	if err := apiSrv.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("api shutdown")
	}
	metricsSrv.Stop(shutdownCtx)
	log.Info().Msg("terminal stopped cleanly")
	return nil
}

// openStore returns the configured state store plus its settlement journal
// and lister when the backend keeps one.
func openStore(cfg config.StoreConfig, log zerolog.Logger) (model.StateStore, model.SettlementJournal, model.SettlementLister, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		s, err := redisstore.New(cfg.Redis, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis store: %w", err)
		}
		return s, nil, nil, nil
	case config.BackendSQLite:
		s, err := sqlitestore.New(cfg.SQLite, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		return s, s, s, nil
	default:
		s, err := filestore.New(cfg.FilePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("file store: %w", err)
		}
		return s, nil, nil, nil
	}
}

// buildNotifier fans alerts out to the log and every configured channel.
func buildNotifier(cfg *config.Config, log zerolog.Logger) (notification.Notifier, func(), error) {
	timeout := cfg.Cycle.NotifyTimeout
	channels := notification.Multi{notification.NewLogNotifier(log)}
	closers := []func(){}

	if t := cfg.Notify.Telegram; t.Token != "" {
		channels = append(channels, notification.NewTelegramNotifier(t.Token, t.ChatID, t.BaseURL, timeout, log))
	}
	if cfg.Notify.Webhook.URL != "" {
		channels = append(channels, notification.NewWebhookNotifier(cfg.Notify.Webhook.URL, timeout, log))
	}
	if cfg.Notify.Kafka.Enabled {
		k, err := notification.NewKafkaNotifier(cfg.Notify.Kafka.KafkaConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka notifier: %w", err)
		}
		channels = append(channels, k)
		closers = append(closers, func() {
			if err := k.Close(); err != nil {
				log.Warn().Err(err).Msg("kafka writer close")
			}
		})
	}
	log.Info().Int("channels", len(channels)).Msg("notification channels ready")

	return channels, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func printTOTPSecret() error {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "market-terminal",
		AccountName: "operator",
	})
	if err != nil {
		return fmt.Errorf("generate totp secret: %w", err)
	}
	fmt.Printf("TOTP_SECRET=%s\n", key.Secret())
	fmt.Printf("otpauth URL: %s\n", key.URL())
	return nil
}
