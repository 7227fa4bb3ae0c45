package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"phq-companion/internal/analytics"
	"phq-companion/internal/config"
	"phq-companion/internal/interview"
	"phq-companion/internal/llm"
	"phq-companion/internal/logging"
	"phq-companion/internal/relay"
	"phq-companion/internal/scheduler"
	"phq-companion/internal/server"
	"phq-companion/internal/storage"
	"phq-companion/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	model := cfg.ModelName()

	client, err := llm.NewFactory(cfg).CreateClient(cfg.LLMProvider, model)
	switch {
	case errors.Is(err, llm.ErrMissingCredential):
		logger.Warn("generation API credential missing, /api/llm will answer 500",
			zap.String("provider", string(cfg.LLMProvider)))
		client = nil
	case err != nil:
		return err
	}

	var rec storage.Recorder
	if cfg.AuditLogPath != "" {
		fr, err := storage.NewFileRecorder(cfg.AuditLogPath)
		if err != nil {
			logger.Warn("audit log disabled", zap.String("path", cfg.AuditLogPath), zap.Error(err))
		} else {
			defer fr.Close()
			rec = fr
		}
	}

	svc := relay.New(relay.Options{
		Client:      client,
		Provider:    string(cfg.LLMProvider),
		Model:       model,
		Guard:       cfg.RiskGuard,
		Timeout:     cfg.RelayTimeout,
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: cfg.Temperature,
		Recorder:    rec,
		Metrics:     relay.NewMetrics(prometheus.DefaultRegisterer),
		Logger:      logger.Named("relay"),
	})

	sessions := interview.NewManager(interview.Options{
		Generator: svc,
		Rephrase:  cfg.RephraseQuestions,
		Logger:    logger.Named("interview"),
	}, cfg.SessionIdleTTL)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sessions.Run(ctx, time.Minute)
	}()

	if cfg.TelegramBotToken != "" {
		bot, err := telegram.New(cfg.TelegramBotToken, sessions, logger.Named("telegram"))
		if err != nil {
			logger.Error("failed to start telegram bot", zap.Error(err))
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				bot.Start(ctx)
			}()
		}
	}

	if rec != nil {
		sched := scheduler.New(scheduler.DailyAt21UTC, logger.Named("scheduler"))
		sched.SetReportFunction(func(ctx context.Context) error {
			stats, err := analytics.ReportPreviousDay(rec, time.Now())
			if err != nil {
				return err
			}
			logger.Info("daily relay summary",
				zap.String("date", stats.Date),
				zap.Int("calls", stats.TotalCalls),
				zap.Float64("fallback_rate", stats.FallbackRate()),
				zap.String("summary", stats.Summary()),
			)
			return nil
		})
		if err := sched.Start(); err != nil {
			logger.Warn("scheduler not started", zap.Error(err))
		} else {
			defer sched.Stop()
		}
	}

	srv := server.New(server.Options{
		Port:           cfg.Port,
		StaticDir:      cfg.StaticDir,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Relay:          svc,
		Sessions:       sessions,
		Logger:         logger.Named("http"),
	})
	err = srv.Run(ctx)
	wg.Wait()
	return err
}
