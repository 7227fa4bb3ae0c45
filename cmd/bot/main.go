// Command bot runs the PHQ-9 check-in as a Telegram bot only, without the
// HTTP surface.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"phq-companion/internal/config"
	"phq-companion/internal/interview"
	"phq-companion/internal/llm"
	"phq-companion/internal/logging"
	"phq-companion/internal/relay"
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
	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model := cfg.ModelName()
	client, err := llm.NewFactory(cfg).CreateClient(cfg.LLMProvider, model)
	switch {
	case errors.Is(err, llm.ErrMissingCredential):
		// summaries fall back to the fixed sentence
		logger.Warn("generation API credential missing", zap.String("provider", string(cfg.LLMProvider)))
		client = nil
	case err != nil:
		logger.Fatal("failed to create llm client", zap.Error(err))
	}

	var rec storage.Recorder
	if cfg.AuditLogPath != "" {
		fr, err := storage.NewFileRecorder(cfg.AuditLogPath)
		if err != nil {
			logger.Warn("audit log disabled", zap.Error(err))
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
		Logger:      logger.Named("relay"),
	})

	sessions := interview.NewManager(interview.Options{
		Generator: svc,
		Rephrase:  cfg.RephraseQuestions,
		Logger:    logger.Named("interview"),
	}, cfg.SessionIdleTTL)
	go sessions.Run(ctx, time.Minute)

	bot, err := telegram.New(cfg.TelegramBotToken, sessions, logger.Named("telegram"))
	if err != nil {
		logger.Fatal("failed to create bot", zap.Error(err))
	}
	logger.Info("bot is up", zap.String("model", model))
	bot.Start(ctx)
}
