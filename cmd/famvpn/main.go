package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkovalev/famvpn/internal/config"
	"github.com/dkovalev/famvpn/internal/handlers"
	"github.com/dkovalev/famvpn/internal/panel"
	"github.com/dkovalev/famvpn/internal/repository/postgres"
	"github.com/dkovalev/famvpn/internal/service"
	"github.com/dkovalev/famvpn/internal/telegram"
	"github.com/dkovalev/famvpn/pkg/logger"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel)
	l.Info("Starting famvpn coordinator...")

	// Database
	db, err := config.NewDatabase(cfg.DatabaseURL, l)
	if err != nil {
		l.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(cfg.MigrationsPath); err != nil {
		l.Fatalf("Failed to run migrations: %v", err)
	}

	store := postgres.NewStore(db.DB)
	panelClient := panel.NewHTTPClient(cfg.PanelBaseURL, cfg.PanelToken, l)

	// Telegram bot
	bot, err := telegram.NewBot(cfg.TelegramToken, l)
	if err != nil {
		l.Fatalf("Failed to create Telegram bot: %v", err)
	}

	// Service layer; the bot doubles as the messenger for invite prompts.
	svc := service.New(store, panelClient, bot, service.NoopRealtime{}, l)

	// Register command handlers
	bot.RegisterCommand("start", handlers.NewStartHandler(l))
	bot.RegisterCommand("help", handlers.NewHelpHandler(l))

	// Family handlers
	bot.RegisterCommand("family", handlers.NewFamilyHandler(svc, l))
	bot.RegisterCommand("invite", handlers.NewInviteHandler(svc, l))
	bot.RegisterCommand("revoke", handlers.NewRevokeHandler(svc, l))
	bot.RegisterCommand("remove", handlers.NewRemoveHandler(svc, l))
	bot.RegisterCommand("leave", handlers.NewLeaveHandler(svc, l))
	bot.RegisterCallback("family_invite", handlers.NewInviteCallbackHandler(svc, l))

	// Personal VPN handlers
	bot.RegisterCommand("vpn", handlers.NewVPNHandler(svc, l))
	bot.RegisterCallback("pvpn", handlers.NewVPNCallbackHandler(svc, l))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	// Background sweep for stale pending invites
	go svc.StartInviteExpirySweeper(ctx)

	// Prometheus metrics endpoint
	metricsServer := &http.Server{
		Addr:    ":" + cfg.PrometheusPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		l.Infof("Metrics server listening on :%s", cfg.PrometheusPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("Metrics server error: %v", err)
		}
	}()

	// Start Telegram bot polling
	go func() {
		if err := bot.Start(ctx); err != nil {
			l.Errorf("Bot error: %v", err)
		}
	}()

	l.Info("famvpn started successfully")

	<-ctx.Done()

	l.Info("Shutting down metrics server...")
	metricsServer.Close()

	l.Info("famvpn stopped")
}
