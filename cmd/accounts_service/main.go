package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accounts_service/internal/auth"
	"accounts_service/internal/config"
	"accounts_service/internal/handler"
	"accounts_service/internal/metrics"
	"accounts_service/internal/notify"
	"accounts_service/internal/service"
	"accounts_service/internal/session"
	"accounts_service/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "")

	flag.Parse()
	if configPath == "" {
		log.Fatal("failed get config path from flags")
	}

	cfg := config.MustLoadConfig(configPath)

	lgr := setupLogger(cfg.Env)
	lgr.Info("started accounts service", slog.String("env", cfg.Env))

	if err := storage.RunMigrations(cfg.DbURL); err != nil {
		lgr.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	st, err := storage.NewPostgresStorage(cfg.DbURL)
	if err != nil {
		lgr.Error("failed to connect to postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions, err := session.NewRedisStore(ctx, cfg.RedisURL, cfg.Auth.RefreshTTL)
	if err != nil {
		lgr.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer sessions.Close()

	var sender notify.Sender
	if cfg.Mail.SMTPEnabled {
		sender = notify.NewSMTPSender(cfg.Mail.SMTPAddress, cfg.Mail.From, cfg.Mail.AppName, cfg.Mail.FrontendBaseURL)
	} else {
		sender = notify.NewLogSender(lgr, cfg.Mail.FrontendBaseURL)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	srvc := service.NewService(
		lgr,
		st,
		sessions,
		auth.NewHasher(cfg.Auth.BcryptCost),
		auth.NewIssuer(cfg.Auth.Secret),
		sender,
		collector,
		service.TTLConfig{
			Confirmation: cfg.Auth.ConfirmationTTL,
			Access:       cfg.Auth.AccessTTL,
			Refresh:      cfg.Auth.RefreshTTL,
		},
	)

	hndlr := handler.NewHandler(srvc, lgr, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, metrics.Handler(reg))

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      hndlr.InitRoutes(),
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("http server stopped", slog.Any("error", err))
			stop()
		}
	}()

	lgr.Info("listening", slog.String("address", cfg.HTTPServer.Address))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("failed to shut down server", slog.Any("error", err))
	}

	lgr.Info("stopped accounts service")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
