package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-hr-sync/internal/config"
	"github.com/go-hr-sync/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-hr-sync/internal/infrastructure/jwt"
	"github.com/go-hr-sync/internal/infrastructure/sns"
	"github.com/go-hr-sync/internal/portal/auth"
	"github.com/go-hr-sync/internal/portal/device"
	"github.com/go-hr-sync/internal/portal/notification"
	"github.com/go-hr-sync/internal/portal/offer"
	transporthttp "github.com/go-hr-sync/internal/transport/http"
	appmiddleware "github.com/go-hr-sync/internal/transport/http/middleware"
	"github.com/go-hr-sync/internal/transport/http/ws"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()

	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("dynamo client: %v", err)
	}
	// Tables are only created against LocalStack.
	if cfg.AWSEndpointURL != "" {
		dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables, logger)
	}

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("jwt provider: %v", err)
	}

	snsClient, err := sns.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("sns client: %v", err)
	}

	users := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	devices := dynamo.NewDeviceRepo(dynamoClient, cfg.DynamoTables.Devices)
	hub := ws.NewHub(logger)

	authSvc := auth.NewService(auth.ServiceDeps{
		Users:         users,
		Sessions:      dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		Devices:       devices,
		Verifications: dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.UserVerifications),
		SMS:           sns.NewSMSSender(snsClient),
		Tokens:        jwtProvider,
		OTPExpiry:     cfg.OTPExpiry,
		Logger:        logger,
	})
	notifSvc := notification.NewService(notification.ServiceDeps{
		Repo:    dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications),
		Channel: hub,
		Devices: devices,
		Push:    sns.NewPublisher(snsClient),
		Logger:  logger,
	})
	offerSvc := offer.NewService(offer.ServiceDeps{
		Offers:   dynamo.NewOfferRepo(dynamoClient, cfg.DynamoTables.Offers),
		Users:    users,
		Notifier: notifSvc,
		Logger:   logger,
	})

	loginLimiter := appmiddleware.NewRateLimiter(rate.Limit(5), 10)
	defer loginLimiter.Stop()

	deps := &transporthttp.Deps{
		Auth:          authSvc,
		Notifications: notifSvc,
		Offers:        offerSvc,
		Devices:       device.NewService(devices),
		Tokens:        jwtProvider,
		Hub:           hub,
		LoginLimiter:  loginLimiter,
	}

	router := transporthttp.NewRouter(cfg, deps)

	// No WriteTimeout: it would cut long-lived channel connections.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
