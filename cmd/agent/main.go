package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-hr-sync/internal/application/agent"
	"github.com/go-hr-sync/internal/application/arbitration"
	"github.com/go-hr-sync/internal/application/feed"
	"github.com/go-hr-sync/internal/application/push"
	"github.com/go-hr-sync/internal/application/session"
	"github.com/go-hr-sync/internal/config"
	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/infrastructure/localstore"
	"github.com/go-hr-sync/internal/infrastructure/portalapi"
	"github.com/go-hr-sync/internal/infrastructure/realtime"
	"github.com/go-hr-sync/internal/infrastructure/sns"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	// stdout belongs to the console.
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	ac := cfg.Agent

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := localstore.Open(ac.StorePath)
	if err != nil {
		log.Fatalf("open local store: %v", err)
	}
	defer store.Close()

	api := portalapi.New(ac.PortalURL, ac.HTTPTimeout, logger)
	channel := realtime.NewManager(realtime.Options{
		URL:          ac.ChannelURL,
		ReconnectMin: ac.ReconnectMin,
		ReconnectMax: ac.ReconnectMax,
		PingInterval: ac.PingInterval,
		Logger:       logger,
	})
	defer channel.Disconnect()

	notifications := feed.NewStore(api, feed.Options{Window: ac.FeedLimit, Logger: logger})
	defer notifications.Wait()

	engine := arbitration.NewEngine(arbitration.EngineDeps{
		Offers:        api,
		Notifications: notifications,
		Feed:          notifications,
		Watermarks:    store,
		Logger:        logger,
	})

	var platform push.Platform
	if cfg.SNSPlatformAppARN != "" && ac.PushDeviceToken != "" {
		snsClient, err := sns.NewClient(ctx, cfg)
		if err != nil {
			logger.Warn("push disabled", "err", err)
		} else {
			platform = sns.NewEndpointPlatform(snsClient, sns.EndpointPlatformConfig{
				PlatformAppARN: cfg.SNSPlatformAppARN,
				DeviceToken:    ac.PushDeviceToken,
				Platform:       ac.PushPlatform,
				Consent:        domain.PushPermission(ac.PushConsent),
			})
		}
	}
	registrar := push.NewService(push.ServiceDeps{
		Platform: platform,
		Store:    store,
		API:      api,
		Logger:   logger,
	})

	sessions := session.NewManager(session.ManagerDeps{
		API:                api,
		Store:              store,
		Channel:            channel,
		Push:               registrar,
		ValidateTimeout:    ac.ValidateTimeout,
		RevalidateInterval: ac.RevalidateInterval,
		Logger:             logger,
	})
	defer sessions.Close()

	a := agent.New(agent.Deps{
		Sessions:  sessions,
		Channel:   channel,
		Feed:      notifications,
		Arbiter:   engine,
		FeedLimit: ac.FeedLimit,
		Logger:    logger,
	})
	a.Start(ctx)
	defer a.Close()

	con := &console{sessions: sessions, feed: notifications, arbiter: engine, out: os.Stdout}
	sessions.SubscribeScoped(ctx, con.onSession)
	notifications.SubscribeScoped(ctx, con.onFeed)
	engine.SubscribeScoped(ctx, con.onInterstitial)

	restored, err := sessions.Restore(ctx)
	if err != nil {
		logger.Warn("restore session", "err", err)
	}
	if !restored && ac.Login != "" {
		if _, err := sessions.Login(ctx, domain.Credentials{Login: ac.Login, Password: ac.Password}); err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				logger.Error("configured credentials rejected")
			} else {
				logger.Error("login", "err", err)
			}
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		con.run(ctx, os.Stdin)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	logger.Info("agent stopping")
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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
