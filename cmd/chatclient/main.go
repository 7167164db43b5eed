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
	"time"

	"event-chat/internal/api"
	"event-chat/internal/auth"
	"event-chat/internal/cache"
	"event-chat/internal/chat"
	"event-chat/internal/config"
	"event-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	setupLogger(cfg.LogLevel)

	if len(os.Args) > 1 {
		cfg.EventID = os.Args[1]
	}
	if cfg.EventID == "" {
		log.Fatal("EVENT_ID is required (env or first argument)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	viewer, err := resolveViewer(ctx, cfg)
	if err != nil {
		log.Fatal("Invalid token:", err)
	}

	var responseCache cache.Cache = cache.NewMemory(cache.DefaultMemorySize, cfg.CacheTTL)
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "")
		if err != nil {
			slog.Warn("Redis unavailable, using in-memory cache", "error", err)
		} else {
			defer rc.Close()
			responseCache = rc
		}
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.Token,
		api.WithCache(responseCache, cfg.CacheTTL),
	)

	out := newPrinter(os.Stdout, viewer.ID)
	session := chat.NewSession(chat.Options{
		EventID: cfg.EventID,
		Viewer: chat.Viewer{
			ID:          viewer.ID,
			DisplayName: viewer.DisplayName,
			AvatarURL:   viewer.AvatarURL,
		},
		Token:          cfg.Token,
		Endpoint:       cfg.WSURL,
		PingInterval:   cfg.PingInterval,
		Backoff:        chat.Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		TypingWindow:   cfg.TypingWindow,
		TypingInterval: cfg.TypingInterval,
		ReadDebounce:   cfg.ReadDebounce,
		PollInterval:   cfg.PollInterval,
		EventDuration:  cfg.EventDuration,
		RequestTimeout: cfg.RequestTimeout,
		OnChange:       out.Render,
	}, ws.NewDialer(), client, client)

	go session.Run(ctx)
	defer session.Close()

	if err := session.Refresh(ctx); err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			log.Fatal("Not signed in, please re-authenticate")
		}
		slog.Warn("Failed to load event", "event", cfg.EventID, "error", err)
	}
	if err := session.SetPanelVisible(true); err != nil {
		slog.Warn("Failed to mark chat visible", "error", err)
	}

	slog.Info("Chat client started", "event", cfg.EventID, "viewer", viewer.ID)
	runInput(ctx, os.Stdin, session, out)
}

func resolveViewer(ctx context.Context, cfg *config.Config) (auth.Viewer, error) {
	viewer, err := auth.ParseViewer(cfg.Token)
	if err != nil {
		return auth.Viewer{}, err
	}
	if cfg.AuthIssuerURL != "" {
		keys := auth.NewKeySet(cfg.AuthIssuerURL, nil)
		if err := keys.Refresh(ctx); err != nil {
			return auth.Viewer{}, err
		}
		claims, err := keys.Verify(cfg.Token)
		if err != nil {
			return auth.Viewer{}, err
		}
		if viewer, err = claims.Viewer(); err != nil {
			return auth.Viewer{}, err
		}
	}
	if viewer.Expired(time.Now()) {
		return auth.Viewer{}, auth.ErrTokenExpired
	}
	return viewer, nil
}

func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
