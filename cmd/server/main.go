package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"blogbeacon/internal/blogclient"
	"blogbeacon/internal/commentclient"
	"blogbeacon/internal/config"
	"blogbeacon/internal/metrics"
	"blogbeacon/internal/newsclient"
	"blogbeacon/internal/session"
	"blogbeacon/internal/userclient"
	"blogbeacon/internal/util"
	"blogbeacon/internal/web"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	store, closeStore, err := newSessionStore(cfg, sessionTTL)
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}
	defer closeStore()

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	httpServer, err := web.New(web.Config{
		Users:                   userclient.NewClient(cfg.APIBaseURL).WithMetrics(m),
		Blogs:                   blogclient.NewClient(cfg.APIBaseURL).WithMetrics(m),
		Comments:                commentclient.NewClient(cfg.APIBaseURL).WithMetrics(m),
		News:                    newsclient.NewClient(cfg.NewsAPIURL, cfg.NewsAPIKey).WithMetrics(m),
		Sessions:                store,
		Cookie:                  session.CookieOptions{Name: cfg.CookieName, Secure: cfg.CookieSecure},
		SessionTTL:              sessionTTL,
		NewsQuery:               cfg.NewsQuery,
		RedisAddr:               cfg.RedisAddr,
		RedisPassword:           cfg.RedisPassword,
		LoginRateLimitPerMinute: cfg.LoginRateLimitPerMinute,
		MaxUploadBytes:          cfg.MaxUploadBytes,
		AllowedImageExtensions:  cfg.AllowedImageExtensions,
		Metrics:                 m,
		Registry:                registry,
		TrustedProxies:          trustedProxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

// newSessionStore builds the configured session backend. The returned close
// function releases any backing handle.
func newSessionStore(cfg config.FileConfig, ttl time.Duration) (session.Store, func(), error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		return session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, ttl), func() {}, nil
	case config.SessionBackendSQLite:
		store, err := session.NewSQLiteStore(cfg.SessionDBPath, ttl)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.SessionBackendJWT:
		return session.NewJWTStore(cfg.SessionJWTSecret, ttl), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
