package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astrachat/internal/config"
	"github.com/astrachat/internal/handler"
	"github.com/astrachat/internal/logger"
	"github.com/astrachat/internal/middleware"
	"github.com/astrachat/internal/pipeline"
	"github.com/astrachat/internal/push"
	"github.com/astrachat/internal/ratelimit"
	"github.com/astrachat/internal/startup"
	"github.com/astrachat/internal/store"
	"github.com/astrachat/internal/store/memory"
	"github.com/astrachat/internal/store/postgres"
	"github.com/astrachat/internal/ws"
	"github.com/astrachat/migrations"
)

func main() {
	logger.SetPrefix("chat")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting chat service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	membership := postgres.NewMembershipStore(pool)
	chatLog := postgres.NewChatLogStore(pool)
	notifLog := postgres.NewNotificationStore(pool)
	blobs := postgres.NewBlobStore(pool)

	// Replay cursors live in Redis when configured; without it they are kept
	// in memory and a restart falls back to lookback replay.
	var cursors store.DeviceCursors
	if cfg.Redis.URL != "" {
		redisClient := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
		defer redisClient.Close()
		cursors = redisClient
		logger.Info("replay cursors: redis")
	} else {
		cursors = memory.New()
		logger.Info("replay cursors: in-memory (set REDIS_URL to survive restarts)")
	}

	vapidKeys, err := push.EnsureVAPIDKeys("")
	if err != nil {
		logger.Errorf("vapid keys: %v (push disabled)", err)
	}
	var sender *push.Sender
	var notifier ws.PushNotifier
	if vapidKeys != nil {
		sender = push.NewSender(vapidKeys, os.Getenv("PUSH_VAPID_SUBJECT"))
		notifier = sender
	}

	pipe := pipeline.New(pipeline.Limits{
		TextMaxRunes:          cfg.Limits.TextMaxRunes,
		TextMaxRunesEncrypted: cfg.Limits.TextMaxRunesEncrypted,
		ImageMaxEncoded:       cfg.Limits.ImageMaxEncoded,
		ImageMaxBytes:         cfg.Limits.ImageMaxBytes,
		AudioMaxSeconds:       float64(cfg.Limits.AudioMaxSeconds),
	}, membership, blobs, nil)

	limiter := ratelimit.New()

	hub := ws.NewHub(ws.Config{
		DeviceCap:         cfg.Limits.DeviceCap,
		ReplayLookback:    cfg.ReplayLookback(),
		SendRateMax:       cfg.Limits.SendRateMax,
		SendRateWindowSec: cfg.Limits.SendRateWindowSec,
	}, membership, cursors, chatLog, notifLog, pipe, limiter, notifier)

	wsH := handler.NewWSHandler(hub, authFromGateway, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Never compress the WebSocket path: a wrapped ResponseWriter loses
	// http.Hijacker and the upgrade 500s.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/config/push", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(map[string]string{"vapid_public_key": cfg.PushVAPIDPublicKey})
	})

	if sender != nil {
		r.Post("/api/push/subscribe", pushSubscribe(sender))
		r.Delete("/api/push/subscribe", pushUnsubscribe(sender))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, "ws.connect",
			cfg.Limits.ConnectRateMax, cfg.Limits.ConnectRateWindowSec))
		r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
			if cfg.MaxWSConnections > 0 && hub.ConnectionCount() >= cfg.MaxWSConnections {
				http.Error(w, "server full", http.StatusServiceUnavailable)
				return
			}
			wsH.ServeWS(w, req)
		})
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hub.Shutdown()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// authFromGateway trusts the X-User-Id header stamped by the fronting auth
// gateway, which strips the header from external traffic. Outside production
// a ?user= query param works for local testing.
func authFromGateway(r *http.Request) (string, bool) {
	if id := r.Header.Get("X-User-Id"); id != "" {
		return id, true
	}
	if os.Getenv("APP_ENV") != "production" {
		if id := r.URL.Query().Get("user"); id != "" {
			return id, true
		}
	}
	return "", false
}

func pushSubscribe(sender *push.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := authFromGateway(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var sub push.Subscription
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.Endpoint == "" {
			http.Error(w, "bad subscription", http.StatusBadRequest)
			return
		}
		sender.Subscribe(userID, sub)
		w.WriteHeader(http.StatusNoContent)
	}
}

func pushUnsubscribe(sender *push.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := authFromGateway(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var body struct {
			Endpoint string `json:"endpoint"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Endpoint == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		sender.Unsubscribe(userID, body.Endpoint)
		w.WriteHeader(http.StatusNoContent)
	}
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("list migrations: %v", err)
		os.Exit(1)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "astrachat"
		password = "astrachat_secret"
		database = "astrachat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
