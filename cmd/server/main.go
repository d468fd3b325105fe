package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ripplehq/ripple/backend/internal/auth"
	"github.com/ripplehq/ripple/backend/internal/bus"
	"github.com/ripplehq/ripple/backend/internal/chat"
	"github.com/ripplehq/ripple/backend/internal/config"
	"github.com/ripplehq/ripple/backend/internal/db"
	"github.com/ripplehq/ripple/backend/internal/metrics"
	mw "github.com/ripplehq/ripple/backend/internal/middleware"
	"github.com/ripplehq/ripple/backend/internal/notifications"
	"github.com/ripplehq/ripple/backend/internal/posts"
	"github.com/ripplehq/ripple/backend/internal/registry"
	"github.com/ripplehq/ripple/backend/internal/stories"
)

func main() {
	cfg := config.Load()

	// Cancelled on shutdown so background loops exit with the server.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("WARNING: database connection failed: %v (continuing without DB)", err)
	} else {
		defer database.Close()
		if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Printf("WARNING: migrations failed: %v", err)
		}
	}

	var pool *pgxpool.Pool
	if database != nil {
		pool = database.Pool
	}

	// Event bus
	broker, err := bus.NewBroker(bus.FactoryConfig{
		Brokers:         cfg.KafkaBrokers,
		ConnectAttempts: cfg.KafkaConnectAttempts,
		ConnectDelay:    cfg.KafkaConnectDelay,
	})
	if err != nil {
		log.Fatalf("Broker setup failed: %v", err)
	}
	defer broker.Close() //nolint:errcheck // best-effort cleanup on shutdown

	// Live subscriber registry
	reg := registry.New()

	// JWT & Auth
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	authService := auth.NewAuthService(pool, jwtService)
	authHandlers := auth.NewHandlers(authService)

	// Stores
	notifStore := notifications.NewStore(pool)
	storyStore := stories.NewStore(pool)
	postStore := posts.NewStore(pool)
	chatStore := chat.NewStore(pool)

	// Consumers and background loops need a working database behind them.
	var expirer *stories.Expirer
	if pool != nil {
		notifConsumer := notifications.NewConsumer(broker, notifStore, reg, cfg.NotificationGroup)
		if err := notifConsumer.Start(); err != nil {
			log.Printf("WARNING: notification consumer failed to start: %v", err)
		}

		storyConsumer := stories.NewConsumer(broker, storyStore, cfg.StoryGroup)
		if err := storyConsumer.Start(); err != nil {
			log.Printf("WARNING: story consumer failed to start: %v", err)
		}

		expirer = stories.NewExpirer(broker, storyStore, cfg.StoryExpirySweep)
		expirer.Start()
		defer expirer.Stop()

		go purgeLoop(ctx, notifStore)
	}

	// Chat send path
	chatService := chat.NewService(chatStore, broker, reg)

	// Router
	r := mux.NewRouter()

	// Rate limiting: 100 req/s per IP with burst of 200
	r.Use(mw.RateLimitMiddleware(100, 200))

	// Health check and metrics (no auth)
	r.HandleFunc("/healthz", healthzHandler).Methods("GET")
	metrics.RegisterRoutes(r)

	// Auth routes (no auth middleware; tighter rate limit on top of the
	// global one to slow credential stuffing)
	authRouter := r.NewRoute().Subrouter()
	authRouter.Use(mw.StrictRateLimitMiddleware(5, 10))
	authHandlers.RegisterRoutes(authRouter)

	// Protected routes
	protected := r.PathPrefix("").Subrouter()
	protected.Use(mw.AuthMiddleware(jwtService))

	authHandlers.RegisterProtectedRoutes(protected)
	notifications.NewHandlers(notifStore).RegisterRoutes(protected)
	stories.NewHandlers(broker, storyStore).RegisterRoutes(protected)
	posts.NewHandlers(postStore, broker).RegisterRoutes(protected)
	chat.NewHandlers(chatService, chatStore).RegisterRoutes(protected)

	// Chat WebSocket (auth handled inside handler)
	chat.NewStreamHandler(jwtService, reg).RegisterRoutes(r)

	// HTTP Server — CORS wraps the entire router so OPTIONS preflight
	// requests are handled before mux routing (which would 404 on OPTIONS).
	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        corsMiddleware(r),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down server...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Server shutdown failed: %v", err)
		}
	}()

	log.Printf("Starting server on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	log.Println("Server stopped")
}

// purgeLoop deletes notification rows past their retention window once an
// hour until ctx is cancelled. Reads already filter on the window, so this
// only reclaims storage.
func purgeLoop(ctx context.Context, store *notifications.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Printf("WARNING: notification purge failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Purged %d expired notifications", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}

	origins := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		origins[strings.TrimSpace(o)] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(origins) == 1 {
			// Single origin mode: always set it (for dev convenience)
			for o := range origins {
				w.Header().Set("Access-Control-Allow-Origin", o)
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
