package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"echofm/config"
	"echofm/core/auth"
	"echofm/core/billing"
	"echofm/db"
	"echofm/logger"
	"echofm/repository"
	"echofm/storage"

	"github.com/gorilla/mux"
)

// Start initializes dependencies and runs the HTTP server until it receives
// SIGINT or SIGTERM.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	auth.SetSecret(cfg.JWTSecret)

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database with GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.MigrateBillingTables(); err != nil {
		logger.Fatal("Failed to migrate billing tables", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	userRepo := repository.NewMySQLUserRepository(db.DB)
	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	likeRepo := repository.NewMySQLLikeRepository(db.DB)
	billingRepo := repository.NewGormBillingRepository(db.GormDB)

	providerAPI := billing.NewStripeAPI(cfg.StripeSecretKey)
	billingSvc := billing.NewService(providerAPI, billingRepo, userRepo, cfg.StripeWebhookSecret)

	apiHandler := NewAPIHandler(userRepo, trackRepo, likeRepo, billingRepo, billingSvc, cfg)

	router := NewRouter(apiHandler)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", logger.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", logger.ErrorField(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
	}
	logger.Sync()
}

// NewRouter builds the route table. Split out of Start so tests can mount the
// handlers without the full dependency bootstrap.
func NewRouter(apiHandler *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// 认证相关的API端点
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// 曲库相关的API端点
	router.HandleFunc("/api/tracks", apiHandler.OptionalAuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.UploadTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/liked", apiHandler.AuthMiddleware(apiHandler.GetLikedTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.GetTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/url", apiHandler.TrackURLHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/like", apiHandler.AuthMiddleware(apiHandler.LikeTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/like", apiHandler.AuthMiddleware(apiHandler.UnlikeTrackHandler)).Methods(http.MethodDelete)

	// 播放队列相关的API端点
	router.HandleFunc("/api/player/queue", apiHandler.AuthMiddleware(apiHandler.GetQueueHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/player/queue", apiHandler.AuthMiddleware(apiHandler.SetQueueHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/player/queue", apiHandler.AuthMiddleware(apiHandler.ResetQueueHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/player/next", apiHandler.AuthMiddleware(apiHandler.NextTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/player/previous", apiHandler.AuthMiddleware(apiHandler.PreviousTrackHandler)).Methods(http.MethodPost)

	// 订阅计费相关的API端点
	router.HandleFunc("/api/plans", apiHandler.GetPlansHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/subscription", apiHandler.AuthMiddleware(apiHandler.GetSubscriptionHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/checkout-session", apiHandler.OptionalAuthMiddleware(apiHandler.CreateCheckoutSessionHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/portal-link", apiHandler.OptionalAuthMiddleware(apiHandler.CreatePortalLinkHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/webhooks", apiHandler.WebhookHandler).Methods(http.MethodPost)

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
