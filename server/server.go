package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"demixer/cache"
	"demixer/config"
	"demixer/core/auth"
	"demixer/core/intake"
	"demixer/core/separation"
	"demixer/db"
	"demixer/logger"
	"demixer/repository"
	"demixer/storage"
)

// Start initializes and starts the HTTP server.
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

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := storage.InitMinio(cfg); err != nil {
		log.Fatalf("Failed to initialize MinIO: %v", err)
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database with GORM: %v", err)
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer db.CloseRedis()
	log.Println("Successfully connected to Redis")

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.AutoMigrateModels(&repository.KVRecord{}); err != nil {
		log.Fatalf("Failed to migrate models: %v", err)
	}

	// Plan catalog with hot reload.
	catalog := config.NewPlanCatalog(cfg.PlansFile)
	watchDone := make(chan struct{})
	go func() {
		if err := catalog.Watch(cfg.PlansFile, watchDone, func(err error) {
			if err != nil {
				logger.Warn("plan catalog reload failed", logger.ErrorField(err))
			} else {
				logger.Info("plan catalog reloaded", logger.String("file", cfg.PlansFile))
			}
		}); err != nil {
			logger.Warn("plan catalog watcher unavailable", logger.ErrorField(err))
		}
	}()

	// Session snapshots: redis cache layered over the durable gorm row.
	kv := cache.NewLayeredKV(
		cache.NewRedisKV(db.RedisClient),
		repository.NewGormKVStore(db.GormDB),
	)

	userRepo := repository.NewMySQLUserRepository(db.DB)
	studios := NewStudioManager(kv, separation.NewSimulator(), separation.NewRandomSource())
	fileIntake := intake.New(cfg.MaxUploadBytes)

	apiHandler := NewAPIHandler(userRepo, catalog, fileIntake, studios, cfg)

	router := mux.NewRouter()

	// CORS middleware
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Auth endpoints
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout", apiHandler.AuthMiddleware(apiHandler.LogoutHandler)).Methods(http.MethodPost)

	// Profile and plans
	router.HandleFunc("/api/me", apiHandler.AuthMiddleware(apiHandler.ProfileHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/plans", apiHandler.PlansHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/plan", apiHandler.AuthMiddleware(apiHandler.SelectPlanHandler)).Methods(http.MethodPost)

	// Job lifecycle
	router.HandleFunc("/api/jobs", apiHandler.AuthMiddleware(apiHandler.SubmitJobHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/current", apiHandler.AuthMiddleware(apiHandler.JobStatusHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/current/cancel", apiHandler.AuthMiddleware(apiHandler.CancelJobHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/current/save", apiHandler.AuthMiddleware(apiHandler.SaveProjectHandler)).Methods(http.MethodPost)
	router.HandleFunc("/ws/jobs/progress", apiHandler.JobProgressHandler).Methods(http.MethodGet)

	// Projects
	router.HandleFunc("/api/projects", apiHandler.AuthMiddleware(apiHandler.ListProjectsHandler)).Methods(http.MethodGet)

	// Playback
	router.HandleFunc("/api/player/load", apiHandler.AuthMiddleware(apiHandler.LoadPlayerHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/player/unload", apiHandler.AuthMiddleware(apiHandler.UnloadPlayerHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/player", apiHandler.AuthMiddleware(apiHandler.PlayerStateHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/player/{track_id}/{action}", apiHandler.AuthMiddleware(apiHandler.TransportHandler)).Methods(http.MethodPost)

	// Media objects (original uploads and stems)
	router.PathPrefix("/media/").HandlerFunc(apiHandler.MediaHandler).Methods(http.MethodGet)

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s...", cfg.ServerAddr)
		log.Println("Submit jobs via POST to /api/jobs")
		log.Println("Watch progress via WS at /ws/jobs/progress")
		log.Println("Control playback via /api/player endpoints")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")
	close(watchDone)
	studios.DropAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
