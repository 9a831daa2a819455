package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/replywave/backend/docs"
	"github.com/replywave/backend/internal/config"
	"github.com/replywave/backend/internal/database"
	"github.com/replywave/backend/internal/handlers"
	mW "github.com/replywave/backend/internal/middleware"
	"github.com/replywave/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title ReplyWave Backend API
// @version 1.0
// @description API for missed-call SMS auto-reply processing
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("admin.password", "ADMIN_PASSWORD")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "ReplyWave Backend API"
	docs.SwaggerInfo.Description = "API for missed-call SMS auto-reply processing"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	telephonyCfg := config.LoadTelephonyConfig()
	pipelineCfg := config.LoadPipelineConfig()
	rateLimitCfg := config.LoadRateLimitConfig()

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	walletService := services.NewWalletService(db)
	settingsService := services.NewSettingsService(db, pipelineCfg)
	alertService := services.NewAlertService(db, services.LogNotifier{}, pipelineCfg.AlertCooldown)
	smsService := services.NewTwilioSMSService(telephonyCfg)
	transcriptionService := services.NewTranscriptionService()
	defer transcriptionService.Close()

	pipelineService := services.NewPipelineService(db, walletService, smsService,
		services.NewTemplateResponder(), transcriptionService, alertService, settingsService)

	dispatcher := services.NewDispatcher(pipelineService.HandleMissedCall,
		pipelineCfg.Workers, pipelineCfg.QueueSize, pipelineCfg.ProcessingTimeout)

	rateLimitService := services.NewRateLimitService(redisClient)
	authService := services.NewAuthService(db, redisClient, rateLimitService, rateLimitCfg)

	signatureValidator := services.NewSignatureValidator(telephonyCfg.AuthToken)
	voiceHandler := handlers.NewVoiceHandler(settingsService, telephonyCfg)
	eventHandler := handlers.NewEventWebhookHandler(signatureValidator, pipelineService, dispatcher, telephonyCfg)
	walletHandler := handlers.NewWalletHandler(walletService)
	adminHandler := handlers.NewAdminHandler(walletService)
	settingsHandler := handlers.NewSettingsHandler(settingsService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Provider webhooks authenticate by signature, not bearer token.
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/voice", voiceHandler.HandleVoice)
		r.Post("/call-event", eventHandler.HandleCallEvent)
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/recover", authService.Recover)
		r.Post("/admin/login", authService.AdminLogin)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/wallet", walletHandler.GetBalance)
			r.Get("/wallet/transactions", walletHandler.ListTransactions)

			r.Get("/settings", settingsHandler.GetSettings)
			r.Put("/settings", settingsHandler.UpdateSettings)
		})

		// Admin endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.AdminMiddleware)

			r.Post("/admin/actions", adminHandler.HandleAction)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// Drain in-flight pipeline jobs after the listener stops accepting.
	dispatcher.Stop()

	log.Println("Server stopped")
}
