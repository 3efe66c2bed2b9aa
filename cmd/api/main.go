package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"detective-llm/internal/config"
	"detective-llm/internal/db"
	apihttp "detective-llm/internal/http"
	"detective-llm/internal/llm"
	"detective-llm/internal/repository"
	"detective-llm/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Sin DATABASE_URL los saldos viven en memoria y se pierden al reiniciar.
	var playerRepo repository.PlayerRepository = repository.NewMemoryPlayerRepository()
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Ping(ctx, pool); err != nil {
			logger.Fatal("db ping", zap.Error(err))
		}
		playerRepo = repository.NewPgPlayerRepository(pool)
	} else {
		logger.Warn("database not configured, using in-memory player store")
	}

	limiter := service.NewMemoryRateLimiter(time.Minute, cfg.GenerateLimit)
	lockouts := service.NewMemoryLockoutStore()
	themes := service.NewMemoryThemeCache()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			limiter = service.NewRedisRateLimiter(redisClient, time.Minute, cfg.GenerateLimit)
			lockouts = service.NewRedisLockoutStore(redisClient)
			themes = service.NewRedisThemeCache(redisClient)
		}
		cancel()
	}

	var jwtSvc *service.JWTService
	if cfg.JWTSecret != "" {
		jwtSvc = service.NewJWTService(cfg.JWTSecret, 24*time.Hour)
	} else {
		logger.Warn("jwt secret not configured, falling back to credential digests")
	}

	players := service.NewPlayerService(playerRepo, logger)
	caseGen := service.NewCaseGenerator(logger)
	themeGen := service.NewDailyThemeGenerator(logger)
	safety := service.NewSafetyModerator(logger)
	analyzer := service.NewInteractionAnalyzer(logger)
	dialogue := service.NewDialogueOrchestrator(logger)

	timeout := time.Duration(cfg.LLMTimeoutSecs) * time.Second
	newClient := func(baseURL, apiKey, model string) llm.Client {
		return llm.NewOpenAIClient(baseURL, apiKey, model, timeout)
	}

	userHandler := apihttp.NewUserHandler(logger, players, jwtSvc)
	gameHandler := apihttp.NewGameHandler(
		logger,
		caseGen, themeGen, safety, analyzer, dialogue,
		players, limiter, lockouts, themes,
		newClient,
		cfg.LLMBaseURL, cfg.LLMModel,
	)
	router := apihttp.NewRouter(logger, jwtSvc, userHandler, gameHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
