package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/postboard/postboard/backend/go-services/handlers"
	"github.com/postboard/postboard/backend/go-services/internal/config"
	"github.com/postboard/postboard/backend/go-services/internal/database"
	"github.com/postboard/postboard/backend/go-services/internal/oidc"
	"github.com/postboard/postboard/backend/go-services/internal/post/handler"
	"github.com/postboard/postboard/backend/go-services/internal/post/reconcile"
	"github.com/postboard/postboard/backend/go-services/internal/post/refs"
	"github.com/postboard/postboard/backend/go-services/internal/post/repository"
	"github.com/postboard/postboard/backend/go-services/internal/post/service"
	"github.com/postboard/postboard/backend/go-services/internal/sessions"
	"github.com/postboard/postboard/backend/go-services/internal/storage"
	"github.com/postboard/postboard/backend/go-services/internal/sweep"
	"github.com/postboard/postboard/backend/go-services/internal/tokens"
	"github.com/postboard/postboard/backend/go-services/internal/users"
	"github.com/postboard/postboard/backend/go-services/pkg/logger"
	"github.com/postboard/postboard/backend/go-services/pkg/metrics"
	"github.com/postboard/postboard/backend/go-services/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal, LOG_FORMAT: text|json
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.SetFormat(os.Getenv("LOG_FORMAT"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v s3=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.StorageConfigured())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors(cfg.Server.CORSOrigins))

	// Redis: token blacklist, shared rate limiter, post counter
	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		c := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := c.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
		} else {
			rdb = c
			sessions.SetBlacklistClient(rdb)
			logger.Infof("connected to Redis: %s", addr)
		}
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// MongoDB, falling back to memory
	var mongoClient *mongo.Client
	var repo repository.Repository
	var userRepo users.UserRepository
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("could not connect to MongoDB, using memory store: %v", err)
		} else {
			mongoClient = client
			defer func() { _ = client.Disconnect(context.Background()) }()
			db := client.Database(cfg.MongoDB.Database)
			repo = repository.NewMongoRepo(ctx, db.Collection("posts"))
			userRepo = users.NewMongoUserRepository(db.Collection("users"))
		}
	}
	if repo == nil {
		repo = repository.NewMemoryRepo()
		userRepo = users.NewMemoryUserRepository()
	}
	counter := newCounter(cfg, repo, mongoClient, rdb)

	// object storage: memory only when S3 is not configured at all
	store, err := storage.Open(ctx, &cfg.Storage.S3, 5)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	base := cfg.Storage.S3.PublicBaseURL()

	norm := refs.NewNormalizer(base)
	rec := reconcile.New(store, cfg.Storage.DeleteConcurrency)
	postSvc := service.New(repo, counter, rec, norm)
	sweeper := sweep.New(repo, store, rec, norm, sweep.Options{
		Prefix:   cfg.Sweep.Prefix,
		MinAge:   cfg.Sweep.MinAge,
		Interval: cfg.Sweep.Interval,
		DryRun:   cfg.Sweep.DryRun,
	})
	if mongoClient != nil {
		sweeper.SetHistory(sweep.NewMongoHistory(mongoClient.Database(cfg.MongoDB.Database).Collection("sweep_runs")))
	} else {
		sweeper.SetHistory(sweep.NewMemoryHistory(50))
	}

	// token verifiers: locally issued HS256 first, then Keycloak
	var chain middleware.ChainVerifier
	if cfg.JWT.Secret != "" {
		chain = append(chain, tokens.NewVerifier(cfg.JWT.Secret))
	}
	oidcReady := cfg.Keycloak.URL == ""
	if cfg.Keycloak.URL != "" {
		issuer := oidc.KeycloakIssuer(cfg.Keycloak.URL, cfg.Keycloak.Realm)
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			chain = append(chain, ver)
			oidcReady = true
		}
	}
	if len(chain) == 0 {
		logger.Warnf("no token verifier configured; authenticated routes will reject every request")
	}
	auth := middleware.AuthMiddleware(chain)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"mongo": mongoClient != nil || cfg.MongoDB.URI == "",
			"redis": rdb != nil || cfg.Redis.Host == "",
			"oidc":  oidcReady,
		}
		ready := true
		if mongoClient != nil {
			pctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := mongoClient.Ping(pctx, nil); err != nil {
				deps["mongo"] = false
			}
		}
		for _, ok := range deps {
			if !ok {
				ready = false
			}
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	handlers.RegisterSwagger(r)
	handlers.NewAuthHandler(cfg, users.NewService(userRepo)).Register(r, auth)
	handler.New(handler.Deps{
		Service:      postSvc,
		Store:        store,
		Sweeper:      sweeper,
		Auth:         auth,
		AdminRole:    cfg.Admin.Role,
		PresignTTL:   cfg.Storage.PresignTTL,
		UploadPrefix: cfg.Storage.UploadPrefix,
	}).Register(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sweeper.Start(ctx)
	defer sweeper.Stop()

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting postboard on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}

// newCounter picks the post sequence backend. "auto" prefers MongoDB, then
// Redis, then memory.
func newCounter(cfg *config.Config, repo repository.Repository, mc *mongo.Client, rdb *redis.Client) repository.Counter {
	seed := repository.LatestNumberSeed(repo)
	mode := cfg.Posts.Counter
	if mode == "auto" || mode == "" {
		switch {
		case mc != nil:
			mode = "mongo"
		case rdb != nil:
			mode = "redis"
		default:
			mode = "memory"
		}
	}
	switch {
	case mode == "mongo" && mc != nil:
		logger.Infof("post counter: mongo")
		return repository.NewMongoCounter(mc.Database(cfg.MongoDB.Database).Collection("post_counters"), seed)
	case mode == "redis" && rdb != nil:
		logger.Infof("post counter: redis")
		return repository.NewRedisCounter(rdb, "", seed)
	}
	if mode != "memory" {
		logger.Warnf("post counter %q unavailable, using memory", mode)
	}
	return repository.NewMemoryCounter(seed)
}

func cors(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := map[string]bool{}
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
