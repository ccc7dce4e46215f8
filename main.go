package main

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"apoioufu/config"
	"apoioufu/docstore"
	"apoioufu/handlers"
	"apoioufu/identity"
	"apoioufu/middleware"
	"apoioufu/models"
	"apoioufu/services"
	"apoioufu/utils"
)

func main() {
	envErr := godotenv.Load()
	logger, logFile := middleware.NewLogger(os.Getenv("LOG_DIR"))
	defer logFile.Close()
	log.Logger = logger
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if envErr != nil {
		log.Warn().Err(envErr).Msg("arquivo .env não encontrado")
	}

	if err := config.LoadConfig(); err != nil {
		log.Warn().Err(err).Msg("falha ao carregar configuração")
	}
	cfg := config.Config

	if err := config.ConnectRedis(); err != nil {
		log.Fatal().Err(err).Msg("falha ao conectar ao Redis")
	}
	if err := config.InitMinIO(); err != nil {
		log.Fatal().Err(err).Msg("falha ao inicializar o MinIO")
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("falha ao abrir o repositório")
	}

	var (
		revoked identity.Revocations = identity.NewMemoryRevocations()
		bus     identity.Bus         = identity.NewLocalBus()
	)
	if config.Redis != nil {
		revoked = identity.NewRedisRevocations(config.Redis)
		bus = identity.NewRedisBus(config.Redis, logger)
	}
	provider := identity.NewProvider(store,
		identity.NewTokenIssuer(cfg.Auth.JWTSecret, config.GetTokenTTL()),
		revoked, bus,
		identity.WithLogger(logger),
	)
	defer provider.Close()

	middleware.RegisterCustomValidators()

	health := handlers.NewHealthHandler().Add("docstore", handlers.StoreCheck(store))
	if db := config.GetDB(); db != nil {
		health.Add("mongodb", handlers.MongoCheck(db))
	}
	if config.Redis != nil {
		health.Add("redis", handlers.RedisCheck(config.Redis))
	}
	var images handlers.ImageStore
	if storage := services.NewStorageService(); storage != nil {
		images = storage
		health.Add("storage", handlers.BucketCheck(config.GetMinIOClient(), config.GetMinIOConfig().BucketName))
	}

	r := handlers.NewRouter(handlers.Deps{
		Store:        store,
		Provider:     provider,
		Images:       images,
		Health:       health,
		Logger:       logger,
		Timeout:      config.GetStoreTimeout(),
		PageSize:     cfg.Web.FeedPageSize,
		ImageCDN:     cfg.Web.ImageCDN,
		SPAIndex:     cfg.Web.SPAIndex,
		SeedEmails:   cfg.Auth.SeedEmails,
		AllowOrigins: cfg.Web.AllowOrigins,
		SecureCookie: os.Getenv("COOKIE_SECURE") == "true",
	})

	// Shutdown cancela o contexto base para encerrar os streams SSE.
	baseCtx, stopStreams := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:        config.GetServerAddr(),
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(stopStreams)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("docstore", cfg.Database.Driver).Msg("servidor escutando")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("falha ao iniciar o servidor")
		}
	}()

	utils.GracefulShutdown(srv, config.DisconnectDB)
}

// openStore escolhe o repositório pelo driver configurado e aplica o limite
// de tempo e o cache de perfis.
func openStore(cfg *config.AppConfig, logger zerolog.Logger) (docstore.Store, error) {
	var store docstore.Store
	switch cfg.Database.Driver {
	case "mongo", "mongodb":
		if err := config.ConnectDB(); err != nil {
			return nil, err
		}
		store = docstore.NewMongo(config.GetDB(), logger)
	default:
		log.Warn().Msg("usando repositório em memória, os dados não serão persistidos")
		store = docstore.NewMemory()
	}
	store = docstore.WithTimeout(store, config.GetStoreTimeout())
	if config.Redis != nil {
		store = docstore.NewCached(store, config.Redis, config.GetCacheTTL(), logger, models.UsersCollection)
	}
	return store, nil
}
