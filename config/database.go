package config

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	DB    *mongo.Database
	Redis *redis.Client
)

// ConnectDB conecta ao MongoDB configurado e verifica com ping.
func ConnectDB() error {
	cfg := get().Database.MongoDB
	log.Info().Str("uri", cfg.URI).Msg("conectando ao MongoDB")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return fmt.Errorf("conectar ao MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping no MongoDB: %w", err)
	}

	DB = client.Database(cfg.Database)
	log.Info().Str("database", cfg.Database).Msg("MongoDB conectado")
	return nil
}

// DisconnectDB encerra o cliente MongoDB, se houver.
func DisconnectDB(ctx context.Context) error {
	if DB == nil {
		return nil
	}
	return DB.Client().Disconnect(ctx)
}

// GetDB devolve o banco conectado.
func GetDB() *mongo.Database {
	return DB
}

// ConnectRedis conecta ao Redis quando REDIS_URL está definido. Sem URL,
// Redis fica nil e os componentes usam as versões em memória.
func ConnectRedis() error {
	url := get().Database.Redis.URL
	if url == "" {
		log.Info().Msg("REDIS_URL não definido, cache e barramento em memória")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("REDIS_URL inválido: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping no Redis: %w", err)
	}
	Redis = client
	log.Info().Str("addr", opts.Addr).Msg("Redis conectado")
	return nil
}
