package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/minio/minio-go/v7"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"apoioufu/docstore"
	"apoioufu/models"
)

// Check verifica uma dependência.
type Check func(ctx context.Context) error

// HealthHandler agrega as verificações de saúde.
type HealthHandler struct {
	checks map[string]Check
}

// NewHealthHandler cria o handler sem verificações.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: map[string]Check{}}
}

// Add registra uma verificação.
func (h *HealthHandler) Add(name string, check Check) *HealthHandler {
	h.checks[name] = check
	return h
}

// StoreCheck consulta uma notícia no repositório.
func StoreCheck(store docstore.Store) Check {
	return func(ctx context.Context) error {
		_, err := store.Query(ctx, models.ArticlesCollection, docstore.Query{Limit: 1})
		return err
	}
}

// MongoCheck faz ping no primário.
func MongoCheck(db *mongo.Database) Check {
	return func(ctx context.Context) error {
		return db.Client().Ping(ctx, readpref.Primary())
	}
}

// RedisCheck faz PING no Redis.
func RedisCheck(rdb *redis.Client) Check {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// BucketCheck confirma que o bucket de imagens existe.
func BucketCheck(client *minio.Client, bucket string) Check {
	return func(ctx context.Context) error {
		ok, err := client.BucketExists(ctx, bucket)
		if err == nil && !ok {
			return minio.ErrorResponse{Code: "NoSuchBucket", BucketName: bucket}
		}
		return err
	}
}

// HealthCheck responde 200 com todas as dependências saudáveis e 503 caso
// contrário.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	code := http.StatusOK
	services := gin.H{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			services[name] = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		services[name] = "healthy"
	}

	status := "running"
	if code != http.StatusOK {
		status = "degraded"
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"services":  services,
	})
}
