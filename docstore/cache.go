package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
)

// Cached envolve um Store com cache de leitura no Redis para Get nas
// coleções indicadas. Escritas pelo mesmo Store invalidam a chave; a
// ausência de documento nunca é cacheada.
type Cached struct {
	Store
	rdb         *redis.Client
	ttl         time.Duration
	collections map[string]struct{}
	log         zerolog.Logger
}

// NewCached cria o decorador.
func NewCached(inner Store, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger, collections ...string) *Cached {
	set := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		set[c] = struct{}{}
	}
	return &Cached{
		Store:       inner,
		rdb:         rdb,
		ttl:         ttl,
		collections: set,
		log:         logger.With().Str("component", "docstore_cache").Logger(),
	}
}

// CacheKey monta a chave Redis de um documento.
func CacheKey(collection, id string) string {
	return "apoio:doc:" + collection + ":" + id
}

func (c *Cached) cacheable(collection string) bool {
	_, ok := c.collections[collection]
	return ok
}

// Get tenta o Redis antes do Store. O preenchimento só acontece se nenhuma
// invalidação ocorreu entre a leitura da versão e a leitura do Store.
func (c *Cached) Get(ctx context.Context, collection, id string) (Record, error) {
	if !c.cacheable(collection) {
		return c.Store.Get(ctx, collection, id)
	}
	key := CacheKey(collection, id)
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		return Record{ID: id, Data: bson.Raw(data)}, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Str("key", key).Msg("falha ao ler cache")
	}

	version, verr := c.version(ctx, c.rdb, key)
	rec, err := c.Store.Get(ctx, collection, id)
	if err != nil {
		return rec, err
	}
	if verr != nil {
		c.log.Warn().Err(verr).Str("key", key).Msg("falha ao ler versão do cache")
		return rec, nil
	}
	if err := c.fill(ctx, key, version, rec.Data); err != nil && !errors.Is(err, errStaleFill) {
		c.log.Warn().Err(err).Str("key", key).Msg("falha ao gravar cache")
	}
	return rec, nil
}

var errStaleFill = errors.New("docstore: documento alterado durante a leitura")

func versionKey(key string) string {
	return key + ":v"
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *Cached) version(ctx context.Context, cmd stringGetter, key string) (int64, error) {
	v, err := cmd.Get(ctx, versionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// fill grava o documento só se a versão ainda for a lida antes do Store.
func (c *Cached) fill(ctx context.Context, key string, version int64, data bson.Raw) error {
	return c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := c.version(ctx, tx, key)
		if err != nil {
			return err
		}
		if cur != version {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, []byte(data), c.ttl)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return errStaleFill
		}
		return err
	}, versionKey(key))
}

// invalidate apaga a chave e avança a versão, o que anula preenchimentos
// com leituras anteriores à escrita.
func (c *Cached) invalidate(ctx context.Context, collection, id string) {
	if !c.cacheable(collection) {
		return
	}
	key := CacheKey(collection, id)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Incr(ctx, versionKey(key))
		pipe.Expire(ctx, versionKey(key), c.versionTTL())
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("falha ao invalidar cache")
	}
}

// versionTTL mantém a versão viva bem além de qualquer leitura em curso.
func (c *Cached) versionTTL() time.Duration {
	if c.ttl < time.Hour {
		return time.Hour
	}
	return 2 * c.ttl
}

// Set grava e invalida o cache.
func (c *Cached) Set(ctx context.Context, collection, id string, doc any) error {
	err := c.Store.Set(ctx, collection, id, doc)
	c.invalidate(ctx, collection, id)
	return err
}

// Update grava e invalida o cache.
func (c *Cached) Update(ctx context.Context, collection, id string, fields Fields) error {
	err := c.Store.Update(ctx, collection, id, fields)
	c.invalidate(ctx, collection, id)
	return err
}

// Delete remove e invalida o cache.
func (c *Cached) Delete(ctx context.Context, collection, id string) error {
	err := c.Store.Delete(ctx, collection, id)
	c.invalidate(ctx, collection, id)
	return err
}
