package identity

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// EventKind identifica o tipo de evento de identidade.
type EventKind string

const (
	// EventRefresh pede que os clientes de um uid reemitam a identidade,
	// fazendo as sessões relerem o perfil.
	EventRefresh EventKind = "refresh"
	// EventSignOut encerra os clientes abertos com um token.
	EventSignOut EventKind = "signout"
)

// Event circula entre instâncias do serviço.
type Event struct {
	Kind    EventKind `json:"kind"`
	UID     string    `json:"uid,omitempty"`
	TokenID string    `json:"token_id,omitempty"`
}

// Bus distribui eventos de identidade.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(fn func(Event)) (cancel func())
}

// LocalBus entrega eventos dentro do processo.
type LocalBus struct {
	mu   sync.Mutex
	subs map[int]func(Event)
	next int
}

// NewLocalBus cria o barramento em processo.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]func(Event))}
}

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

func (b *LocalBus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// RedisChannel é o canal Pub/Sub usado pelo RedisBus.
const RedisChannel = "apoio:identity"

// RedisBus distribui eventos entre instâncias via Redis Pub/Sub.
type RedisBus struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisBus cria o barramento sobre o cliente Redis.
func NewRedisBus(rdb *redis.Client, logger zerolog.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, log: logger.With().Str("component", "identity_bus").Logger()}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, RedisChannel, payload).Err()
}

func (b *RedisBus) Subscribe(fn func(Event)) func() {
	ps := b.rdb.Subscribe(context.Background(), RedisChannel)
	go func() {
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn().Err(err).Msg("evento de identidade inválido")
				continue
			}
			fn(ev)
		}
	}()
	return func() {
		if err := ps.Close(); err != nil {
			b.log.Warn().Err(err).Msg("falha ao fechar assinatura")
		}
	}
}
