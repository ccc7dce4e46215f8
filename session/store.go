// Package session mantém a sessão corrente: identidade, perfil e se a
// primeira resolução já terminou.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"apoioufu/authz"
	"apoioufu/docstore"
	"apoioufu/identity"
	"apoioufu/models"
	"apoioufu/observable"
)

// State é o triplo publicado pela sessão.
type State struct {
	Identity *identity.Identity
	Profile  *models.Profile
	Resolved bool
}

// Role devolve o papel do perfil, ou vazio quando não há perfil.
func (s State) Role() models.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.NivelAutorizacao
}

// Actor converte o estado no ator usado pela política de autorização.
func (s State) Actor() authz.Actor {
	if s.Identity == nil {
		return authz.Actor{}
	}
	return authz.Actor{UID: s.Identity.UID, Role: s.Role(), Name: s.Profile.FullName()}
}

// IdentitySource é o fluxo de mudanças de identidade.
type IdentitySource interface {
	Subscribe(fn func(*identity.Identity)) (cancel func())
}

// Profiles lê o registro de perfil.
type Profiles interface {
	Get(ctx context.Context, collection, id string) (docstore.Record, error)
}

// Option ajusta o Store.
type Option func(*Store)

// WithTimeout limita a leitura do perfil.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithLogger define o logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l.With().Str("component", "session").Logger() }
}

// Store assina o fluxo de identidade e publica State. Cada evento descarta
// a leitura de perfil de eventos anteriores ainda em andamento.
//
// Assinantes não devem provocar mudança de identidade de dentro do callback.
type Store struct {
	value    *observable.Value[State]
	profiles Profiles
	timeout  time.Duration
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	gen       uint64
	closed    bool
	unsub     func()
	publishMu sync.Mutex
}

// New cria a sessão e assina src.
func New(src IdentitySource, profiles Profiles, opts ...Option) *Store {
	s := &Store{
		value:    observable.New(State{}),
		profiles: profiles,
		timeout:  5 * time.Second,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	unsub := src.Subscribe(s.onIdentity)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		return s
	}
	s.unsub = unsub
	s.mu.Unlock()
	return s
}

// Get devolve o estado atual.
func (s *Store) Get() State {
	return s.value.Get()
}

// Subscribe entrega o estado atual e cada atualização.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	return s.value.Subscribe(fn)
}

// WaitResolved bloqueia até a primeira resolução ou até ctx terminar.
func (s *Store) WaitResolved(ctx context.Context) (State, error) {
	return s.WaitUntil(ctx, func(st State) bool { return st.Resolved })
}

// WaitUntil bloqueia até um estado satisfazer ok ou até ctx terminar.
func (s *Store) WaitUntil(ctx context.Context, ok func(State) bool) (State, error) {
	ch := make(chan State, 1)
	cancel := s.value.Subscribe(func(st State) {
		if !ok(st) {
			return
		}
		select {
		case ch <- st:
		default:
		}
	})
	defer cancel()
	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Close cancela a assinatura; leituras que chegarem depois são descartadas.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	s.cancel()
	if unsub != nil {
		unsub()
	}
}

func (s *Store) onIdentity(id *identity.Identity) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	if id == nil {
		s.publish(gen, State{Resolved: true})
		return
	}
	go s.fetch(gen, id)
}

func (s *Store) fetch(gen uint64, id *identity.Identity) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	var profile *models.Profile
	rec, err := s.profiles.Get(ctx, models.UsersCollection, id.UID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		s.log.Info().Str("uid", id.UID).Msg("perfil ausente, aguardando provisionamento")
	case err != nil:
		if s.ctx.Err() == nil {
			s.log.Error().Err(err).Str("uid", id.UID).Msg("falha ao buscar perfil")
		}
	default:
		var p models.Profile
		if err := rec.Decode(&p); err != nil {
			s.log.Error().Err(err).Str("uid", id.UID).Msg("perfil inválido")
		} else {
			profile = &p
		}
	}
	s.publish(gen, State{Identity: id, Profile: profile, Resolved: true})
}

func (s *Store) publish(gen uint64, st State) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	stale := s.closed || gen != s.gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.value.Set(st)
}
