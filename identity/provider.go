// Package identity é o provedor de identidade: contas com senha Argon2id,
// tokens JWT de sessão e clientes que notificam mudanças de identidade.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"apoioufu/docstore"
	"apoioufu/models"
	"apoioufu/observable"
)

var (
	// ErrInvalidCredentials cobre e-mail inexistente e senha incorreta.
	ErrInvalidCredentials = errors.New("e-mail ou senha inválidos")
	// ErrAccountExists indica e-mail já cadastrado.
	ErrAccountExists = errors.New("e-mail já cadastrado")
	// ErrInvalidEmail indica e-mail vazio ou malformado.
	ErrInvalidEmail = errors.New("e-mail inválido")
)

// Identity é o usuário autenticado.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Option ajusta o Provider.
type Option func(*Provider)

// WithHashParams troca os parâmetros de hash de senha.
func WithHashParams(p *argon2id.Params) Option {
	return func(pr *Provider) { pr.hash = p }
}

// WithLogger define o logger do provedor.
func WithLogger(l zerolog.Logger) Option {
	return func(pr *Provider) { pr.log = l.With().Str("component", "identity").Logger() }
}

// Provider autentica contas e mantém os clientes abertos.
type Provider struct {
	store   docstore.Store
	tokens  *TokenIssuer
	revoked Revocations
	bus     Bus
	hash    *argon2id.Params
	log     zerolog.Logger

	mu        sync.Mutex
	clients   map[*Client]struct{}
	cancelBus func()
}

// NewProvider cria o provedor e passa a ouvir o barramento.
func NewProvider(store docstore.Store, tokens *TokenIssuer, revoked Revocations, bus Bus, opts ...Option) *Provider {
	p := &Provider{
		store:   store,
		tokens:  tokens,
		revoked: revoked,
		bus:     bus,
		hash:    DefaultHashParams,
		log:     zerolog.Nop(),
		clients: make(map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cancelBus = bus.Subscribe(p.dispatch)
	return p
}

// Close deixa de ouvir o barramento.
func (p *Provider) Close() {
	if p.cancelBus != nil {
		p.cancelBus()
	}
}

// NewClient cria um cliente sem ninguém autenticado.
func (p *Provider) NewClient() *Client {
	c := &Client{p: p, value: observable.New[*Identity](nil)}
	p.register(c)
	return c
}

// ClientFromToken cria um cliente a partir do token apresentado. Token
// ausente, inválido, expirado ou revogado resulta em cliente deslogado.
func (p *Provider) ClientFromToken(ctx context.Context, token string) *Client {
	c := p.NewClient()
	if token == "" {
		return c
	}
	claims, err := p.tokens.Parse(token)
	if err != nil {
		p.log.Debug().Err(err).Msg("token rejeitado")
		return c
	}
	revoked, err := p.revoked.Revoked(ctx, claims.ID)
	if err != nil {
		p.log.Warn().Err(err).Msg("falha ao consultar revogação")
		return c
	}
	if revoked {
		return c
	}
	c.adopt(&Identity{UID: claims.Subject, Email: claims.Email}, token, claims)
	return c
}

// Refresh avisa os clientes do uid, em todas as instâncias, que os dados
// do usuário mudaram.
func (p *Provider) Refresh(ctx context.Context, uid string) error {
	return p.bus.Publish(ctx, Event{Kind: EventRefresh, UID: uid})
}

// ActiveClients conta os clientes ainda não fechados.
func (p *Provider) ActiveClients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *Provider) register(c *Client) {
	p.mu.Lock()
	p.clients[c] = struct{}{}
	p.mu.Unlock()
}

func (p *Provider) unregister(c *Client) {
	p.mu.Lock()
	delete(p.clients, c)
	p.mu.Unlock()
}

func (p *Provider) dispatch(ev Event) {
	p.mu.Lock()
	targets := make([]*Client, 0, len(p.clients))
	for c := range p.clients {
		targets = append(targets, c)
	}
	p.mu.Unlock()

	for _, c := range targets {
		switch ev.Kind {
		case EventRefresh:
			c.reemit(ev.UID)
		case EventSignOut:
			c.expire(ev.TokenID)
		}
	}
}

func normalizeEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	at := strings.IndexByte(e, '@')
	if at <= 0 || at == len(e)-1 || strings.ContainsAny(e, " \t") {
		return "", ErrInvalidEmail
	}
	return e, nil
}

func (p *Provider) findAccount(ctx context.Context, email string) (*models.Account, error) {
	recs, err := p.store.Query(ctx, models.AccountsCollection, docstore.Query{
		Where: []docstore.Filter{docstore.Where("email", email)},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("consultar conta: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	var acc models.Account
	if err := recs[0].Decode(&acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (p *Provider) createAccount(ctx context.Context, email, password string) (Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Identity{}, err
	}
	if err := CheckPasswordStrength(password); err != nil {
		return Identity{}, err
	}
	existing, err := p.findAccount(ctx, email)
	if err != nil {
		return Identity{}, err
	}
	if existing != nil {
		return Identity{}, ErrAccountExists
	}
	hash, err := hashPassword(password, p.hash)
	if err != nil {
		return Identity{}, fmt.Errorf("gerar hash: %w", err)
	}
	id, err := p.store.Add(ctx, models.AccountsCollection, models.Account{
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Identity{}, ErrAccountExists
		}
		return Identity{}, fmt.Errorf("criar conta: %w", err)
	}
	p.log.Info().Str("uid", id).Msg("conta criada")
	return Identity{UID: id, Email: email}, nil
}

func (p *Provider) authenticate(ctx context.Context, email, password string) (Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	acc, err := p.findAccount(ctx, email)
	if err != nil {
		return Identity{}, err
	}
	if acc == nil {
		return Identity{}, ErrInvalidCredentials
	}
	ok, err := verifyPassword(password, acc.PasswordHash)
	if err != nil {
		return Identity{}, fmt.Errorf("verificar senha: %w", err)
	}
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	now := time.Now().UTC()
	if err := p.store.Update(ctx, models.AccountsCollection, acc.ID, docstore.Fields{"last_login_at": now}); err != nil {
		p.log.Warn().Err(err).Str("uid", acc.ID).Msg("falha ao registrar último login")
	}
	return Identity{UID: acc.ID, Email: acc.Email}, nil
}

// Client é a visão de identidade de uma requisição ou conexão.
type Client struct {
	p     *Provider
	value *observable.Value[*Identity]

	mu     sync.Mutex
	token  string
	claims *Claims
	closed bool
}

// Subscribe entrega a identidade atual (nil se deslogado) e cada mudança.
func (c *Client) Subscribe(fn func(*Identity)) (cancel func()) {
	return c.value.Subscribe(fn)
}

// Current devolve a identidade atual.
func (c *Client) Current() *Identity {
	return c.value.Get()
}

// Token devolve o token de sessão e sua expiração; vazio se deslogado.
func (c *Client) Token() (string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claims == nil {
		return "", time.Time{}
	}
	return c.token, c.claims.ExpiresAt.Time
}

// SignIn autentica com e-mail e senha.
func (c *Client) SignIn(ctx context.Context, email, password string) (Identity, error) {
	id, err := c.p.authenticate(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	if err := c.issue(id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// CreateAccount cadastra a conta e já a deixa autenticada.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (Identity, error) {
	id, err := c.p.createAccount(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	if err := c.issue(id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// SignOut revoga o token atual e avisa as demais instâncias.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	claims := c.claims
	c.token, c.claims = "", nil
	c.mu.Unlock()

	c.value.Set(nil)
	if claims == nil {
		return nil
	}
	if err := c.p.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revogar token: %w", err)
	}
	return c.p.bus.Publish(ctx, Event{Kind: EventSignOut, UID: claims.Subject, TokenID: claims.ID})
}

// Close desliga o cliente do provedor.
func (c *Client) Close() {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if !already {
		c.p.unregister(c)
	}
}

func (c *Client) issue(id Identity) error {
	token, claims, err := c.p.tokens.Issue(id)
	if err != nil {
		return fmt.Errorf("emitir token: %w", err)
	}
	c.adopt(&id, token, claims)
	return nil
}

func (c *Client) adopt(id *Identity, token string, claims *Claims) {
	c.mu.Lock()
	c.token, c.claims = token, claims
	c.mu.Unlock()
	c.value.Set(id)
}

func (c *Client) reemit(uid string) {
	cur := c.value.Get()
	if cur == nil || cur.UID != uid {
		return
	}
	cp := *cur
	c.value.Set(&cp)
}

func (c *Client) expire(tokenID string) {
	c.mu.Lock()
	match := c.claims != nil && c.claims.ID == tokenID
	if match {
		c.token, c.claims = "", nil
	}
	c.mu.Unlock()
	if match {
		c.value.Set(nil)
	}
}
