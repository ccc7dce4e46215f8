// Package roster mantém a lista de usuários sincronizada com a coleção
// "users" e expõe uma visão ordenada e filtrável.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"apoioufu/authz"
	"apoioufu/docstore"
	"apoioufu/models"
	"apoioufu/observable"
)

// SortKey é o campo de ordenação da tabela.
type SortKey string

const (
	SortNome      SortKey = "nome"
	SortSobrenome SortKey = "sobrenome"
	SortEmail     SortKey = "email"
	SortRole      SortKey = "nivel_autorizacao"
)

// Direction é o sentido da ordenação.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ErrUnknownSortKey indica campo de ordenação não suportado.
var ErrUnknownSortKey = errors.New("campo de ordenação desconhecido")

// ParseSortKey valida o nome do campo.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case SortNome, SortSobrenome, SortEmail, SortRole:
		return k, nil
	}
	return "", ErrUnknownSortKey
}

// ViewStatus é o estado de exibição da lista.
type ViewStatus string

const (
	StatusLoading ViewStatus = "loading"
	StatusError   ViewStatus = "error"
	StatusReady   ViewStatus = "ready"
)

// View é a lista ordenada e filtrada.
type View struct {
	Status    ViewStatus       `json:"status"`
	Entries   []models.Profile `json:"entries"`
	SortKey   SortKey          `json:"sort_key"`
	Direction Direction        `json:"direction"`
	Filter    string           `json:"filter"`
	Total     int              `json:"total"`
	Error     string           `json:"error,omitempty"`
}

// Updater grava campos de um documento.
type Updater interface {
	Update(ctx context.Context, collection, id string, fields docstore.Fields) error
}

// Source é a coleção observada e atualizável.
type Source interface {
	Updater
	Subscribe(collection string, fn func(docstore.Snapshot), onErr func(error)) (cancel func(), err error)
}

// UpdateProfile grava exatamente os campos informados em users/uid.
func UpdateProfile(ctx context.Context, u Updater, uid string, fields docstore.Fields) error {
	if len(fields) == 0 {
		return nil
	}
	if err := u.Update(ctx, models.UsersCollection, uid, fields); err != nil {
		return fmt.Errorf("atualizar perfil %s: %w", uid, err)
	}
	return nil
}

// Option ajusta o Controller.
type Option func(*Controller)

// WithTimeout limita cada atualização.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithLogger define o logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l.With().Str("component", "roster").Logger() }
}

// Controller troca o snapshot inteiro a cada notificação da coleção.
// UpdateProfile só grava; a mudança aparece quando a próxima notificação
// chegar.
//
// Assinantes não devem chamar métodos do Controller de dentro do callback.
type Controller struct {
	src     Source
	timeout time.Duration
	log     zerolog.Logger
	view    *observable.Value[View]

	mu       sync.Mutex
	profiles map[string]models.Profile
	received bool
	err      error
	key      SortKey
	dir      Direction
	filter   string
	closed   bool
	unsub    func()
}

// New cria o controlador e assina a coleção de usuários.
func New(src Source, opts ...Option) (*Controller, error) {
	c := &Controller{
		src:      src,
		timeout:  5 * time.Second,
		log:      zerolog.Nop(),
		profiles: map[string]models.Profile{},
		key:      SortNome,
		dir:      Asc,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.view = observable.New(c.computeLocked())

	unsub, err := src.Subscribe(models.UsersCollection, c.onSnapshot, c.onError)
	if err != nil {
		return nil, fmt.Errorf("assinar usuários: %w", err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsub()
		return c, nil
	}
	c.unsub = unsub
	c.mu.Unlock()
	return c, nil
}

// View devolve a visão atual.
func (c *Controller) View() View {
	return c.view.Get()
}

// Subscribe entrega a visão atual e cada atualização.
func (c *Controller) Subscribe(fn func(View)) (cancel func()) {
	return c.view.Subscribe(fn)
}

// Profile devolve o perfil do snapshot atual.
func (c *Controller) Profile(uid string) (models.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.profiles[uid]
	return p, ok
}

// SetSort define campo e sentido.
func (c *Controller) SetSort(key SortKey, dir Direction) error {
	if _, err := ParseSortKey(string(key)); err != nil {
		return err
	}
	if dir != Desc {
		dir = Asc
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key, c.dir = key, dir
	c.publishLocked()
	return nil
}

// ToggleSort repete o clique no cabeçalho: o mesmo campo inverte o
// sentido, outro campo começa em ordem crescente.
func (c *Controller) ToggleSort(key SortKey) error {
	if _, err := ParseSortKey(string(key)); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key == key {
		if c.dir == Asc {
			c.dir = Desc
		} else {
			c.dir = Asc
		}
	} else {
		c.key, c.dir = key, Asc
	}
	c.publishLocked()
	return nil
}

// SetFilter filtra por nome, sobrenome ou email.
func (c *Controller) SetFilter(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = text
	c.publishLocked()
}

// UpdateProfile grava exatamente os campos informados. O snapshot local
// não é alterado.
func (c *Controller) UpdateProfile(ctx context.Context, uid string, fields docstore.Fields) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return UpdateProfile(ctx, c.src, uid, fields)
}

// Close cancela a assinatura.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsub := c.unsub
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Controller) onSnapshot(snap docstore.Snapshot) {
	next := make(map[string]models.Profile, len(snap.Records))
	for _, rec := range snap.Records {
		var p models.Profile
		if err := rec.Decode(&p); err != nil {
			c.log.Warn().Err(err).Str("uid", rec.ID).Msg("perfil ignorado")
			continue
		}
		p.ID = rec.ID
		next[rec.ID] = p
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.profiles = next
	c.received = true
	c.err = nil
	c.publishLocked()
}

func (c *Controller) onError(err error) {
	c.log.Error().Err(err).Msg("assinatura de usuários falhou")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.err = err
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	c.view.Set(c.computeLocked())
}

func (c *Controller) computeLocked() View {
	v := View{SortKey: c.key, Direction: c.dir, Filter: c.filter, Entries: []models.Profile{}}
	switch {
	case c.err != nil:
		v.Status = StatusError
		v.Error = "Não foi possível carregar os usuários."
		return v
	case !c.received:
		v.Status = StatusLoading
		return v
	}
	v.Status = StatusReady
	v.Total = len(c.profiles)
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(c.filter))
	for _, p := range c.profiles {
		if needle == "" || matches(fold, p, needle) {
			v.Entries = append(v.Entries, p)
		}
	}
	Sort(v.Entries, c.key, c.dir)
	return v
}

func matches(fold cases.Caser, p models.Profile, needle string) bool {
	for _, s := range []string{p.Nome, p.Sobrenome, p.Email} {
		if strings.Contains(fold.String(s), needle) {
			return true
		}
	}
	return false
}

// Sort ordena os perfis pelo campo; papéis seguem a ordem de privilégio.
// Empates são desfeitos pelo id, sempre crescente.
func Sort(entries []models.Profile, key SortKey, dir Direction) {
	sort.SliceStable(entries, func(i, j int) bool {
		c := compareBy(entries[i], entries[j], key)
		if c == 0 {
			return entries[i].ID < entries[j].ID
		}
		if dir == Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareBy(a, b models.Profile, key SortKey) int {
	switch key {
	case SortSobrenome:
		return strings.Compare(a.Sobrenome, b.Sobrenome)
	case SortEmail:
		return strings.Compare(a.Email, b.Email)
	case SortRole:
		ra, rb := authz.Rank(a.NivelAutorizacao), authz.Rank(b.NivelAutorizacao)
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		}
		return 0
	default:
		return strings.Compare(a.Nome, b.Nome)
	}
}
