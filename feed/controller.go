package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"apoioufu/docstore"
	"apoioufu/models"
	"apoioufu/observable"
)

// ViewStatus distingue os estados de exibição, mutuamente exclusivos.
type ViewStatus string

const (
	StatusLoading   ViewStatus = "loading"
	StatusError     ViewStatus = "error"
	StatusEmpty     ViewStatus = "empty"
	StatusNoResults ViewStatus = "no_results"
	StatusReady     ViewStatus = "ready"
	// StatusLoadMoreError mantém as notícias já carregadas e sinaliza que a
	// página seguinte falhou. LoadMore pode ser repetido.
	StatusLoadMoreError ViewStatus = "load_more_error"
)

// View é o que a página de notícias exibe: o destaque e a grade.
type View struct {
	Status  ViewStatus       `json:"status"`
	First   *models.Article  `json:"first"`
	Rest    []models.Article `json:"rest"`
	Term    string           `json:"term"`
	HasMore bool             `json:"has_more"`
	Loading bool             `json:"loading"`
	Total   int              `json:"total"`
	Error   string           `json:"error,omitempty"`
}

// Option ajusta o Controller.
type Option func(*Controller)

// WithPageSize define o tamanho de página.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithTimeout limita cada busca.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithLogger define o logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l.With().Str("component", "feed").Logger() }
}

// Controller acumula páginas do feed e publica a View filtrada pelo termo
// de busca. Só existe uma busca em andamento por vez; pedidos feitos
// enquanto ela corre são descartados. Esgotado o feed, HasMore não volta
// a ser verdadeiro.
//
// Assinantes não devem chamar métodos do Controller de dentro do callback.
type Controller struct {
	src     Source
	size    int
	timeout time.Duration
	log     zerolog.Logger
	view    *observable.Value[View]

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	items    []models.Article
	cursor   *docstore.Cursor
	hasMore  bool
	loaded   bool
	inFlight bool
	err      error
	term     string
	closed   bool
}

// New cria o controlador sem buscar nada.
func New(src Source, opts ...Option) *Controller {
	c := &Controller{
		src:     src,
		size:    DefaultPageSize,
		timeout: 5 * time.Second,
		log:     zerolog.Nop(),
		hasMore: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.view = observable.New(c.computeLocked())
	return c
}

// View devolve a visão atual.
func (c *Controller) View() View {
	return c.view.Get()
}

// Subscribe entrega a visão atual e cada atualização.
func (c *Controller) Subscribe(fn func(View)) (cancel func()) {
	return c.view.Subscribe(fn)
}

// LoadInitial busca a primeira página. Não faz nada se ela já foi carregada
// ou se há busca em andamento; após uma falha pode ser chamado de novo.
// Devolve se uma busca foi iniciada.
func (c *Controller) LoadInitial() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.loaded || c.inFlight {
		return false
	}
	c.startLocked(nil)
	return true
}

// LoadMore busca a próxima página depois do cursor. Descartado se há busca
// em andamento ou se o feed já se esgotou. Antes da primeira página
// equivale a LoadInitial.
func (c *Controller) LoadMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.inFlight || !c.hasMore {
		return false
	}
	if !c.loaded {
		c.startLocked(nil)
	} else {
		c.startLocked(c.cursor)
	}
	return true
}

// SetSearchTerm troca o termo de busca. Nunca dispara busca.
func (c *Controller) SetSearchTerm(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.term = term
	c.publishLocked()
}

// HasMore informa se ainda pode haver páginas.
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Close encerra o controlador; buscas que terminarem depois são ignoradas.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

func (c *Controller) startLocked(after *docstore.Cursor) {
	c.inFlight = true
	c.err = nil
	c.publishLocked()
	go c.fetch(after)
}

func (c *Controller) fetch(after *docstore.Cursor) {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	page, err := FetchPage(ctx, c.src, after, c.size)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.inFlight = false
	if err != nil {
		c.log.Error().Err(err).Msg("falha ao carregar notícias")
		c.err = err
		c.publishLocked()
		return
	}
	c.err = nil
	c.loaded = true
	c.items = append(c.items, page.Articles...)
	if page.Next != nil {
		c.cursor = page.Next
	}
	if !page.HasMore {
		c.hasMore = false
	}
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	c.view.Set(c.computeLocked())
}

func (c *Controller) computeLocked() View {
	v := View{
		Term:    c.term,
		HasMore: c.hasMore,
		Loading: c.inFlight,
		Total:   len(c.items),
		Rest:    []models.Article{},
	}
	if !c.loaded {
		if c.err != nil && !c.inFlight {
			v.Status = StatusError
			v.Error = "Não foi possível carregar as notícias."
		} else {
			v.Status = StatusLoading
		}
		return v
	}

	filtered := Filter(c.items, c.term)
	switch {
	case len(c.items) == 0:
		v.Status = StatusEmpty
	case len(filtered) == 0:
		v.Status = StatusNoResults
	default:
		v.Status = StatusReady
		first := filtered[0]
		v.First = &first
		v.Rest = append(v.Rest, filtered[1:]...)
	}
	if c.err != nil && v.Status != StatusEmpty {
		v.Status = StatusLoadMoreError
		v.Error = "Não foi possível carregar mais notícias."
	}
	return v
}

// Filter devolve os artigos cujo título contém term, sem diferenciar caixa.
func Filter(items []models.Article, term string) []models.Article {
	if term == "" {
		return items
	}
	fold := cases.Fold()
	needle := fold.String(term)
	out := make([]models.Article, 0, len(items))
	for _, a := range items {
		if strings.Contains(fold.String(a.Titulo), needle) {
			out = append(out, a)
		}
	}
	return out
}
