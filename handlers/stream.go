package handlers

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"apoioufu/middleware"
)

// Eventos enviados pelos streams SSE.
const (
	EventView     = "view"
	EventStream   = "stream"
	EventRedirect = "redirect"
	EventPing     = "ping"
)

const pingInterval = 25 * time.Second

// mailbox guarda só o evento mais recente de cada nome. O produtor nunca
// bloqueia; o escritor drena em ordem de chegada.
type mailbox struct {
	mu      sync.Mutex
	order   []string
	pending map[string]any
	wake    chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{pending: map[string]any{}, wake: make(chan struct{}, 1)}
}

func (m *mailbox) put(name string, data any) {
	m.mu.Lock()
	if _, ok := m.pending[name]; !ok {
		m.order = append(m.order, name)
	}
	m.pending[name] = data
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

type sseEvent struct {
	name string
	data any
}

func (m *mailbox) drain() []sseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sseEvent, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, sseEvent{name: name, data: m.pending[name]})
	}
	m.order = m.order[:0]
	clear(m.pending)
	return out
}

// serveSSE escreve os eventos da caixa até o cliente sair ou um evento
// "redirect" ser enviado.
func serveSSE(c *gin.Context, kind string, box *mailbox) {
	defer middleware.StreamOpened(kind)()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	done := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case <-ticker.C:
			c.SSEvent(EventPing, time.Now().Unix())
			return true
		case <-box.wake:
			for _, ev := range box.drain() {
				c.SSEvent(ev.name, ev.data)
				if ev.name == EventRedirect {
					return false
				}
			}
			return true
		}
	})
}

// registry liga o id de um stream ao controlador que o alimenta e ao uid
// de quem o abriu, para que requisições seguintes do mesmo cliente possam
// comandá-lo. Os streams vivem no processo que os abriu.
type registry[T any] struct {
	mu      sync.RWMutex
	streams map[string]streamEntry[T]
}

type streamEntry[T any] struct {
	owner string
	ctrl  T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{streams: map[string]streamEntry[T]{}}
}

func (r *registry[T]) add(owner string, v T) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.streams[id] = streamEntry[T]{owner: owner, ctrl: v}
	r.mu.Unlock()
	return id
}

func (r *registry[T]) get(id string) (streamEntry[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.streams[id]
	return e, ok
}

func (r *registry[T]) remove(id string) {
	r.mu.Lock()
	delete(r.streams, id)
	r.mu.Unlock()
}

// streamFrom resolve o parâmetro :id para o mesmo usuário que abriu o
// stream; qualquer outro caso responde 404.
func streamFrom[T any](c *gin.Context, r *registry[T]) (T, bool) {
	e, ok := r.get(c.Param("id"))
	if !ok || e.owner != middleware.Actor(c).UID {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream não encontrado"})
		var zero T
		return zero, false
	}
	return e.ctrl, true
}
