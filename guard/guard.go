// Package guard decide se uma visão protegida pode ser exibida a partir da
// sessão corrente e do papel exigido.
package guard

import (
	"sync"

	"apoioufu/authz"
	"apoioufu/models"
	"apoioufu/observable"
	"apoioufu/session"
)

// Status é o estado do guarda.
type Status int

const (
	Pending Status = iota
	Allowed
	DeniedUnauthenticated
	DeniedUnauthorized
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Allowed:
		return "allowed"
	case DeniedUnauthenticated:
		return "denied_unauthenticated"
	case DeniedUnauthorized:
		return "denied_unauthorized"
	}
	return "unknown"
}

// Destinos de navegação das negações.
const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Destination devolve para onde a negação leva, ou vazio.
func (s Status) Destination() string {
	switch s {
	case DeniedUnauthenticated:
		return LoginPath
	case DeniedUnauthorized:
		return HomePath
	}
	return ""
}

// Navigator executa a navegação. Não deve bloquear.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapta uma função a Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Sessions é o fluxo de estados da sessão.
type Sessions interface {
	Subscribe(fn func(session.State)) (cancel func())
}

// Evaluate aplica as regras do guarda a um estado de sessão.
func Evaluate(st session.State, required models.Role) Status {
	switch {
	case !st.Resolved:
		return Pending
	case st.Identity == nil:
		return DeniedUnauthenticated
	case !authz.IsAuthorized(st.Role(), required):
		return DeniedUnauthorized
	default:
		return Allowed
	}
}

// Guard reavalia a cada atualização da sessão e a cada troca do papel
// exigido, navegando ao entrar num estado de negação.
type Guard struct {
	nav    Navigator
	status *observable.Value[Status]

	mu       sync.Mutex
	required models.Role
	last     session.State
	current  Status
	unsub    func()
	closed   bool
}

// New cria o guarda e assina a sessão.
func New(sessions Sessions, required models.Role, nav Navigator) *Guard {
	g := &Guard{
		nav:      nav,
		status:   observable.New(Pending),
		required: required,
		current:  Pending,
	}
	unsub := sessions.Subscribe(g.onSession)
	g.mu.Lock()
	g.unsub = unsub
	g.mu.Unlock()
	return g
}

// Status devolve o estado atual.
func (g *Guard) Status() Status {
	return g.status.Get()
}

// Subscribe entrega o estado atual e cada transição.
func (g *Guard) Subscribe(fn func(Status)) (cancel func()) {
	return g.status.Subscribe(fn)
}

// Allowed informa se a visão pode ser exibida.
func (g *Guard) Allowed() bool {
	return g.Status() == Allowed
}

// SetRequiredRole troca o papel exigido e reavalia.
func (g *Guard) SetRequiredRole(r models.Role) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.required = r
	g.evaluateLocked()
}

// Close cancela a assinatura da sessão.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	unsub := g.unsub
	g.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (g *Guard) onSession(st session.State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.last = st
	g.evaluateLocked()
}

func (g *Guard) evaluateLocked() {
	next := Evaluate(g.last, g.required)
	prev := g.current
	g.current = next
	if next != prev {
		g.status.Set(next)
	}
	if next != prev && g.nav != nil {
		if dest := next.Destination(); dest != "" {
			g.nav.Navigate(dest)
		}
	}
}
