package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"apoioufu/authz"
	"apoioufu/guard"
	"apoioufu/identity"
	"apoioufu/models"
	"apoioufu/session"
)

// TokenCookie é o cookie que carrega o token de sessão.
const TokenCookie = "apoio_token"

const (
	ctxClient  = "identity_client"
	ctxSession = "session"
)

// SessionDeps são as dependências do middleware de sessão.
type SessionDeps struct {
	Provider *identity.Provider
	Profiles session.Profiles
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Session abre um cliente de identidade e uma sessão para a requisição e
// os fecha ao final.
func Session(deps SessionDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := deps.Provider.ClientFromToken(c.Request.Context(), TokenFrom(c))
		store := session.New(client, deps.Profiles,
			session.WithTimeout(deps.Timeout),
			session.WithLogger(deps.Logger),
		)
		defer client.Close()
		defer store.Close()
		c.Set(ctxClient, client)
		c.Set(ctxSession, store)

		c.Next()
	}
}

// TokenFrom lê o token do cabeçalho Authorization ou do cookie.
func TokenFrom(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if token, err := c.Cookie(TokenCookie); err == nil {
		return token
	}
	return ""
}

// IdentityClient devolve o cliente de identidade da requisição.
func IdentityClient(c *gin.Context) *identity.Client {
	v, _ := c.Get(ctxClient)
	client, _ := v.(*identity.Client)
	return client
}

// SessionStore devolve a sessão da requisição.
func SessionStore(c *gin.Context) *session.Store {
	v, _ := c.Get(ctxSession)
	store, _ := v.(*session.Store)
	return store
}

// ResolvedSession espera a sessão resolver, limitado pelo contexto da
// requisição.
func ResolvedSession(c *gin.Context) (session.State, error) {
	store := SessionStore(c)
	if store == nil {
		return session.State{Resolved: true}, nil
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	return store.WaitResolved(ctx)
}

// Actor devolve o ator da sessão resolvida.
func Actor(c *gin.Context) authz.Actor {
	st, err := ResolvedSession(c)
	if err != nil {
		return authz.Actor{}
	}
	return st.Actor()
}

// RequirePage protege uma rota de página: negações viram 302 para o
// destino do guarda.
func RequirePage(required models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, ok := evaluate(c, required)
		if !ok {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		if status != guard.Allowed {
			c.Redirect(http.StatusFound, status.Destination())
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAPI protege uma rota da API: 401 sem identidade, 403 sem papel,
// com o destino em "redirect".
func RequireAPI(required models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, ok := evaluate(c, required)
		if !ok {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "sessão indisponível"})
			return
		}
		switch status {
		case guard.DeniedUnauthenticated:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "faça login para continuar",
				"redirect": status.Destination(),
			})
		case guard.DeniedUnauthorized:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "você não tem permissão para acessar esta página",
				"redirect": status.Destination(),
			})
		default:
			c.Next()
		}
	}
}

func evaluate(c *gin.Context, required models.Role) (guard.Status, bool) {
	store := SessionStore(c)
	if store == nil {
		return guard.Pending, false
	}
	if _, err := ResolvedSession(c); err != nil {
		return guard.Pending, false
	}
	g := guard.New(store, required, nil)
	defer g.Close()
	status := g.Status()
	c.Set("guard_status", status.String())
	return status, true
}
