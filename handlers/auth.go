package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"apoioufu/authz"
	"apoioufu/guard"
	"apoioufu/identity"
	"apoioufu/middleware"
	"apoioufu/models"
	"apoioufu/session"
)

// ProfileWriter grava o registro de perfil.
type ProfileWriter interface {
	Set(ctx context.Context, collection, id string, doc any) error
}

// AuthHandler atende cadastro, login, logout e a sessão atual.
type AuthHandler struct {
	profiles     ProfileWriter
	timeout      time.Duration
	secureCookie bool
	log          zerolog.Logger
}

// NewAuthHandler cria o handler de autenticação.
func NewAuthHandler(profiles ProfileWriter, timeout time.Duration, secureCookie bool, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		profiles:     profiles,
		timeout:      timeout,
		secureCookie: secureCookie,
		log:          log.With().Str("handler", "auth").Logger(),
	}
}

// RegisterRequest é o formulário de cadastro.
type RegisterRequest struct {
	Nome           string `json:"nome" binding:"required,max=80"`
	Sobrenome      string `json:"sobrenome" binding:"required,max=80"`
	Email          string `json:"email" binding:"required,email"`
	Senha          string `json:"senha" binding:"required,strongpassword"`
	ConfirmarSenha string `json:"confirmar_senha" binding:"required,eqfield=Senha"`
}

// LoginRequest é o formulário de login.
type LoginRequest struct {
	Email string `json:"email" binding:"required,email"`
	Senha string `json:"senha" binding:"required"`
}

// SessionResponse resume a sessão para o cabeçalho do site.
type SessionResponse struct {
	Authenticated   bool        `json:"authenticated"`
	UID             string      `json:"uid,omitempty"`
	Email           string      `json:"email,omitempty"`
	DisplayName     string      `json:"display_name"`
	Role            models.Role `json:"role"`
	IsWriterOrAdmin bool        `json:"is_writer_or_admin"`
	IsAdmin         bool        `json:"is_admin"`
}

func sessionResponse(st session.State) SessionResponse {
	role := st.Role()
	resp := SessionResponse{
		Authenticated:   st.Identity != nil,
		DisplayName:     st.Profile.FullName(),
		Role:            role,
		IsWriterOrAdmin: authz.IsAuthorized(role, models.RoleWriter),
		IsAdmin:         authz.IsAuthorized(role, models.RoleAdmin),
	}
	if st.Identity != nil {
		resp.UID = st.Identity.UID
		resp.Email = st.Identity.Email
	}
	return resp
}

// Register cria a conta e o perfil sem autorização e encerra a sessão:
// o acesso depende da aprovação de um administrador.
// POST /api/auth/registrar
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	client := middleware.IdentityClient(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	id, err := client.CreateAccount(ctx, req.Email, req.Senha)
	switch {
	case errors.Is(err, identity.ErrAccountExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Este e-mail já está em uso."})
		return
	case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.Error().Err(err).Msg("falha no cadastro")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao registrar. Por favor, tente novamente."})
		return
	}

	profile := models.Profile{
		Nome:             strings.TrimSpace(req.Nome),
		Sobrenome:        strings.TrimSpace(req.Sobrenome),
		Email:            id.Email,
		NivelAutorizacao: models.RoleNone,
	}
	if err := h.profiles.Set(ctx, models.UsersCollection, id.UID, profile); err != nil {
		h.log.Error().Err(err).Str("uid", id.UID).Msg("falha ao gravar perfil")
		_ = client.SignOut(ctx)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao registrar. Por favor, tente novamente."})
		return
	}
	if err := client.SignOut(ctx); err != nil {
		h.log.Warn().Err(err).Str("uid", id.UID).Msg("falha ao encerrar sessão após cadastro")
	}
	h.clearCookie(c)

	h.log.Info().Str("uid", id.UID).Msg("cadastro solicitado")
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Sua solicitação de cadastro foi enviada com sucesso! Aguarde a aprovação de um administrador.",
		"redirect": guard.LoginPath,
	})
}

// Login autentica e devolve o token, também gravado em cookie.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	client := middleware.IdentityClient(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	id, err := client.SignIn(ctx, req.Email, req.Senha)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) || errors.Is(err, identity.ErrInvalidEmail) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": identity.ErrInvalidCredentials.Error()})
			return
		}
		respondError(c, h.log, err)
		return
	}
	token, expires := client.Token()
	h.setCookie(c, token, expires)

	st, err := middleware.SessionStore(c).WaitUntil(ctx, func(st session.State) bool {
		return st.Resolved && st.Identity != nil && st.Identity.UID == id.UID
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expires,
		"session":    sessionResponse(st),
	})
}

// Logout revoga o token da requisição.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := middleware.IdentityClient(c).SignOut(ctx); err != nil {
		h.log.Warn().Err(err).Msg("falha ao revogar token")
	}
	h.clearCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Sessão encerrada.", "redirect": guard.LoginPath})
}

// Session devolve a sessão resolvida.
// GET /api/session
func (h *AuthHandler) Session(c *gin.Context) {
	st, err := middleware.ResolvedSession(c)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sessão indisponível"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse(st))
}

func (h *AuthHandler) setCookie(c *gin.Context, token string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", h.secureCookie, true)
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.secureCookie, true)
}
