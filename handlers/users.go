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
	"apoioufu/docstore"
	"apoioufu/guard"
	"apoioufu/middleware"
	"apoioufu/models"
	"apoioufu/roster"
)

// UserStore é o repositório observado pela tabela de usuários.
type UserStore interface {
	roster.Source
	Get(ctx context.Context, collection, id string) (docstore.Record, error)
}

// Refresher avisa as sessões abertas de um usuário que o perfil mudou.
type Refresher interface {
	Refresh(ctx context.Context, uid string) error
}

// UserRow é uma linha da tabela com as ações permitidas ao administrador.
type UserRow struct {
	models.Profile
	CanEdit   bool `json:"can_edit"`
	Protected bool `json:"protegido"`
}

type rosterViewResponse struct {
	Status    roster.ViewStatus `json:"status"`
	Entries   []UserRow         `json:"entries"`
	SortKey   roster.SortKey    `json:"sort_key"`
	Direction roster.Direction  `json:"direction"`
	Filter    string            `json:"filter"`
	Total     int               `json:"total"`
	Error     string            `json:"error,omitempty"`
}

// UsersHandler atende a administração de usuários.
type UsersHandler struct {
	store     UserStore
	refresher Refresher
	seeds     []string
	timeout   time.Duration
	log       zerolog.Logger
	streams   *registry[*roster.Controller]
}

// NewUsersHandler cria o handler de usuários.
func NewUsersHandler(store UserStore, refresher Refresher, seeds []string, timeout time.Duration, log zerolog.Logger) *UsersHandler {
	return &UsersHandler{
		store:     store,
		refresher: refresher,
		seeds:     seeds,
		timeout:   timeout,
		log:       log.With().Str("handler", "users").Logger(),
		streams:   newRegistry[*roster.Controller](),
	}
}

func (h *UsersHandler) rosterView(actor authz.Actor, v roster.View) rosterViewResponse {
	out := rosterViewResponse{
		Status:    v.Status,
		Entries:   make([]UserRow, 0, len(v.Entries)),
		SortKey:   v.SortKey,
		Direction: v.Direction,
		Filter:    v.Filter,
		Total:     v.Total,
		Error:     v.Error,
	}
	for _, p := range v.Entries {
		out.Entries = append(out.Entries, UserRow{
			Profile:   p,
			CanEdit:   authz.CanEditProfile(actor, p, h.seeds) == nil,
			Protected: authz.IsSeedAccount(p.Email, h.seeds),
		})
	}
	return out
}

func (h *UsersHandler) open() (*roster.Controller, error) {
	return roster.New(h.store, roster.WithTimeout(h.timeout), roster.WithLogger(h.log))
}

// List devolve a tabela uma vez, já carregada.
// GET /api/users?ordenar=nome&direcao=asc&filtro=
func (h *UsersHandler) List(c *gin.Context) {
	ctrl, err := h.open()
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer ctrl.Close()

	if s := c.Query("ordenar"); s != "" {
		dir := roster.Direction(c.DefaultQuery("direcao", string(roster.Asc)))
		if err := ctrl.SetSort(roster.SortKey(s), dir); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if f := c.Query("filtro"); f != "" {
		ctrl.SetFilter(f)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	v, err := waitLoaded(ctx, ctrl)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if v.Status == roster.StatusError {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": v.Error})
		return
	}
	c.JSON(http.StatusOK, h.rosterView(middleware.Actor(c), v))
}

func waitLoaded(ctx context.Context, ctrl *roster.Controller) (roster.View, error) {
	ch := make(chan roster.View, 1)
	unsub := ctrl.Subscribe(func(v roster.View) {
		if v.Status == roster.StatusLoading {
			return
		}
		select {
		case ch <- v:
		default:
		}
	})
	defer unsub()
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return roster.View{}, ctx.Err()
	}
}

// Stream mantém a tabela ao vivo. Se o administrador perder o papel ou a
// sessão, o guarda envia "redirect" e o stream termina.
// GET /api/users/stream
func (h *UsersHandler) Stream(c *gin.Context) {
	ctrl, err := h.open()
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	actor := middleware.Actor(c)
	id := h.streams.add(actor.UID, ctrl)
	defer func() {
		h.streams.remove(id)
		ctrl.Close()
	}()

	box := newMailbox()
	box.put(EventStream, gin.H{"id": id})

	g := guard.New(middleware.SessionStore(c), models.RoleAdmin, guard.NavigatorFunc(func(path string) {
		h.log.Info().Str("uid", actor.UID).Str("to", path).Msg("acesso à tabela revogado")
		box.put(EventRedirect, gin.H{"to": path})
	}))
	defer g.Close()

	unsub := ctrl.Subscribe(func(v roster.View) {
		box.put(EventView, h.rosterView(actor, v))
	})
	defer unsub()

	serveSSE(c, "roster", box)
}

type sortRequest struct {
	Campo string `json:"campo" binding:"required"`
}

// Sort repete o clique no cabeçalho da coluna.
// POST /api/users/stream/:id/ordenar
func (h *UsersHandler) Sort(c *gin.Context) {
	ctrl, ok := streamFrom(c, h.streams)
	if !ok {
		return
	}
	var req sortRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	if err := ctrl.ToggleSort(roster.SortKey(req.Campo)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v := ctrl.View()
	c.JSON(http.StatusOK, gin.H{"sort_key": v.SortKey, "direction": v.Direction})
}

type filterRequest struct {
	Texto string `json:"texto" binding:"max=200"`
}

// Filter troca o texto de filtro.
// PUT /api/users/stream/:id/filtro
func (h *UsersHandler) Filter(c *gin.Context) {
	ctrl, ok := streamFrom(c, h.streams)
	if !ok {
		return
	}
	var req filterRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	ctrl.SetFilter(req.Texto)
	c.Status(http.StatusNoContent)
}

// UpdateUserRequest traz só os campos alterados.
type UpdateUserRequest struct {
	Nome             *string      `json:"nome" binding:"omitempty,max=80"`
	Sobrenome        *string      `json:"sobrenome" binding:"omitempty,max=80"`
	NivelAutorizacao *models.Role `json:"nivel_autorizacao" binding:"omitempty,role"`
}

func (r UpdateUserRequest) fields() docstore.Fields {
	f := docstore.Fields{}
	if r.Nome != nil {
		f["nome"] = strings.TrimSpace(*r.Nome)
	}
	if r.Sobrenome != nil {
		f["sobrenome"] = strings.TrimSpace(*r.Sobrenome)
	}
	if r.NivelAutorizacao != nil {
		f["nivel_autorizacao"] = *r.NivelAutorizacao
	}
	return f
}

// Update grava a edição de um perfil. A tabela reflete a mudança quando o
// repositório notificar.
// PATCH /api/users/:id
func (h *UsersHandler) Update(c *gin.Context) {
	var req UpdateUserRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	uid := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	rec, err := h.store.Get(ctx, models.UsersCollection, uid)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Usuário não encontrado."})
			return
		}
		respondError(c, h.log, err)
		return
	}
	var target models.Profile
	if err := rec.Decode(&target); err != nil {
		respondError(c, h.log, err)
		return
	}
	target.ID = uid

	actor := middleware.Actor(c)
	if err := authz.CanEditProfile(actor, target, h.seeds); err != nil {
		respondError(c, h.log, err)
		return
	}

	fields := req.fields()
	if err := roster.UpdateProfile(ctx, h.store, uid, fields); err != nil {
		respondError(c, h.log, err)
		return
	}
	if req.NivelAutorizacao != nil && *req.NivelAutorizacao != target.NivelAutorizacao {
		if err := h.refresher.Refresh(ctx, uid); err != nil {
			h.log.Warn().Err(err).Str("uid", uid).Msg("falha ao avisar sessões do usuário")
		}
		h.log.Info().
			Str("uid", uid).
			Str("de", string(target.NivelAutorizacao)).
			Str("para", string(*req.NivelAutorizacao)).
			Str("por", actor.UID).
			Msg("nível de autorização alterado")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Usuário atualizado com sucesso!", "campos": len(fields)})
}
