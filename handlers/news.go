package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"apoioufu/feed"
	"apoioufu/middleware"
	"apoioufu/models"
	"apoioufu/services"
)

// FeedItem é um cartão do feed, sem o conteúdo completo.
type FeedItem struct {
	ID          string    `json:"id"`
	Titulo      string    `json:"titulo"`
	Resumo      string    `json:"resumo"`
	Autor       string    `json:"autor"`
	Tag         string    `json:"tag"`
	Imagem      string    `json:"imagem,omitempty"`
	Slug        string    `json:"slug"`
	DataCriacao time.Time `json:"dataCriacao"`
}

type feedViewResponse struct {
	Status  feed.ViewStatus `json:"status"`
	First   *FeedItem       `json:"first"`
	Rest    []FeedItem      `json:"rest"`
	Term    string          `json:"term"`
	HasMore bool            `json:"has_more"`
	Loading bool            `json:"loading"`
	Total   int             `json:"total"`
	Error   string          `json:"error,omitempty"`
}

// NewsHandler atende o feed, a página da notícia e o editor.
type NewsHandler struct {
	articles *services.ArticleService
	source   feed.Source
	cdn      string
	pageSize int
	timeout  time.Duration
	log      zerolog.Logger
	feeds    *registry[*feed.Controller]
}

// NewNewsHandler cria o handler de notícias.
func NewNewsHandler(articles *services.ArticleService, source feed.Source, cdn string, pageSize int, timeout time.Duration, log zerolog.Logger) *NewsHandler {
	if pageSize <= 0 {
		pageSize = feed.DefaultPageSize
	}
	return &NewsHandler{
		articles: articles,
		source:   source,
		cdn:      cdn,
		pageSize: pageSize,
		timeout:  timeout,
		log:      log.With().Str("handler", "news").Logger(),
		feeds:    newRegistry[*feed.Controller](),
	}
}

func (h *NewsHandler) item(a models.Article, width int) FeedItem {
	return FeedItem{
		ID:          a.ID,
		Titulo:      a.Titulo,
		Resumo:      a.Resumo,
		Autor:       a.AuthorOrDefault(),
		Tag:         a.TagOrDefault(),
		Imagem:      services.OptimizedImageURL(h.cdn, a.Imagem, width),
		Slug:        a.Slug,
		DataCriacao: a.DataCriacao,
	}
}

func (h *NewsHandler) feedView(v feed.View) feedViewResponse {
	out := feedViewResponse{
		Status:  v.Status,
		Rest:    make([]FeedItem, 0, len(v.Rest)),
		Term:    v.Term,
		HasMore: v.HasMore,
		Loading: v.Loading,
		Total:   v.Total,
		Error:   v.Error,
	}
	if v.First != nil {
		first := h.item(*v.First, services.FeaturedImageWidth)
		out.First = &first
	}
	for _, a := range v.Rest {
		out.Rest = append(out.Rest, h.item(a, services.GridImageWidth))
	}
	return out
}

// List devolve uma página de notícias publicadas.
// GET /api/noticias?cursor=&limit=
func (h *NewsHandler) List(c *gin.Context) {
	after, err := feed.DecodeCursor(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	size := h.pageSize
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 50 {
			size = n
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	page, err := feed.FetchPage(ctx, h.source, after, size)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	items := make([]FeedItem, 0, len(page.Articles))
	for i, a := range page.Articles {
		width := services.GridImageWidth
		if i == 0 && after == nil {
			width = services.FeaturedImageWidth
		}
		items = append(items, h.item(a, width))
	}
	resp := gin.H{"items": items, "has_more": page.HasMore}
	if page.HasMore {
		resp["next_cursor"] = feed.EncodeCursor(page.Next)
	}
	c.JSON(http.StatusOK, resp)
}

// Stream abre um feed ao vivo. O primeiro evento "stream" traz o id usado
// pelas rotas de comando; cada mudança da visão gera um evento "view".
// GET /api/noticias/stream?termo=
func (h *NewsHandler) Stream(c *gin.Context) {
	ctrl := feed.New(h.source,
		feed.WithPageSize(h.pageSize),
		feed.WithTimeout(h.timeout),
		feed.WithLogger(h.log),
	)
	id := h.feeds.add(middleware.Actor(c).UID, ctrl)
	defer func() {
		h.feeds.remove(id)
		ctrl.Close()
	}()

	box := newMailbox()
	box.put(EventStream, gin.H{"id": id})
	if term := c.Query("termo"); term != "" {
		ctrl.SetSearchTerm(term)
	}
	unsub := ctrl.Subscribe(func(v feed.View) {
		box.put(EventView, h.feedView(v))
	})
	defer unsub()
	ctrl.LoadInitial()

	serveSSE(c, "feed", box)
}

// More pede a próxima página do feed ao vivo.
// POST /api/noticias/stream/:id/mais
func (h *NewsHandler) More(c *gin.Context) {
	ctrl, ok := streamFrom(c, h.feeds)
	if !ok {
		return
	}
	started := ctrl.LoadMore()
	c.JSON(http.StatusAccepted, gin.H{"started": started, "has_more": ctrl.HasMore()})
}

type searchRequest struct {
	Termo string `json:"termo" binding:"max=200"`
}

// Search troca o termo de busca do feed ao vivo.
// PUT /api/noticias/stream/:id/busca
func (h *NewsHandler) Search(c *gin.Context) {
	ctrl, ok := streamFrom(c, h.feeds)
	if !ok {
		return
	}
	var req searchRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	ctrl.SetSearchTerm(req.Termo)
	c.Status(http.StatusNoContent)
}

// BySlug devolve a notícia e as relacionadas.
// GET /api/noticia/:slug
func (h *NewsHandler) BySlug(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	a, related, err := h.articles.BySlug(ctx, middleware.Actor(c), c.Param("slug"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	a.Imagem = services.OptimizedImageURL(h.cdn, a.Imagem, services.FeaturedImageWidth)
	items := make([]FeedItem, 0, len(related))
	for _, r := range related {
		items = append(items, h.item(r, services.GridImageWidth))
	}
	c.JSON(http.StatusOK, gin.H{"noticia": a, "relacionadas": items})
}

// Create publica a notícia do usuário logado.
// POST /api/noticias
func (h *NewsHandler) Create(c *gin.Context) {
	var in services.ArticleInput
	if !middleware.BindJSON(c, &in) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	a, err := h.articles.Create(ctx, middleware.Actor(c), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Notícia publicada com sucesso!", "noticia": a})
}

// Get carrega a notícia no formulário de edição.
// GET /api/noticias/:id
func (h *NewsHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	a, err := h.articles.Get(ctx, middleware.Actor(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Update grava a edição.
// PUT /api/noticias/:id
func (h *NewsHandler) Update(c *gin.Context) {
	var in services.ArticleInput
	if !middleware.BindJSON(c, &in) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	a, err := h.articles.Update(ctx, middleware.Actor(c), c.Param("id"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notícia atualizada com sucesso!", "noticia": a})
}

// Delete remove a notícia.
// DELETE /api/noticias/:id
func (h *NewsHandler) Delete(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.articles.Delete(ctx, middleware.Actor(c), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notícia excluída com sucesso!"})
}

// Manage lista a tabela de gerenciamento.
// GET /api/gerenciar-noticias?ordenar=titulo&desc=true
func (h *NewsHandler) Manage(c *gin.Context) {
	desc, _ := strconv.ParseBool(c.DefaultQuery("desc", "true"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	rows, err := h.articles.Manage(ctx, middleware.Actor(c), c.DefaultQuery("ordenar", "dataCriacao"), desc)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"noticias": rows, "total": len(rows)})
}
