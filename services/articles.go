package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"apoioufu/authz"
	"apoioufu/docstore"
	"apoioufu/models"
)

// RelatedCount é quantas notícias relacionadas a página exibe.
const RelatedCount = 3

// ErrArticleNotFound cobre notícia inexistente e rascunho que o ator não pode ver.
var ErrArticleNotFound = errors.New("notícia não encontrada")

// ArticleInput é o formulário de escrita e edição.
type ArticleInput struct {
	Titulo   string               `json:"titulo" binding:"required,max=200"`
	Resumo   string               `json:"resumo" binding:"required,max=600"`
	Conteudo string               `json:"conteudo" binding:"required"`
	Tag      string               `json:"tag" binding:"max=60"`
	Imagem   string               `json:"imagem" binding:"omitempty,validurl"`
	Status   models.ArticleStatus `json:"status" binding:"omitempty,articlestatus"`
}

// ManagedArticle é uma linha da tabela de gerenciamento.
type ManagedArticle struct {
	models.Article
	CanView   bool `json:"can_view"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

// ArticleService implementa escrita, edição, remoção e leitura de notícias.
type ArticleService struct {
	store  docstore.Store
	policy *bluemonday.Policy
	log    zerolog.Logger
	now    func() time.Time
}

// NewArticleService cria o serviço sobre o repositório.
func NewArticleService(store docstore.Store, logger zerolog.Logger) *ArticleService {
	return &ArticleService{
		store:  store,
		policy: bluemonday.UGCPolicy(),
		log:    logger.With().Str("component", "articles").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create publica uma notícia do ator. Exige escritor.
func (s *ArticleService) Create(ctx context.Context, actor authz.Actor, in ArticleInput) (*models.Article, error) {
	if !authz.IsAuthorized(actor.Role, models.RoleWriter) {
		return nil, authz.ErrForbidden
	}
	slug, err := s.uniqueSlug(ctx, in.Titulo, "")
	if err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = models.StatusPublished
	}
	a := models.Article{
		Titulo:      strings.TrimSpace(in.Titulo),
		Resumo:      strings.TrimSpace(in.Resumo),
		Conteudo:    s.policy.Sanitize(in.Conteudo),
		Autor:       actor.Name,
		AutorID:     actor.UID,
		Tag:         strings.TrimSpace(in.Tag),
		Imagem:      strings.TrimSpace(in.Imagem),
		Slug:        slug,
		Status:      status,
		DataCriacao: s.now(),
	}
	id, err := s.store.Add(ctx, models.ArticlesCollection, a)
	if err != nil {
		return nil, fmt.Errorf("criar notícia: %w", err)
	}
	a.ID = id
	s.log.Info().Str("id", id).Str("autor", actor.UID).Str("status", string(status)).Msg("notícia criada")
	return &a, nil
}

// Get carrega a notícia para edição. Exige autor ou admin.
func (s *ArticleService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Article, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanEditArticle(actor, a) {
		return nil, authz.ErrForbidden
	}
	return a, nil
}

// Update grava o formulário e o status escolhido. Exige autor ou admin.
// O slug não muda, para não quebrar links publicados.
func (s *ArticleService) Update(ctx context.Context, actor authz.Actor, id string, in ArticleInput) (*models.Article, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanEditArticle(actor, a) {
		return nil, authz.ErrForbidden
	}
	now := s.now()
	status := in.Status
	if status == "" {
		status = a.Status
	}
	fields := docstore.Fields{
		"titulo":          strings.TrimSpace(in.Titulo),
		"resumo":          strings.TrimSpace(in.Resumo),
		"conteudo":        s.policy.Sanitize(in.Conteudo),
		"tag":             strings.TrimSpace(in.Tag),
		"imagem":          strings.TrimSpace(in.Imagem),
		"status":          status,
		"dataAtualizacao": now,
	}
	if err := s.store.Update(ctx, models.ArticlesCollection, id, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("atualizar notícia: %w", err)
	}
	a.Titulo = fields["titulo"].(string)
	a.Resumo = fields["resumo"].(string)
	a.Conteudo = fields["conteudo"].(string)
	a.Tag = fields["tag"].(string)
	a.Imagem = fields["imagem"].(string)
	a.Status = status
	a.DataAtualizacao = &now
	return a, nil
}

// Delete remove a notícia. Somente admin.
func (s *ArticleService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	if !authz.CanDeleteArticle(actor) {
		return authz.ErrForbidden
	}
	if err := s.store.Delete(ctx, models.ArticlesCollection, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrArticleNotFound
		}
		return fmt.Errorf("remover notícia: %w", err)
	}
	s.log.Info().Str("id", id).Str("por", actor.UID).Msg("notícia removida")
	return nil
}

// BySlug devolve a notícia visível ao ator e até três outras publicadas,
// escolhidas ao acaso.
func (s *ArticleService) BySlug(ctx context.Context, actor authz.Actor, slug string) (*models.Article, []models.Article, error) {
	recs, err := s.store.Query(ctx, models.ArticlesCollection, docstore.Query{
		Where: []docstore.Filter{docstore.Where("slug", slug)},
		Limit: 1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("buscar notícia: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil, ErrArticleNotFound
	}
	var a models.Article
	if err := recs[0].Decode(&a); err != nil {
		return nil, nil, err
	}
	if !authz.CanViewArticle(actor, &a) {
		return nil, nil, ErrArticleNotFound
	}

	published, err := s.query(ctx, docstore.Query{
		Where: []docstore.Filter{docstore.Where("status", models.StatusPublished)},
	})
	if err != nil {
		s.log.Warn().Err(err).Str("slug", slug).Msg("falha ao buscar relacionadas")
		return &a, []models.Article{}, nil
	}
	related := make([]models.Article, 0, len(published))
	for _, p := range published {
		if p.ID != a.ID {
			related = append(related, p)
		}
	}
	rand.Shuffle(len(related), func(i, j int) { related[i], related[j] = related[j], related[i] })
	if len(related) > RelatedCount {
		related = related[:RelatedCount]
	}
	return &a, related, nil
}

// Manage lista todas as notícias com as ações permitidas ao ator.
// Exige escritor. sortKey aceita titulo, tag, status ou dataCriacao.
func (s *ArticleService) Manage(ctx context.Context, actor authz.Actor, sortKey string, desc bool) ([]ManagedArticle, error) {
	if !authz.IsAuthorized(actor.Role, models.RoleWriter) {
		return nil, authz.ErrForbidden
	}
	all, err := s.query(ctx, docstore.Query{OrderBy: "dataCriacao", Desc: true})
	if err != nil {
		return nil, err
	}
	SortArticles(all, sortKey, desc)
	rows := make([]ManagedArticle, len(all))
	for i := range all {
		rows[i] = ManagedArticle{
			Article:   all[i],
			CanView:   authz.CanViewArticle(actor, &all[i]),
			CanEdit:   authz.CanEditArticle(actor, &all[i]),
			CanDelete: authz.CanDeleteArticle(actor),
		}
	}
	return rows, nil
}

// SortArticles ordena a tabela de gerenciamento. Chave desconhecida ordena
// por dataCriacao.
func SortArticles(items []models.Article, key string, desc bool) {
	less := func(a, b models.Article) int {
		switch key {
		case "titulo":
			return strings.Compare(a.Titulo, b.Titulo)
		case "tag":
			return strings.Compare(a.Tag, b.Tag)
		case "status":
			return strings.Compare(string(a.Status), string(b.Status))
		default:
			return a.DataCriacao.Compare(b.DataCriacao)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := less(items[i], items[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func (s *ArticleService) load(ctx context.Context, id string) (*models.Article, error) {
	rec, err := s.store.Get(ctx, models.ArticlesCollection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("carregar notícia: %w", err)
	}
	var a models.Article
	if err := rec.Decode(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *ArticleService) query(ctx context.Context, q docstore.Query) ([]models.Article, error) {
	recs, err := s.store.Query(ctx, models.ArticlesCollection, q)
	if err != nil {
		return nil, fmt.Errorf("consultar notícias: %w", err)
	}
	out := make([]models.Article, 0, len(recs))
	for _, rec := range recs {
		var a models.Article
		if err := rec.Decode(&a); err != nil {
			s.log.Warn().Err(err).Str("id", rec.ID).Msg("notícia ignorada")
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *ArticleService) uniqueSlug(ctx context.Context, titulo, excludeID string) (string, error) {
	base := Slugify(titulo)
	candidate := base
	for n := 2; n <= 100; n++ {
		recs, err := s.store.Query(ctx, models.ArticlesCollection, docstore.Query{
			Where: []docstore.Filter{docstore.Where("slug", candidate)},
			Limit: 1,
		})
		if err != nil {
			return "", fmt.Errorf("verificar slug: %w", err)
		}
		if len(recs) == 0 || recs[0].ID == excludeID {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// Slugify gera o slug a partir do título: sem acentos, minúsculo, com
// hífens entre palavras.
func Slugify(titulo string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, titulo)
	if err != nil {
		plain = titulo
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "noticia"
	}
	return slug
}
