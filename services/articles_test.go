package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"apoioufu/authz"
	"apoioufu/docstore"
	"apoioufu/models"
)

var (
	writer = authz.Actor{UID: "w1", Role: models.RoleWriter, Name: "Ana Lima"}
	other  = authz.Actor{UID: "w2", Role: models.RoleWriter, Name: "Bruno"}
	admin  = authz.Actor{UID: "adm", Role: models.RoleAdmin, Name: "Admin"}
	reader = authz.Actor{UID: "r1", Role: models.RoleNone}
)

func newArticleService(t *testing.T) (*ArticleService, docstore.Store) {
	t.Helper()
	db := docstore.NewMemory()
	return NewArticleService(db, zerolog.Nop()), db
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Inscrições abertas para o Vestibular 2025!": "inscricoes-abertas-para-o-vestibular-2025",
		"  Ação   & Reação  ":                        "acao-reacao",
		"¿¡!":                                        "noticia",
		"Coração do Cerrado":                         "coracao-do-cerrado",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArticleService_Create(t *testing.T) {
	ctx := context.Background()
	svc, _ := newArticleService(t)

	in := ArticleInput{
		Titulo:   "Greve na UFU",
		Resumo:   "Resumo",
		Conteudo: `<p>Texto</p><script>alert(1)</script>`,
		Tag:      "Campus",
	}
	a, err := svc.Create(ctx, writer, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" || a.Slug != "greve-na-ufu" || a.Status != models.StatusPublished {
		t.Errorf("article = %+v", a)
	}
	if a.Autor != "Ana Lima" || a.AutorID != "w1" || a.DataCriacao.IsZero() {
		t.Errorf("author fields = %q %q %v", a.Autor, a.AutorID, a.DataCriacao)
	}
	if strings.Contains(a.Conteudo, "script") || !strings.Contains(a.Conteudo, "<p>Texto</p>") {
		t.Errorf("conteudo not sanitized: %q", a.Conteudo)
	}

	b, err := svc.Create(ctx, other, in)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := svc.Create(ctx, other, in)
	if b.Slug != "greve-na-ufu-2" || c.Slug != "greve-na-ufu-3" {
		t.Errorf("slugs = %q, %q", b.Slug, c.Slug)
	}

	if _, err := svc.Create(ctx, reader, in); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("reader create err = %v", err)
	}
	if _, err := svc.Create(ctx, authz.Actor{UID: "x"}, in); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("no-profile create err = %v", err)
	}
}

func TestArticleService_UpdatePermissions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newArticleService(t)
	a, _ := svc.Create(ctx, writer, ArticleInput{Titulo: "Original", Resumo: "r", Conteudo: "c"})

	edit := ArticleInput{Titulo: "Editada", Resumo: "r2", Conteudo: "c2", Status: models.StatusDraft}
	if _, err := svc.Update(ctx, other, a.ID, edit); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("other writer update err = %v", err)
	}
	got, err := svc.Update(ctx, writer, a.ID, edit)
	if err != nil {
		t.Fatalf("author update: %v", err)
	}
	if got.Titulo != "Editada" || got.Status != models.StatusDraft || got.DataAtualizacao == nil {
		t.Errorf("updated = %+v", got)
	}
	if got.Slug != a.Slug {
		t.Errorf("slug changed to %q", got.Slug)
	}

	stored, err := svc.Get(ctx, admin, a.ID)
	if err != nil {
		t.Fatalf("admin Get: %v", err)
	}
	if stored.Titulo != "Editada" || stored.Autor != "Ana Lima" {
		t.Errorf("stored = %+v", stored)
	}
	if _, err := svc.Update(ctx, admin, "missing", edit); !errors.Is(err, ErrArticleNotFound) {
		t.Errorf("update missing err = %v", err)
	}
}

func TestArticleService_DeleteAdminOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newArticleService(t)
	a, _ := svc.Create(ctx, writer, ArticleInput{Titulo: "x", Resumo: "r", Conteudo: "c"})

	if err := svc.Delete(ctx, writer, a.ID); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("author delete err = %v", err)
	}
	if err := svc.Delete(ctx, admin, a.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := svc.Delete(ctx, admin, a.ID); !errors.Is(err, ErrArticleNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestArticleService_BySlugVisibilityAndRelated(t *testing.T) {
	ctx := context.Background()
	svc, _ := newArticleService(t)
	draft, _ := svc.Create(ctx, writer, ArticleInput{Titulo: "Rascunho", Resumo: "r", Conteudo: "c", Status: models.StatusDraft})
	for _, title := range []string{"Um", "Dois", "Três", "Quatro", "Cinco"} {
		if _, err := svc.Create(ctx, other, ArticleInput{Titulo: title, Resumo: "r", Conteudo: "c"}); err != nil {
			t.Fatal(err)
		}
	}

	if _, _, err := svc.BySlug(ctx, authz.Actor{}, draft.Slug); !errors.Is(err, ErrArticleNotFound) {
		t.Errorf("anonymous draft err = %v", err)
	}
	if _, _, err := svc.BySlug(ctx, other, draft.Slug); !errors.Is(err, ErrArticleNotFound) {
		t.Errorf("other writer draft err = %v", err)
	}
	if a, _, err := svc.BySlug(ctx, writer, draft.Slug); err != nil || a.ID != draft.ID {
		t.Errorf("author draft = %v, %v", a, err)
	}

	a, related, err := svc.BySlug(ctx, authz.Actor{}, "dois")
	if err != nil {
		t.Fatalf("BySlug: %v", err)
	}
	if len(related) != RelatedCount {
		t.Fatalf("related = %d", len(related))
	}
	for _, r := range related {
		if r.ID == a.ID || r.Status != models.StatusPublished {
			t.Errorf("bad related article %+v", r)
		}
	}
	if _, _, err := svc.BySlug(ctx, admin, "nada"); !errors.Is(err, ErrArticleNotFound) {
		t.Errorf("missing slug err = %v", err)
	}
}

func TestArticleService_Manage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newArticleService(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	svc.now = func() time.Time { i++; return base.Add(time.Duration(i) * time.Hour) }

	mine, _ := svc.Create(ctx, writer, ArticleInput{Titulo: "Beta", Resumo: "r", Conteudo: "c", Tag: "b"})
	theirs, _ := svc.Create(ctx, other, ArticleInput{Titulo: "Alfa", Resumo: "r", Conteudo: "c", Tag: "a", Status: models.StatusDraft})

	rows, err := svc.Manage(ctx, writer, "dataCriacao", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].ID != theirs.ID {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].CanView || rows[0].CanEdit || rows[0].CanDelete {
		t.Errorf("writer flags on other's draft = %+v", rows[0])
	}
	if !rows[1].CanView || !rows[1].CanEdit || rows[1].CanDelete {
		t.Errorf("writer flags on own article = %+v", rows[1])
	}

	rows, _ = svc.Manage(ctx, admin, "titulo", false)
	if rows[0].ID != theirs.ID || rows[1].ID != mine.ID || !rows[0].CanDelete || !rows[0].CanView {
		t.Errorf("admin titulo asc = %+v", rows)
	}
	if _, err := svc.Manage(ctx, reader, "", false); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("reader manage err = %v", err)
	}
}

func TestOptimizedImageURL(t *testing.T) {
	cdn := "https://res.cloudinary.com/demo/image/fetch"
	tests := []struct {
		url   string
		width int
		want  string
	}{
		{"https://img.ufu.br/a.jpg", 600, cdn + "/c_scale,w_600,f_auto,q_auto/https://img.ufu.br/a.jpg"},
		{cdn + "/c_scale,w_600,f_auto,q_auto/https://img.ufu.br/a.jpg", 1200, cdn + "/c_scale,w_1200,f_auto,q_auto/https://img.ufu.br/a.jpg"},
		{cdn + "/https://img.ufu.br/b.png", 600, cdn + "/c_scale,w_600,f_auto,q_auto/https://img.ufu.br/b.png"},
		{"", 600, ""},
	}
	for _, tt := range tests {
		if got := OptimizedImageURL(cdn, tt.url, tt.width); got != tt.want {
			t.Errorf("OptimizedImageURL(%q, %d) = %q, want %q", tt.url, tt.width, got, tt.want)
		}
	}
}

func TestObjectName(t *testing.T) {
	if got := objectName("abc123", "Foto.JPG"); got != "imagens/abc123.jpg" {
		t.Errorf("objectName = %q", got)
	}
	if h, _ := fileHash(strings.NewReader("x")); h != "9dd4e461268c8034f5c8564e155c67a6" {
		t.Errorf("fileHash = %q", h)
	}
}
