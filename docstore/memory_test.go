package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"apoioufu/models"
)

func seedArticles(t *testing.T, s *Memory, n int) time.Time {
	t.Helper()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		a := models.Article{
			Titulo:      "Notícia",
			Slug:        "n",
			Status:      models.StatusPublished,
			DataCriacao: base.Add(time.Duration(i) * time.Hour),
		}
		if i%3 == 0 {
			a.Status = models.StatusDraft
		}
		if err := s.Set(context.Background(), "noticias", string(rune('a'+i)), a); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	return base
}

func TestMemory_GetSetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	p := models.Profile{Nome: "Ana", Email: "ana@ufu.br", NivelAutorizacao: models.RoleNone}
	if err := s.Set(ctx, "users", "u1", p); err != nil {
		t.Fatalf("Set: %v", err)
	}

	rec, err := s.Get(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var got models.Profile
	if err := rec.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != "u1" || got.Nome != "Ana" {
		t.Errorf("got %+v", got)
	}

	if err := s.Update(ctx, "users", "u1", Fields{"nivel_autorizacao": models.RoleWriter}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rec, _ = s.Get(ctx, "users", "u1")
	_ = rec.Decode(&got)
	if got.NivelAutorizacao != models.RoleWriter || got.Nome != "Ana" {
		t.Errorf("after update got %+v", got)
	}

	if err := s.Update(ctx, "users", "missing", Fields{"nome": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "users", "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "users", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "users", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete twice: err = %v, want ErrNotFound", err)
	}
}

func TestMemory_AddAssignsID(t *testing.T) {
	s := NewMemory()
	id, err := s.Add(context.Background(), "noticias", models.Article{Titulo: "x"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Fatal("empty id")
	}
	rec, err := s.Get(context.Background(), "noticias", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var a models.Article
	_ = rec.Decode(&a)
	if a.ID != id {
		t.Errorf("decoded id = %q, want %q", a.ID, id)
	}
}

func TestMemory_QueryOrderFilterCursor(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	seedArticles(t, s, 10) // a..j; a,d,g,j são rascunhos

	q := Query{
		Where:   []Filter{Where("status", models.StatusPublished)},
		OrderBy: "dataCriacao",
		Desc:    true,
		Limit:   4,
	}
	page1, err := s.Query(ctx, "noticias", q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	wantIDs := []string{"i", "h", "f", "e"}
	assertIDs(t, page1, wantIDs)

	q.After = CursorAt(page1[len(page1)-1], "dataCriacao")
	page2, err := s.Query(ctx, "noticias", q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	assertIDs(t, page2, []string{"c", "b"})
}

func TestMemory_CursorTieBreaksByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	same := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"x1", "x2", "x3"} {
		_ = s.Set(ctx, "noticias", id, models.Article{DataCriacao: same, Status: models.StatusPublished})
	}
	q := Query{OrderBy: "dataCriacao", Desc: true, Limit: 2}
	p1, _ := s.Query(ctx, "noticias", q)
	assertIDs(t, p1, []string{"x3", "x2"})
	q.After = CursorAt(p1[1], "dataCriacao")
	p2, _ := s.Query(ctx, "noticias", q)
	assertIDs(t, p2, []string{"x1"})
}

func TestMemory_SubscribeDeliversFullSnapshots(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_ = s.Set(ctx, "users", "u1", models.Profile{Nome: "Ana"})

	snaps := make(chan Snapshot, 10)
	cancel, err := s.Subscribe("users", func(snap Snapshot) { snaps <- snap }, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	first := waitSnapshot(t, snaps)
	if len(first.Records) != 1 {
		t.Fatalf("initial snapshot has %d records", len(first.Records))
	}

	_ = s.Set(ctx, "users", "u2", models.Profile{Nome: "Bia"})
	for {
		snap := waitSnapshot(t, snaps)
		if len(snap.Records) == 2 {
			break
		}
	}

	cancel()
	_ = s.Set(ctx, "users", "u3", models.Profile{Nome: "Caio"})
	select {
	case snap := <-snaps:
		if len(snap.Records) == 3 {
			t.Error("snapshot delivered after cancel")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func waitSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
	return Snapshot{}
}

func assertIDs(t *testing.T, recs []Record, want []string) {
	t.Helper()
	if len(recs) != len(want) {
		ids := make([]string, len(recs))
		for i, r := range recs {
			ids[i] = r.ID
		}
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if recs[i].ID != want[i] {
			t.Fatalf("ids[%d] = %q, want %q", i, recs[i].ID, want[i])
		}
	}
}

func TestCompareValues(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	tests := []struct {
		a, b any
		want int
	}{
		{"a", "b", -1},
		{int32(2), int64(2), 0},
		{1.5, int64(1), 1},
		{early, late, -1},
		{nil, "x", -1},
		{models.RoleAdmin, "admin", 0},
	}
	for _, tt := range tests {
		if got := compareValues(tt.a, tt.b); got != tt.want {
			t.Errorf("compareValues(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
