package roster

import (
	"context"
	"errors"
	"testing"

	"apoioufu/docstore"
	"apoioufu/models"
)

// manualSource grava no repositório em memória mas só notifica quando o
// teste chama notify.
type manualSource struct {
	db    *docstore.Memory
	fn    func(docstore.Snapshot)
	onErr func(error)
}

func (m *manualSource) Subscribe(coll string, fn func(docstore.Snapshot), onErr func(error)) (func(), error) {
	m.fn, m.onErr = fn, onErr
	return func() { m.fn = nil }, nil
}

func (m *manualSource) Update(ctx context.Context, coll, id string, f docstore.Fields) error {
	return m.db.Update(ctx, coll, id, f)
}

func (m *manualSource) notify(t *testing.T) {
	t.Helper()
	recs, err := m.db.Query(context.Background(), models.UsersCollection, docstore.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if m.fn != nil {
		m.fn(docstore.Snapshot{Records: recs})
	}
}

func newRoster(t *testing.T, profiles ...models.Profile) (*Controller, *manualSource) {
	t.Helper()
	src := &manualSource{db: docstore.NewMemory()}
	for _, p := range profiles {
		if err := src.db.Set(context.Background(), models.UsersCollection, p.ID, p); err != nil {
			t.Fatal(err)
		}
	}
	c, err := New(src)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	src.notify(t)
	return c, src
}

func ids(v View) []string {
	out := make([]string, len(v.Entries))
	for i, p := range v.Entries {
		out[i] = p.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var people = []models.Profile{
	{ID: "u1", Nome: "Ana", Sobrenome: "Souza", Email: "ana@ufu.br", NivelAutorizacao: models.RoleAdmin},
	{ID: "u2", Nome: "Bruno", Sobrenome: "Alves", Email: "bruno@ufu.br", NivelAutorizacao: models.RoleNone},
	{ID: "u3", Nome: "Carla", Sobrenome: "Melo", Email: "carla@ufu.br", NivelAutorizacao: models.RoleWriter},
	{ID: "u4", Nome: "Ana", Sobrenome: "Costa", Email: "ana.c@ufu.br", NivelAutorizacao: models.RoleNone},
}

func TestController_LoadingUntilFirstSnapshot(t *testing.T) {
	src := &manualSource{db: docstore.NewMemory()}
	c, err := New(src)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.View().Status != StatusLoading {
		t.Errorf("status = %s, want loading", c.View().Status)
	}
	src.notify(t)
	if v := c.View(); v.Status != StatusReady || v.Total != 0 {
		t.Errorf("view = %+v", v)
	}
}

func TestController_SortByRoleUsesPrivilegeOrder(t *testing.T) {
	c, _ := newRoster(t, people...)
	if err := c.SetSort(SortRole, Asc); err != nil {
		t.Fatal(err)
	}
	want := []string{"u2", "u4", "u3", "u1"}
	if got := ids(c.View()); !equal(got, want) {
		t.Errorf("role asc = %v, want %v", got, want)
	}
	_ = c.SetSort(SortRole, Desc)
	if got := ids(c.View()); got[0] != "u1" || got[1] != "u3" {
		t.Errorf("role desc = %v", got)
	}
}

func TestController_ToggleSort(t *testing.T) {
	c, _ := newRoster(t, people...)
	if got := ids(c.View()); !equal(got, []string{"u1", "u4", "u2", "u3"}) {
		t.Fatalf("default nome asc = %v", got)
	}
	_ = c.ToggleSort(SortNome)
	if v := c.View(); v.Direction != Desc || v.Entries[0].ID != "u3" {
		t.Errorf("toggle same key: %v %v", v.Direction, ids(v))
	}
	_ = c.ToggleSort(SortEmail)
	if v := c.View(); v.Direction != Asc || !equal(ids(v), []string{"u4", "u1", "u2", "u3"}) {
		t.Errorf("toggle new key: %v %v", v.Direction, ids(v))
	}
	if err := c.ToggleSort("senha"); !errors.Is(err, ErrUnknownSortKey) {
		t.Errorf("unknown key err = %v", err)
	}
}

func TestController_UpdateVisibleOnlyAfterNotification(t *testing.T) {
	ctx := context.Background()
	c, src := newRoster(t, people...)

	if err := c.UpdateProfile(ctx, "u2", docstore.Fields{"nivel_autorizacao": models.RoleAdmin}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p, _ := c.Profile("u2"); p.NivelAutorizacao != models.RoleNone {
		t.Fatalf("snapshot mutated before notification: %s", p.NivelAutorizacao)
	}

	src.notify(t)
	p, ok := c.Profile("u2")
	if !ok || p.NivelAutorizacao != models.RoleAdmin {
		t.Errorf("after notification role = %s", p.NivelAutorizacao)
	}
	if p.Nome != "Bruno" || p.Email != "bruno@ufu.br" {
		t.Errorf("partial update touched other fields: %+v", p)
	}

	if err := c.UpdateProfile(ctx, "ghost", docstore.Fields{"nome": "x"}); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("update missing err = %v", err)
	}
}

func TestController_SnapshotReplacedWholesale(t *testing.T) {
	ctx := context.Background()
	c, src := newRoster(t, people...)
	_ = src.db.Delete(ctx, models.UsersCollection, "u3")
	_ = src.db.Set(ctx, models.UsersCollection, "u5", models.Profile{Nome: "Davi"})
	src.notify(t)

	if _, ok := c.Profile("u3"); ok {
		t.Error("deleted profile still present")
	}
	if v := c.View(); v.Total != 4 {
		t.Errorf("total = %d, want 4", v.Total)
	}
}

func TestController_Filter(t *testing.T) {
	c, _ := newRoster(t, people...)
	c.SetFilter("ANA")
	if got := ids(c.View()); !equal(got, []string{"u1", "u4"}) {
		t.Errorf("filter ANA = %v", got)
	}
	c.SetFilter("alves")
	if got := ids(c.View()); !equal(got, []string{"u2"}) {
		t.Errorf("filter alves = %v", got)
	}
	c.SetFilter("")
	if v := c.View(); len(v.Entries) != 4 || v.Total != 4 {
		t.Errorf("cleared filter = %v", ids(v))
	}
}

func TestController_SubscriptionError(t *testing.T) {
	c, src := newRoster(t, people...)
	src.onErr(errors.New("permissão negada"))
	if v := c.View(); v.Status != StatusError || v.Error == "" {
		t.Errorf("view = %+v", v)
	}
}

func TestController_CloseStopsUpdates(t *testing.T) {
	ctx := context.Background()
	c, src := newRoster(t, people...)
	fn := src.fn
	c.Close()
	_ = src.db.Delete(ctx, models.UsersCollection, "u1")
	recs, _ := src.db.Query(ctx, models.UsersCollection, docstore.Query{})
	fn(docstore.Snapshot{Records: recs})
	if _, ok := c.Profile("u1"); !ok {
		t.Error("snapshot replaced after Close")
	}
}
