package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"apoioufu/docstore"
	"apoioufu/identity"
	"apoioufu/models"
	"apoioufu/observable"
)

// gatedProfiles segura cada Get até o teste liberar o uid.
type gatedProfiles struct {
	inner docstore.Store
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls chan string
}

func newGatedProfiles(inner docstore.Store) *gatedProfiles {
	return &gatedProfiles{inner: inner, gates: make(map[string]chan struct{}), calls: make(chan string, 16)}
}

func (g *gatedProfiles) gate(uid string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[uid]
	if !ok {
		ch = make(chan struct{})
		g.gates[uid] = ch
	}
	return ch
}

func (g *gatedProfiles) Get(ctx context.Context, collection, id string) (docstore.Record, error) {
	g.calls <- id
	select {
	case <-g.gate(id):
	case <-ctx.Done():
		return docstore.Record{}, ctx.Err()
	}
	return g.inner.Get(ctx, collection, id)
}

type failingProfiles struct{}

func (failingProfiles) Get(context.Context, string, string) (docstore.Record, error) {
	return docstore.Record{}, errors.New("rede indisponível")
}

func waitState(t *testing.T, s *Store, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := s.Get(); cond(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached, state = %+v", s.Get())
	return State{}
}

func TestStore_SignedOutResolvesImmediately(t *testing.T) {
	src := observable.New[*identity.Identity](nil)
	s := New(src, docstore.NewMemory())
	defer s.Close()

	st := s.Get()
	if !st.Resolved || st.Identity != nil || st.Profile != nil {
		t.Errorf("signed-out start: state = %+v, want resolved with nothing", st)
	}
}

func TestStore_IdentityWithoutProfile(t *testing.T) {
	src := observable.New[*identity.Identity](nil)
	s := New(src, docstore.NewMemory())
	defer s.Close()

	src.Set(&identity.Identity{UID: "user123"})
	st := waitState(t, s, func(st State) bool { return st.Identity != nil })
	if st.Identity.UID != "user123" || st.Profile != nil || !st.Resolved {
		t.Errorf("state = %+v, want user123 with nil profile, resolved", st)
	}
	if st.Role() != "" {
		t.Errorf("Role() = %q, want empty", st.Role())
	}
}

func TestStore_LoadsProfile(t *testing.T) {
	ctx := context.Background()
	db := docstore.NewMemory()
	_ = db.Set(ctx, models.UsersCollection, "u1", models.Profile{Nome: "Ana", Sobrenome: "Lima", NivelAutorizacao: models.RoleWriter})

	src := observable.New[*identity.Identity](&identity.Identity{UID: "u1"})
	s := New(src, db)
	defer s.Close()

	st := waitState(t, s, func(st State) bool { return st.Resolved })
	if st.Profile == nil || st.Profile.NivelAutorizacao != models.RoleWriter {
		t.Fatalf("profile = %+v", st.Profile)
	}
	if a := st.Actor(); a.UID != "u1" || a.Name != "Ana Lima" || a.Role != models.RoleWriter {
		t.Errorf("Actor() = %+v", a)
	}
}

func TestStore_FetchFailureLeavesNilProfile(t *testing.T) {
	src := observable.New[*identity.Identity](&identity.Identity{UID: "u1"})
	s := New(src, failingProfiles{})
	defer s.Close()

	st := waitState(t, s, func(st State) bool { return st.Resolved })
	if st.Identity == nil || st.Profile != nil {
		t.Errorf("state = %+v, want identity with nil profile", st)
	}
}

func TestStore_DiscardsStaleFetch(t *testing.T) {
	ctx := context.Background()
	db := docstore.NewMemory()
	_ = db.Set(ctx, models.UsersCollection, "old", models.Profile{Nome: "Velho", NivelAutorizacao: models.RoleAdmin})
	_ = db.Set(ctx, models.UsersCollection, "new", models.Profile{Nome: "Novo", NivelAutorizacao: models.RoleNone})
	gp := newGatedProfiles(db)

	src := observable.New[*identity.Identity](&identity.Identity{UID: "old"})
	s := New(src, gp)
	defer s.Close()
	<-gp.calls

	src.Set(&identity.Identity{UID: "new"})
	<-gp.calls
	close(gp.gate("new"))
	waitState(t, s, func(st State) bool { return st.Identity != nil && st.Identity.UID == "new" })

	close(gp.gate("old"))
	time.Sleep(50 * time.Millisecond)
	st := s.Get()
	if st.Identity.UID != "new" || st.Profile == nil || st.Profile.Nome != "Novo" {
		t.Errorf("stale fetch applied: state = %+v, profile = %+v", st, st.Profile)
	}
}

func TestStore_SignOutClearsProfile(t *testing.T) {
	ctx := context.Background()
	db := docstore.NewMemory()
	_ = db.Set(ctx, models.UsersCollection, "u1", models.Profile{Nome: "Ana", NivelAutorizacao: models.RoleAdmin})
	src := observable.New[*identity.Identity](&identity.Identity{UID: "u1"})
	s := New(src, db)
	defer s.Close()
	waitState(t, s, func(st State) bool { return st.Profile != nil })

	src.Set(nil)
	st := s.Get()
	if st.Identity != nil || st.Profile != nil || !st.Resolved {
		t.Errorf("after sign-out state = %+v", st)
	}
}

func TestStore_CloseDiscardsLateResults(t *testing.T) {
	db := docstore.NewMemory()
	gp := newGatedProfiles(db)
	src := observable.New[*identity.Identity](&identity.Identity{UID: "u1"})
	s := New(src, gp)
	<-gp.calls

	s.Close()
	close(gp.gate("u1"))
	time.Sleep(30 * time.Millisecond)
	if st := s.Get(); st.Resolved {
		t.Errorf("state changed after Close: %+v", st)
	}
	if src.Subscribers() != 0 {
		t.Error("identity subscription still active after Close")
	}
}

func TestStore_WaitResolved(t *testing.T) {
	db := docstore.NewMemory()
	gp := newGatedProfiles(db)
	src := observable.New[*identity.Identity](&identity.Identity{UID: "u1"})
	s := New(src, gp)
	defer s.Close()
	<-gp.calls

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.WaitResolved(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitResolved before fetch: err = %v", err)
	}

	close(gp.gate("u1"))
	st, err := s.WaitResolved(context.Background())
	if err != nil || !st.Resolved || st.Identity.UID != "u1" {
		t.Errorf("WaitResolved = %+v, %v", st, err)
	}
}
