package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"

	"apoioufu/docstore"
)

var fastHash = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p := NewProvider(docstore.NewMemory(), NewTokenIssuer("test-secret", time.Hour), NewMemoryRevocations(), NewLocalBus(), WithHashParams(fastHash))
	t.Cleanup(p.Close)
	return p
}

type recorder struct {
	mu   sync.Mutex
	seen []*Identity
}

func (r *recorder) record(id *Identity) {
	r.mu.Lock()
	r.seen = append(r.seen, id)
	r.mu.Unlock()
}

func (r *recorder) last() *Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[len(r.seen)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestCheckPasswordStrength(t *testing.T) {
	tests := []struct {
		pw string
		ok bool
	}{
		{"Abc1!x", true},
		{"Ab1!", false},
		{"abcdef1!", false},
		{"Abcdefg!", false},
		{"Abcdef12", false},
		{"Senha@2024", true},
	}
	for _, tt := range tests {
		err := CheckPasswordStrength(tt.pw)
		if (err == nil) != tt.ok {
			t.Errorf("CheckPasswordStrength(%q) = %v, want ok=%v", tt.pw, err, tt.ok)
		}
	}
}

func TestClient_CreateAccountAndSignIn(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	c := p.NewClient()
	defer c.Close()
	rec := &recorder{}
	cancel := c.Subscribe(rec.record)
	defer cancel()

	if rec.count() != 1 || rec.last() != nil {
		t.Fatalf("initial delivery = %v, want one nil", rec.seen)
	}

	id, err := c.CreateAccount(ctx, " Ana@UFU.br ", "Senha@1")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if id.Email != "ana@ufu.br" || id.UID == "" {
		t.Errorf("identity = %+v", id)
	}
	if got := rec.last(); got == nil || got.UID != id.UID {
		t.Errorf("subscriber saw %+v, want uid %s", got, id.UID)
	}
	token, exp := c.Token()
	if token == "" || exp.IsZero() {
		t.Fatal("no token after CreateAccount")
	}

	if _, err := p.NewClient().CreateAccount(ctx, "ana@ufu.br", "Senha@1"); !errors.Is(err, ErrAccountExists) {
		t.Errorf("duplicate CreateAccount err = %v, want ErrAccountExists", err)
	}

	other := p.NewClient()
	defer other.Close()
	if _, err := other.SignIn(ctx, "ana@ufu.br", "errada"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := other.SignIn(ctx, "ninguem@ufu.br", "Senha@1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email err = %v", err)
	}
	got, err := other.SignIn(ctx, "ANA@ufu.br", "Senha@1")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if got.UID != id.UID {
		t.Errorf("SignIn uid = %s, want %s", got.UID, id.UID)
	}
}

func TestClient_CreateAccountRejectsWeakPassword(t *testing.T) {
	p := newTestProvider(t)
	c := p.NewClient()
	defer c.Close()
	if _, err := c.CreateAccount(context.Background(), "a@b.c", "fraca"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("err = %v, want ErrWeakPassword", err)
	}
	if c.Current() != nil {
		t.Error("client signed in after failed CreateAccount")
	}
}

func TestClientFromToken_SignOutRevokes(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	c := p.NewClient()
	defer c.Close()
	if _, err := c.CreateAccount(ctx, "bia@ufu.br", "Senha@1"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	token, _ := c.Token()

	restored := p.ClientFromToken(ctx, token)
	defer restored.Close()
	if restored.Current() == nil || restored.Current().Email != "bia@ufu.br" {
		t.Fatalf("restored identity = %+v", restored.Current())
	}
	rec := &recorder{}
	cancel := restored.Subscribe(rec.record)
	defer cancel()

	if err := c.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if c.Current() != nil {
		t.Error("client still signed in")
	}
	if rec.last() != nil {
		t.Error("client restored from the same token was not signed out")
	}

	again := p.ClientFromToken(ctx, token)
	defer again.Close()
	if again.Current() != nil {
		t.Error("revoked token accepted")
	}

	bogus := p.ClientFromToken(ctx, "not-a-token")
	defer bogus.Close()
	if bogus.Current() != nil {
		t.Error("garbage token accepted")
	}
}

func TestProvider_RefreshReemitsForUID(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	a := p.NewClient()
	defer a.Close()
	idA, err := a.CreateAccount(ctx, "a@ufu.br", "Senha@1")
	if err != nil {
		t.Fatal(err)
	}
	b := p.NewClient()
	defer b.Close()
	if _, err := b.CreateAccount(ctx, "b@ufu.br", "Senha@1"); err != nil {
		t.Fatal(err)
	}

	recA, recB := &recorder{}, &recorder{}
	defer a.Subscribe(recA.record)()
	defer b.Subscribe(recB.record)()

	if err := p.Refresh(ctx, idA.UID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if recA.count() != 2 || recA.last().UID != idA.UID {
		t.Errorf("client a deliveries = %d, want 2", recA.count())
	}
	if recB.count() != 1 {
		t.Errorf("client b deliveries = %d, want 1", recB.count())
	}
}

func TestTokenIssuer_RejectsOtherSecret(t *testing.T) {
	token, _, err := NewTokenIssuer("one", time.Hour).Issue(Identity{UID: "u1", Email: "x@y.z"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenIssuer("two", time.Hour).Parse(token); err == nil {
		t.Error("token signed with another secret accepted")
	}
	if _, err := NewTokenIssuer("one", -time.Minute).Parse(mustIssue(t, NewTokenIssuer("one", -time.Minute))); err == nil {
		t.Error("expired token accepted")
	}
}

func mustIssue(t *testing.T, ti *TokenIssuer) string {
	t.Helper()
	tok, _, err := ti.Issue(Identity{UID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}
