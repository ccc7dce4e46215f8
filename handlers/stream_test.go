package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"apoioufu/models"
)

func TestMailbox_KeepsLatestPerName(t *testing.T) {
	box := newMailbox()
	box.put(EventStream, "id")
	box.put(EventView, 1)
	box.put(EventView, 2)
	box.put(EventRedirect, "/")

	select {
	case <-box.wake:
	default:
		t.Fatal("mailbox did not signal")
	}
	got := box.drain()
	if len(got) != 3 {
		t.Fatalf("drained %d events", len(got))
	}
	if got[0].name != EventStream || got[1].name != EventView || got[1].data != 2 || got[2].name != EventRedirect {
		t.Errorf("events = %+v", got)
	}
	if len(box.drain()) != 0 {
		t.Error("second drain not empty")
	}
}

type sseFrame struct {
	event string
	data  string
}

// readEvents lê frames SSE até fn devolver true ou o stream acabar.
func readEvents(t *testing.T, resp *http.Response, fn func(sseFrame) bool) bool {
	t.Helper()
	sc := bufio.NewScanner(resp.Body)
	var cur sseFrame
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimPrefix(line, "data:")
		case line == "":
			if cur.event != "" && fn(cur) {
				return true
			}
			cur = sseFrame{}
		}
	}
	return false
}

func openStream(t *testing.T, ctx context.Context, url, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open %s: status %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	return resp
}

func TestFeedStream_LoadMoreAndSearch(t *testing.T) {
	env := newTestEnv(t)
	_, writer := env.seedUser(t, "ana@ufu.br", models.RoleWriter)
	for _, title := range []string{"Cotas raciais", "Semana acadêmica", "Coletivo negro", "Bolsas", "Eleição DCE", "Racismo no campus", "Calouros", "Biblioteca", "Restaurante"} {
		if w := env.do(http.MethodPost, "/api/noticias", gin.H{"titulo": title, "resumo": "r", "conteudo": "c"}, writer); w.Code != http.StatusCreated {
			t.Fatal(w.Body.String())
		}
	}

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp := openStream(t, ctx, srv.URL+"/api/noticias/stream", "")
	defer resp.Body.Close()

	var streamID string
	step := 0
	done := readEvents(t, resp, func(f sseFrame) bool {
		switch f.event {
		case EventStream:
			var v struct{ ID string }
			_ = json.Unmarshal([]byte(f.data), &v)
			streamID = v.ID
			return false
		case EventView:
		default:
			return false
		}
		var v feedViewResponse
		if err := json.Unmarshal([]byte(f.data), &v); err != nil {
			t.Fatalf("view: %v", err)
		}
		switch {
		case step == 0 && v.Status == "ready" && v.Total == 8 && !v.Loading:
			if !v.HasMore || v.First == nil || len(v.Rest) != 7 {
				t.Errorf("first page view = %+v", v)
			}
			if w := env.do(http.MethodPost, "/api/noticias/stream/"+streamID+"/mais", nil, ""); w.Code != http.StatusAccepted {
				t.Errorf("mais = %d", w.Code)
			}
			step = 1
		case step == 1 && v.Status == "ready" && v.Total == 9 && !v.Loading:
			if v.HasMore {
				t.Errorf("has_more after short page = %+v", v)
			}
			if w := env.do(http.MethodPut, "/api/noticias/stream/"+streamID+"/busca", gin.H{"termo": "RACIS"}, ""); w.Code != http.StatusNoContent {
				t.Errorf("busca = %d", w.Code)
			}
			step = 2
		case step == 2 && v.Term == "RACIS":
			if v.Status != "ready" || v.First == nil || v.First.Titulo != "Racismo no campus" || len(v.Rest) != 0 {
				t.Errorf("search view = %+v", v)
			}
			return true
		}
		return false
	})
	if !done {
		t.Fatalf("stream ended at step %d", step)
	}
}

func TestUsersStream_RedirectsWhenAdminDemoted(t *testing.T) {
	env := newTestEnv(t)
	_, seed := env.seedUser(t, "admin@apoioufu.com", models.RoleAdmin)
	otherUID, other := env.seedUser(t, "gestor@ufu.br", models.RoleAdmin)

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp := openStream(t, ctx, srv.URL+"/api/users/stream", other)
	defer resp.Body.Close()

	demoted := false
	var redirect string
	readEvents(t, resp, func(f sseFrame) bool {
		switch f.event {
		case EventView:
			var v rosterViewResponse
			_ = json.Unmarshal([]byte(f.data), &v)
			if v.Status == "ready" && !demoted {
				demoted = true
				w := env.do(http.MethodPatch, "/api/users/"+otherUID, gin.H{"nivel_autorizacao": "escritor"}, seed)
				if w.Code != http.StatusOK {
					t.Errorf("demote = %d %s", w.Code, w.Body)
				}
			}
		case EventRedirect:
			redirect = f.data
		}
		return false
	})
	if !strings.Contains(redirect, `"to":"/"`) {
		t.Errorf("redirect event = %q", redirect)
	}
}

func TestStreamCommands_OnlyFromOpener(t *testing.T) {
	env := newTestEnv(t)
	_, owner := env.seedUser(t, "gestor@ufu.br", models.RoleAdmin)
	_, other := env.seedUser(t, "outra@ufu.br", models.RoleAdmin)

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	streamID := func(resp *http.Response) string {
		var id string
		readEvents(t, resp, func(f sseFrame) bool {
			if f.event != EventStream {
				return false
			}
			var v struct{ ID string }
			_ = json.Unmarshal([]byte(f.data), &v)
			id = v.ID
			return true
		})
		if id == "" {
			t.Fatal("no stream id")
		}
		return id
	}

	roster := openStream(t, ctx, srv.URL+"/api/users/stream", owner)
	defer roster.Body.Close()
	id := streamID(roster)
	body := gin.H{"campo": "email"}
	if w := env.do(http.MethodPost, "/api/users/stream/"+id+"/ordenar", body, other); w.Code != http.StatusNotFound {
		t.Errorf("other admin ordenar = %d, want 404", w.Code)
	}
	if w := env.do(http.MethodPut, "/api/users/stream/"+id+"/filtro", gin.H{"texto": "x"}, other); w.Code != http.StatusNotFound {
		t.Errorf("other admin filtro = %d, want 404", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/users/stream/"+id+"/ordenar", body, owner); w.Code != http.StatusOK {
		t.Errorf("owner ordenar = %d %s", w.Code, w.Body)
	}

	feed := openStream(t, ctx, srv.URL+"/api/noticias/stream", "")
	defer feed.Body.Close()
	fid := streamID(feed)
	if w := env.do(http.MethodPost, "/api/noticias/stream/"+fid+"/mais", nil, other); w.Code != http.StatusNotFound {
		t.Errorf("signed-in mais on anonymous stream = %d, want 404", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/noticias/stream/"+fid+"/mais", nil, ""); w.Code != http.StatusAccepted {
		t.Errorf("anonymous mais = %d, want 202", w.Code)
	}
}
