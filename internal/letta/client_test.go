package letta

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/lettamem/internal/apperr"
)

type fakeServer struct {
	mu     sync.Mutex
	agents map[string]Agent
	auth   string
}

func (f *fakeServer) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth
}

func (f *fakeServer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.agents)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")
	switch {
	case r.URL.Path == "/v1/health/":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/v1/agents/" && r.Method == http.MethodGet:
		out := []Agent{}
		for _, a := range f.agents {
			out = append(out, a)
		}
		_ = json.NewEncoder(w).Encode(out)
	case r.URL.Path == "/v1/agents/" && r.Method == http.MethodPost:
		var spec AgentSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		a := Agent{ID: "agent-" + spec.Name, Name: spec.Name, System: spec.System, LLMConfig: &spec.LLMConfig}
		f.agents[a.ID] = a
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(a)
	case strings.HasPrefix(r.URL.Path, "/v1/agents/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/agents/")
		a, ok := f.agents[id]
		if !ok {
			http.Error(w, `{"detail":"agent not found"}`, http.StatusNotFound)
			return
		}
		if r.Method == http.MethodDelete {
			delete(f.agents, id)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	fake := &fakeServer{agents: map[string]Agent{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL, AgentsPath: "/v1/agents/", HealthPath: "v1/health", Token: "tok", Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, fake
}

func TestClient_AgentLifecycle(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if auth := fake.lastAuth(); auth != "Bearer tok" {
		t.Errorf("auth header = %q", auth)
	}

	created, err := c.CreateAgent(ctx, DefaultSpec("gemini-2.0-flash"))
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if created.LLMConfig == nil || created.LLMConfig.Model != "gemini-2.0-flash" {
		t.Errorf("created = %+v", created)
	}

	agents, err := c.ListAgents(ctx)
	if err != nil || len(agents) != 1 {
		t.Fatalf("ListAgents = %v, %v", agents, err)
	}

	got, err := c.GetAgent(ctx, created.ID)
	if err != nil || got.Name != "Gemini Assistant" {
		t.Fatalf("GetAgent = %+v, %v", got, err)
	}

	if err := c.DeleteAgent(ctx, created.ID); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if _, err := c.GetAgent(ctx, created.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetAgent after delete err = %v, want ErrNotFound", err)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c, _ := New(Config{URL: srv.URL, AgentsPath: "/v1/agents/", HealthPath: "/v1/health/"})

	_, err := c.ListAgents(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 || !strings.Contains(apiErr.Body, "boom") {
		t.Fatalf("err = %v", err)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		t.Error("500 must not match ErrNotFound")
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(Config{URL: url, AgentsPath: "/v1/agents/", HealthPath: "/v1/health/", Timeout: time.Second})
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected error for closed server")
	}
}

func TestNew_Validation(t *testing.T) {
	for _, u := range []string{"", "ftp://x", "://bad"} {
		if _, err := New(Config{URL: u}); err == nil {
			t.Errorf("New(%q) should fail", u)
		}
	}
}

func TestCreateAgent_InvalidSpec(t *testing.T) {
	c, fake := newTestClient(t)
	if _, err := c.CreateAgent(context.Background(), AgentSpec{Name: "x"}); err == nil {
		t.Error("expected validation error for missing model")
	}
	if fake.count() != 0 {
		t.Error("invalid spec reached the server")
	}
}

func TestSpecFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := DefaultSpec("gemini-2.0-flash")
	for _, name := range []string{"agent.yaml", "agent.json"} {
		path := filepath.Join(dir, name)
		if err := WriteSpecFile(path, want); err != nil {
			t.Fatalf("WriteSpecFile(%s): %v", name, err)
		}
		got, err := ReadSpecFile(path)
		if err != nil {
			t.Fatalf("ReadSpecFile(%s): %v", name, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: got %+v, want %+v", name, got, want)
		}
	}
}
