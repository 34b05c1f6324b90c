package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagemesh/triagemesh/core"
)

// fakeBackend emulates the agent backend's auth and registration endpoints.
type fakeBackend struct {
	mu         sync.Mutex
	users      map[string]string
	agents     map[string]string // agent id -> jwt
	logins     int
	registered int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:  make(map[string]string),
		agents: make(map[string]string),
	}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.users[body.Username]; ok {
			w.WriteHeader(http.StatusConflict)
			return
		}
		b.users[body.Username] = body.Password
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/login/access-token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		pw, ok := b.users[r.PostFormValue("username")]
		b.logins++
		b.mu.Unlock()
		if !ok || pw != r.PostFormValue("password") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "user-token"})
	})
	mux.HandleFunc("GET /api/agents/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/agents/")
		b.mu.Lock()
		jwt, ok := b.agents[id]
		b.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"agent_jwt": jwt})
	})
	mux.HandleFunc("POST /api/agents/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		jwt := "jwt-" + body.ID
		b.mu.Lock()
		b.agents[body.ID] = jwt
		b.registered++
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"jwt": jwt})
	})
	return mux
}

func newTestGateway(t *testing.T) (*Gateway, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, "triagemesh", "secret"), backend
}

func identity(name string) core.AgentIdentity {
	return core.AgentIdentity{ID: uuid.New(), Name: name}
}

func TestBootstrapRegistersAllAgents(t *testing.T) {
	gw, backend := newTestGateway(t)
	identities := []core.AgentIdentity{identity("one"), identity("two")}

	results, err := gw.Bootstrap(context.Background(), identities)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, RegisterCreated, res.Status)
		assert.NotEmpty(t, res.JWT)
	}
	assert.Equal(t, 2, backend.registered)
}

func TestBootstrapSkipsExistingAgents(t *testing.T) {
	gw, backend := newTestGateway(t)
	agent := identity("one")

	_, err := gw.Bootstrap(context.Background(), []core.AgentIdentity{agent})
	require.NoError(t, err)

	results, err := gw.Bootstrap(context.Background(), []core.AgentIdentity{agent})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, RegisterAlreadyExists, results[0].Status)
	assert.Equal(t, 1, backend.registered)
}

func TestBootstrapSurvivesExistingUser(t *testing.T) {
	gw, _ := newTestGateway(t)
	require.NoError(t, gw.RegisterUser(context.Background()))

	_, err := gw.Bootstrap(context.Background(), []core.AgentIdentity{identity("one")})
	assert.NoError(t, err)
}

func TestBootstrapFailsOnBadCredentials(t *testing.T) {
	backend := newFakeBackend()
	backend.users["triagemesh"] = "other-password"
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	gw := New(srv.URL, "triagemesh", "secret")

	_, err := gw.Bootstrap(context.Background(), []core.AgentIdentity{identity("one")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login")
}

func TestTokenAfterBootstrap(t *testing.T) {
	gw, _ := newTestGateway(t)
	agent := identity("one")

	_, err := gw.Bootstrap(context.Background(), []core.AgentIdentity{agent})
	require.NoError(t, err)

	jwt, err := gw.Token(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "jwt-"+agent.ID.String(), jwt)
}

func TestTokenUnknownAgent(t *testing.T) {
	gw, _ := newTestGateway(t)
	_, err := gw.Token(uuid.New())
	assert.Error(t, err)
}

func TestRefreshReauthenticatesAndReloads(t *testing.T) {
	gw, backend := newTestGateway(t)
	agent := identity("one")

	_, err := gw.Bootstrap(context.Background(), []core.AgentIdentity{agent})
	require.NoError(t, err)
	loginsBefore := backend.logins

	jwt, err := gw.Refresh(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "jwt-"+agent.ID.String(), jwt)
	assert.Greater(t, backend.logins, loginsBefore)
}

func TestRegisterStatusString(t *testing.T) {
	assert.Equal(t, "Created", RegisterCreated.String())
	assert.Equal(t, "AlreadyExists", RegisterAlreadyExists.String())
	assert.Equal(t, "Failed", RegisterFailed.String())
}
