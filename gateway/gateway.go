// Package gateway implements the auth/registration bootstrap against the
// external agent backend: a one-time login exchange for a bearer credential,
// idempotent per-agent registration (lookup before create), and the
// credential source the invocation client attaches to outbound calls.
//
// Registration is explicit about outcomes: EnsureAgent returns a tri-state
// result (Created, AlreadyExists, Failed) and the caller decides policy.
// One agent's failure never blocks the others, but Bootstrap refuses to
// declare success unless every referenced agent ended authenticated.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/triagemesh/triagemesh/core"
	"github.com/triagemesh/triagemesh/logging"
)

// RegisterStatus is the outcome of one agent registration attempt.
type RegisterStatus int

const (
	// RegisterCreated means the agent was newly registered.
	RegisterCreated RegisterStatus = iota
	// RegisterAlreadyExists means lookup short-circuited re-registration.
	RegisterAlreadyExists
	// RegisterFailed means both lookup and registration failed.
	RegisterFailed
)

// String returns the string representation of the status.
func (s RegisterStatus) String() string {
	switch s {
	case RegisterCreated:
		return "Created"
	case RegisterAlreadyExists:
		return "AlreadyExists"
	case RegisterFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// RegisterResult reports the outcome of EnsureAgent for one agent.
type RegisterResult struct {
	AgentID uuid.UUID
	Status  RegisterStatus
	JWT     string
	Err     error
}

// Options configures a Gateway.
type Options struct {
	// HTTPClient overrides the default client (timeout 60s).
	HTTPClient *http.Client
	// Logger receives bootstrap logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Gateway talks to the external agent backend.
type Gateway struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     logging.Logger

	mu          sync.RWMutex
	accessToken string
	agentJWTs   map[uuid.UUID]string
}

// New creates a Gateway for the backend at baseURL.
func New(baseURL, username, password string, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		agentJWTs:  make(map[uuid.UUID]string),
	}
}

// RegisterUser creates the backend user account. A conflict (user already
// exists) is not an error; any other failure is surfaced to the caller
// instead of being silently suppressed.
func (g *Gateway) RegisterUser(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"username": g.username, "password": g.password})
	if err != nil {
		return err
	}
	resp, err := g.do(ctx, http.MethodPost, "/api/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("register user: unexpected status %d", resp.StatusCode)
}

// Login performs the one-time credential exchange and stores the bearer token.
func (g *Gateway) Login(ctx context.Context) error {
	form := url.Values{"username": {g.username}, "password": {g.password}}
	resp, err := g.do(ctx, http.MethodPost, "/api/login/access-token",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("login: decode response: %w", err)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("login: response carried no access token")
	}

	g.mu.Lock()
	g.accessToken = payload.AccessToken
	g.mu.Unlock()
	return nil
}

// EnsureAgent registers one agent idempotently: an existing registration is
// looked up first and short-circuits re-registration. The returned result
// carries the agent's JWT on success.
func (g *Gateway) EnsureAgent(ctx context.Context, identity core.AgentIdentity) RegisterResult {
	jwt, lookupErr := g.lookupAgent(ctx, identity.ID)
	if lookupErr == nil {
		g.storeJWT(identity.ID, jwt)
		g.logger.Info("agent registration skipped for %s", identity.ID)
		return RegisterResult{AgentID: identity.ID, Status: RegisterAlreadyExists, JWT: jwt}
	}

	jwt, createErr := g.createAgent(ctx, identity)
	if createErr != nil {
		return RegisterResult{
			AgentID: identity.ID,
			Status:  RegisterFailed,
			Err:     fmt.Errorf("lookup failed (%v); create failed: %w", lookupErr, createErr),
		}
	}
	g.storeJWT(identity.ID, jwt)
	g.logger.Info("agent %s registered successfully", identity.ID)
	return RegisterResult{AgentID: identity.ID, Status: RegisterCreated, JWT: jwt}
}

// Bootstrap authenticates once and ensures every identity is registered.
// Individual registration failures are collected, not short-circuited; the
// returned error is non-nil if any agent ended Failed, because the workflow
// engine requires every referenced agent reachable and authenticated before
// the first case enters the graph.
func (g *Gateway) Bootstrap(ctx context.Context, identities []core.AgentIdentity) ([]RegisterResult, error) {
	if err := g.RegisterUser(ctx); err != nil {
		g.logger.Warn("user registration: %v", err)
	}
	if err := g.Login(ctx); err != nil {
		return nil, err
	}

	results := make([]RegisterResult, 0, len(identities))
	failed := 0
	for _, identity := range identities {
		res := g.EnsureAgent(ctx, identity)
		if res.Status == RegisterFailed {
			failed++
			g.logger.Error("failed to register agent %s: %v", identity.ID, res.Err)
		}
		results = append(results, res)
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d agents failed registration", failed, len(identities))
	}
	return results, nil
}

// Token implements client.CredentialSource.
func (g *Gateway) Token(agentID uuid.UUID) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	jwt, ok := g.agentJWTs[agentID]
	if !ok {
		return "", fmt.Errorf("no credential for agent %s", agentID)
	}
	return jwt, nil
}

// Refresh implements client.CredentialSource: it re-authenticates and
// re-runs the idempotent registration for the agent.
func (g *Gateway) Refresh(ctx context.Context, agentID uuid.UUID) (string, error) {
	if err := g.Login(ctx); err != nil {
		return "", err
	}
	jwt, err := g.lookupAgent(ctx, agentID)
	if err != nil {
		return "", fmt.Errorf("refresh agent %s credential: %w", agentID, err)
	}
	g.storeJWT(agentID, jwt)
	return jwt, nil
}

func (g *Gateway) lookupAgent(ctx context.Context, id uuid.UUID) (string, error) {
	resp, err := g.doAuthed(ctx, http.MethodGet, "/api/agents/"+id.String(), "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup agent: unexpected status %d", resp.StatusCode)
	}
	var payload struct {
		AgentJWT string `json:"agent_jwt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("lookup agent: decode response: %w", err)
	}
	if payload.AgentJWT == "" {
		return "", fmt.Errorf("lookup agent: response carried no jwt")
	}
	return payload.AgentJWT, nil
}

func (g *Gateway) createAgent(ctx context.Context, identity core.AgentIdentity) (string, error) {
	body, err := json.Marshal(map[string]any{
		"id":               identity.ID.String(),
		"name":             identity.Name,
		"description":      identity.Description,
		"input_parameters": map[string]any{},
	})
	if err != nil {
		return "", err
	}
	resp, err := g.doAuthed(ctx, http.MethodPost, "/api/agents/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("register agent: unexpected status %d", resp.StatusCode)
	}
	var payload struct {
		JWT string `json:"jwt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("register agent: decode response: %w", err)
	}
	if payload.JWT == "" {
		return "", fmt.Errorf("register agent: response carried no jwt")
	}
	return payload.JWT, nil
}

func (g *Gateway) storeJWT(id uuid.UUID, jwt string) {
	g.mu.Lock()
	g.agentJWTs[id] = jwt
	g.mu.Unlock()
}

func (g *Gateway) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return g.httpClient.Do(req)
}

func (g *Gateway) doAuthed(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	g.mu.RLock()
	token := g.accessToken
	g.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return g.httpClient.Do(req)
}
