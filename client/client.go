// Package client implements the remote agent invocation client: it delivers
// a structured payload to a named agent identifier and awaits the correlated
// response, regardless of whether the agent runs in the same process or is
// separately scheduled behind a transport.
//
// Each request carries a unique correlation token; responses are matched to
// pending requests by that token, so any number of requests from concurrent
// workflow instances can be in flight at once. Transient transport failures
// are retried with bounded exponential backoff plus jitter; agent-logic
// failures are business failures and are never retried here.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/triagemesh/triagemesh/core"
	"github.com/triagemesh/triagemesh/logging"
)

// Transport moves invocation envelopes between the client and agents. The
// in-process implementation is registry.Dispatcher; an out-of-process
// transport satisfies the same contract.
type Transport interface {
	// Deliver enqueues a request for the target agent. Errors implementing
	// Transient() bool may resolve on retry.
	Deliver(ctx context.Context, req core.Request) error
	// Responses streams response envelopes back; closed on shutdown.
	Responses() <-chan core.Response
}

// CredentialSource supplies the bearer credential attached to outbound
// invocations and refreshes it when the transport reports it expired.
type CredentialSource interface {
	Token(agentID uuid.UUID) (string, error)
	Refresh(ctx context.Context, agentID uuid.UUID) (string, error)
}

// authExpired is implemented by transport errors caused by a stale credential.
type authExpired interface{ AuthExpired() bool }

// Options configures a Client.
type Options struct {
	// Timeout bounds the wait for a response to one request.
	Timeout time.Duration
	// MaxAttempts caps delivery attempts for transient transport failures.
	MaxAttempts int
	// RetryBudget caps the total time spent retrying one delivery.
	RetryBudget time.Duration
	// BaseBackoff is the initial retry delay; it doubles per attempt with
	// uniform jitter in [0, backoff/2].
	BaseBackoff time.Duration
	// Credentials optionally attaches bearer tokens to outbound requests.
	Credentials CredentialSource
	// Logger receives client logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Client sends correlated request/response invocations over a Transport.
type Client struct {
	transport   Transport
	timeout     time.Duration
	maxAttempts int
	retryBudget time.Duration
	baseBackoff time.Duration
	credentials CredentialSource
	logger      logging.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]chan core.Response
}

// NewClient creates a client over the given transport and starts its
// response matching loop. The loop exits when the transport's response
// channel closes.
func NewClient(t Transport, optFns ...func(o *Options)) *Client {
	opts := Options{
		Timeout:     60 * time.Second,
		MaxAttempts: 5,
		RetryBudget: 10 * time.Second,
		BaseBackoff: 200 * time.Millisecond,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Client{
		transport:   t,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		retryBudget: opts.RetryBudget,
		baseBackoff: opts.BaseBackoff,
		credentials: opts.Credentials,
		logger:      opts.Logger,
		pending:     make(map[uuid.UUID]chan core.Response),
	}
	go c.receive()
	return c
}

// Send delivers the payload to the target agent and blocks until the
// correlated response arrives, the bounded wait elapses, or ctx is
// cancelled. Failure modes:
//
//   - core.UnavailableError: target not bound/reachable, or retries exhausted
//   - core.TimeoutError: no response within the bounded wait
//   - core.ExecutionError: the target agent's handler raised
func (c *Client) Send(ctx context.Context, payload map[string]any, target uuid.UUID) (string, error) {
	correlation := core.NewCorrelationID()
	req := core.Request{
		Correlation: correlation,
		Target:      target,
		Payload:     payload,
	}
	if c.credentials != nil {
		token, err := c.credentials.Token(target)
		if err != nil {
			return "", &core.UnavailableError{AgentID: target, Err: fmt.Errorf("credential lookup: %w", err)}
		}
		req.Token = token
	}

	waiter := make(chan core.Response, 1)
	c.mu.Lock()
	c.pending[correlation] = waiter
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, correlation)
		c.mu.Unlock()
	}()

	if err := c.deliver(ctx, &req); err != nil {
		return "", err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", &core.TimeoutError{AgentID: target, Wait: c.timeout}
	case resp := <-waiter:
		if resp.Err != "" {
			return "", &core.ExecutionError{AgentID: target, Detail: resp.Err}
		}
		return resp.Payload, nil
	}
}

// deliver pushes the request onto the transport, retrying transient failures
// with exponential backoff and jitter, capped by MaxAttempts and RetryBudget.
func (c *Client) deliver(ctx context.Context, req *core.Request) error {
	backoff := c.baseBackoff
	deadline := time.Now().Add(c.retryBudget)
	refreshed := false

	for attempt := 1; ; attempt++ {
		err := c.transport.Deliver(ctx, *req)
		if err == nil {
			return nil
		}

		var ae authExpired
		if errors.As(err, &ae) && ae.AuthExpired() && c.credentials != nil && !refreshed {
			token, rerr := c.credentials.Refresh(ctx, req.Target)
			if rerr != nil {
				return &core.UnavailableError{AgentID: req.Target, Err: fmt.Errorf("credential refresh: %w", rerr)}
			}
			req.Token = token
			refreshed = true
			continue
		}

		if errors.Is(err, core.ErrUnknownAgent) {
			return &core.UnavailableError{AgentID: req.Target, Err: err}
		}
		if !core.IsTransient(err) {
			return &core.UnavailableError{AgentID: req.Target, Err: err}
		}
		if attempt >= c.maxAttempts || !time.Now().Add(backoff).Before(deadline) {
			return &core.UnavailableError{AgentID: req.Target, Err: fmt.Errorf("retries exhausted after %d attempts: %w", attempt, err)}
		}

		sleep := backoff
		if half := int64(backoff / 2); half > 0 {
			sleep += time.Duration(rand.Int64N(half + 1))
		}
		c.logger.Debug("transient delivery failure to %s, retrying in %s (attempt %d/%d): %v",
			req.Target, sleep, attempt, c.maxAttempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		backoff *= 2
	}
}

// receive matches response envelopes to pending requests by correlation
// token. Responses with no waiter (late arrivals after timeout) are dropped.
func (c *Client) receive() {
	for resp := range c.transport.Responses() {
		c.mu.Lock()
		waiter, ok := c.pending[resp.Correlation]
		if ok {
			delete(c.pending, resp.Correlation)
		}
		c.mu.Unlock()

		if !ok {
			c.logger.Debug("dropping uncorrelated response %s", resp.Correlation)
			continue
		}
		waiter <- resp
	}
}
