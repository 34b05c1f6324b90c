// Package registry implements the process-wide agent registry and
// dispatcher: it binds a human-readable capability name to an invocable
// handler, exposes each handler under a stable UUID, and runs the per-agent
// listen loops that consume inbound invocation envelopes until shutdown.
//
// The dispatcher is an explicit instance constructed at startup and passed by
// reference to every component that needs to invoke agents; there is no
// ambient global. Registration completes before invocation traffic begins,
// so dispatch reads are effectively lock-free after bootstrap.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/triagemesh/triagemesh/core"
	"github.com/triagemesh/triagemesh/logging"
)

// QueueFullError indicates an agent's inbound queue rejected an envelope.
// It is transient: the queue drains as the agent's listen loop catches up.
type QueueFullError struct {
	AgentID uuid.UUID
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("agent %s inbound queue full", e.AgentID)
}

// Transient marks the error as retryable at the transport layer.
func (e *QueueFullError) Transient() bool { return true }

type binding struct {
	identity core.AgentIdentity
	handler  core.Handler
	inbox    chan core.Request
}

// Options configures a Dispatcher.
type Options struct {
	// QueueSize is the per-agent inbound queue capacity.
	QueueSize int
	// Logger receives dispatch logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Dispatcher maps stable agent identifiers to callable units of work.
type Dispatcher struct {
	mu        sync.RWMutex
	agents    map[uuid.UUID]*binding
	responses chan core.Response
	queueSize int
	logger    logging.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		QueueSize: 64,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{
		agents:    make(map[uuid.UUID]*binding),
		responses: make(chan core.Response, opts.QueueSize),
		queueSize: opts.QueueSize,
		logger:    opts.Logger,
	}
}

// Bind registers a handler under a stable agent identifier. Binding the same
// identifier twice in one process fails with core.ErrDuplicateRegistration.
func (d *Dispatcher) Bind(id uuid.UUID, name, description string, h core.Handler) (core.AgentIdentity, error) {
	if h == nil {
		return core.AgentIdentity{}, fmt.Errorf("agent %q: nil handler", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.agents[id]; ok {
		return core.AgentIdentity{}, fmt.Errorf("agent %q (%s): %w", name, id, core.ErrDuplicateRegistration)
	}

	identity := core.AgentIdentity{ID: id, Name: name, Description: description}
	d.agents[id] = &binding{
		identity: identity,
		handler:  h,
		inbox:    make(chan core.Request, d.queueSize),
	}
	d.logger.Info("agent bound name=%s id=%s", name, id)
	return identity, nil
}

// Identities returns the identities of all bound agents.
func (d *Dispatcher) Identities() []core.AgentIdentity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]core.AgentIdentity, 0, len(d.agents))
	for _, b := range d.agents {
		ids = append(ids, b.identity)
	}
	return ids
}

// InvokeLocal looks up and calls the bound handler directly, bypassing the
// queue. It fails with core.ErrUnknownAgent if the identifier is not bound;
// a handler failure surfaces as a core.ExecutionError.
func (d *Dispatcher) InvokeLocal(ctx context.Context, id uuid.UUID, req core.Request) (string, error) {
	d.mu.RLock()
	b, ok := d.agents[id]
	d.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("agent %s: %w", id, core.ErrUnknownAgent)
	}

	payload, err := b.handler(ctx, req)
	if err != nil {
		return "", &core.ExecutionError{AgentID: id, Detail: err.Error()}
	}
	return payload, nil
}

// Deliver enqueues an invocation envelope for the target agent's listen
// loop. It fails with core.ErrUnknownAgent when the target is not bound and
// with a transient QueueFullError when the inbound queue is saturated.
func (d *Dispatcher) Deliver(ctx context.Context, req core.Request) error {
	d.mu.RLock()
	b, ok := d.agents[req.Target]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("agent %s: %w", req.Target, core.ErrUnknownAgent)
	}

	select {
	case b.inbox <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return &QueueFullError{AgentID: req.Target}
	}
}

// Responses exposes the stream of invocation responses produced by the
// listen loops. The channel is closed when Serve returns.
func (d *Dispatcher) Responses() <-chan core.Response {
	return d.responses
}

// Serve starts one listen loop per bound agent and blocks until ctx is
// cancelled. Each loop consumes its agent's inbound queue indefinitely,
// invokes the handler, and emits a correlated response envelope. Handler
// failures become response errors, never serve errors.
//
// Agents bound after Serve starts are not picked up; the bootstrap sequence
// registers all agents before starting case intake.
func (d *Dispatcher) Serve(ctx context.Context) error {
	d.mu.RLock()
	bindings := make([]*binding, 0, len(d.agents))
	for _, b := range d.agents {
		bindings = append(bindings, b)
	}
	d.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bindings {
		g.Go(func() error {
			d.listen(gctx, b)
			return nil
		})
	}
	err := g.Wait()
	close(d.responses)
	return err
}

func (d *Dispatcher) listen(ctx context.Context, b *binding) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-b.inbox:
			resp := core.Response{Correlation: req.Correlation}
			payload, err := b.handler(ctx, req)
			if err != nil {
				resp.Err = err.Error()
				d.logger.Warn("agent %s handler failed: %v", b.identity.Name, err)
			} else {
				resp.Payload = payload
			}
			select {
			case d.responses <- resp:
			case <-ctx.Done():
				return
			}
		}
	}
}
