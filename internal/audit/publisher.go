// Package audit records flow step actions together with the client that
// performed them. Writes are best-effort: a failed audit never fails a step.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"simkyc/pkg/requestcontext"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, ev Event) error
	ListByRequest(ctx context.Context, serviceRequestID int64) ([]Event, error)
}

// Publisher stamps events with client metadata and writes them, either
// inline or through a buffered channel drained by one goroutine.
type Publisher struct {
	store  Store
	logger *slog.Logger

	buffer int
	queue  chan Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches to asynchronous writes with the given queue size.
// Zero keeps writes synchronous.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...Option) (*Publisher, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer > 0 {
		p.queue = make(chan Event, p.buffer)
		p.wg.Add(1)
		go p.drain()
	}
	return p, nil
}

// Record emits action for a service request. Failures are logged.
func (p *Publisher) Record(ctx context.Context, action Action, serviceRequestID int64, payload map[string]any) {
	ev := Event{Action: action, Payload: payload}
	if serviceRequestID > 0 {
		ev.ServiceRequestID = &serviceRequestID
	}
	if err := p.Emit(ctx, ev); err != nil {
		p.logger.WarnContext(ctx, "failed to write audit log",
			"request_id", requestcontext.RequestID(ctx),
			"action", action,
			"error", err,
		)
	}
}

// Emit fills client metadata and timestamp, then writes ev.
func (p *Publisher) Emit(ctx context.Context, ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = requestcontext.Now(ctx)
	}
	if ev.IP == "" {
		ev.IP = requestcontext.ClientIP(ctx)
	}
	if ev.UserAgent == "" {
		ev.UserAgent = requestcontext.UserAgent(ctx)
	}
	if ev.Browser == "" && ev.OS == "" {
		client := ParseUserAgent(ev.UserAgent)
		ev.Browser, ev.OS, ev.IsMobile = client.Browser, client.OS, client.IsMobile
	}
	if ev.RequestID == "" {
		ev.RequestID = requestcontext.RequestID(ctx)
	}

	if p.queue == nil {
		return p.store.Append(ctx, ev)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("audit publisher is closed")
	}
	select {
	case p.queue <- ev:
		return nil
	default:
		return errors.New("audit queue is full")
	}
}

func (p *Publisher) List(ctx context.Context, serviceRequestID int64) ([]Event, error) {
	return p.store.ListByRequest(ctx, serviceRequestID)
}

// Close stops accepting async events and waits for the queue to drain.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for ev := range p.queue {
		if err := p.store.Append(context.Background(), ev); err != nil {
			p.logger.Warn("failed to write audit log",
				"request_id", ev.RequestID,
				"action", ev.Action,
				"error", err,
			)
		}
	}
}
