// Package state reads and writes addressed values inside one transaction
// context of a remote context manager.
//
// An Accessor is bound to a stream and a context ID for its whole lifetime:
//
//	a := state.New(s, contextID)
//	values, err := a.Get(ctx, []string{addr})
//	written, err := a.Set(ctx, []state.Entry{{Address: addr, Data: data}})
//
// Each call sends exactly one request and waits for the reply at most twice,
// each wait bounded by the configured timeout. The second wait is on the same
// outstanding request; nothing is resent. Every failure is returned as an
// *InternalError.
package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tailored-agentic-units/statecontext/observability"
	"github.com/tailored-agentic-units/statecontext/protocol"
	"github.com/tailored-agentic-units/statecontext/stream"
)

// Entry is one address/value pair to write.
type Entry struct {
	Address string
	Data    []byte
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithConfig applies non-zero values from cfg over the defaults. A nil cfg
// applies the defaults alone.
func WithConfig(cfg *Config) Option {
	return func(a *Accessor) {
		merged := DefaultConfig()
		if cfg != nil {
			merged.Merge(cfg)
		}
		a.waitTimeout = time.Duration(merged.WaitTimeout)
		a.observer = observability.Resolve(merged.Observer, a.observer)
	}
}

// WithWaitTimeout bounds each of the two waits. Non-positive values are ignored.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(a *Accessor) {
		if timeout > 0 {
			a.waitTimeout = timeout
		}
	}
}

// WithObserver replaces the configured observer.
func WithObserver(o observability.Observer) Option {
	return func(a *Accessor) {
		if o != nil {
			a.observer = o
		}
	}
}

// Accessor is safe for concurrent use. Its fields never change after New, so
// concurrent calls share nothing but the stream, which correlates replies.
type Accessor struct {
	stream      stream.Stream
	contextID   string
	waitTimeout time.Duration
	observer    observability.Observer
}

// New binds an Accessor to s and contextID. Options apply over DefaultConfig.
func New(s stream.Stream, contextID string, opts ...Option) *Accessor {
	a := &Accessor{
		stream:      s,
		contextID:   contextID,
		waitTimeout: DefaultWaitTimeout,
		observer:    observability.NoOpObserver{},
	}
	WithConfig(&Config{})(a)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ContextID returns the context the Accessor is bound to.
func (a *Accessor) ContextID() string {
	return a.contextID
}

// Get returns the values the context holds for addresses. Addresses without a
// value are absent from the result.
func (a *Accessor) Get(ctx context.Context, addresses []string) (map[string][]byte, error) {
	req := protocol.GetRequest{
		ContextID: a.contextID,
		Addresses: slices.Clone(addresses),
	}

	a.emit(ctx, EventGetStart, observability.LevelVerbose, map[string]any{
		"addresses": len(addresses),
	})

	var resp protocol.GetResponse
	if err := a.exchange(ctx, protocol.MessageTypeGetRequest, req.Marshal(), &resp); err != nil {
		return nil, err
	}

	results := make(map[string][]byte, len(resp.Entries))
	for _, entry := range resp.Entries {
		results[entry.Address] = entry.Data
	}

	a.emit(ctx, EventGetComplete, observability.LevelVerbose, map[string]any{
		"addresses": len(addresses),
		"found":     len(results),
	})

	return results, nil
}

// Set writes entries in order and returns the addresses the context manager
// reports as written. The result is not checked against the input; callers
// detect partial writes by comparing the two.
func (a *Accessor) Set(ctx context.Context, entries []Entry) ([]string, error) {
	wire := make([]protocol.Entry, 0, len(entries))
	for _, entry := range entries {
		wire = append(wire, protocol.Entry{Address: entry.Address, Data: entry.Data})
	}
	req := protocol.SetRequest{
		ContextID: a.contextID,
		Entries:   wire,
	}

	a.emit(ctx, EventSetStart, observability.LevelVerbose, map[string]any{
		"entries": len(entries),
	})

	var resp protocol.SetResponse
	if err := a.exchange(ctx, protocol.MessageTypeSetRequest, req.Marshal(), &resp); err != nil {
		return nil, err
	}

	written := make([]string, 0, len(resp.Addresses))
	written = append(written, resp.Addresses...)

	a.emit(ctx, EventSetComplete, observability.LevelVerbose, map[string]any{
		"entries": len(entries),
		"written": len(written),
	})

	return written, nil
}

type reply interface {
	Unmarshal([]byte) error
}

// exchange sends one request and decodes its reply into resp. On a first
// timeout it waits on the same Future once more.
func (a *Accessor) exchange(ctx context.Context, kind protocol.MessageType, payload []byte, resp reply) error {
	if a.stream == nil {
		return a.fail(ctx, kind, errors.New("accessor has no stream"))
	}

	future := a.stream.Send(ctx, kind, payload)

	raw, err := future.Await(ctx, a.waitTimeout)
	if errors.Is(err, stream.ErrTimeout) {
		a.emit(ctx, EventWaitRetry, observability.LevelWarning, map[string]any{
			"type":    kind.String(),
			"timeout": a.waitTimeout.String(),
		})
		raw, err = future.Await(ctx, a.waitTimeout)
	}
	if err != nil {
		return a.fail(ctx, kind, err)
	}

	if err := resp.Unmarshal(raw); err != nil {
		return a.fail(ctx, kind, fmt.Errorf("decode reply to %s: %w", kind, err))
	}
	return nil
}

func (a *Accessor) fail(ctx context.Context, kind protocol.MessageType, err error) error {
	a.emit(ctx, EventError, observability.LevelError, map[string]any{
		"type":  kind.String(),
		"error": err.Error(),
	})
	return newInternalError(err)
}

func (a *Accessor) emit(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	data["context_id"] = a.contextID
	a.observer.OnEvent(ctx, observability.NewEvent(eventType, level, "state.Accessor", data))
}
