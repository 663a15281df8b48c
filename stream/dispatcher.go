package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tailored-agentic-units/statecontext/observability"
	"github.com/tailored-agentic-units/statecontext/protocol"
)

// Dispatcher is an in-process Stream. Sent frames are queued, a message loop
// hands each one to the Handler on its own goroutine, and the reply settles
// the Future registered under the frame's correlation ID.
type Dispatcher struct {
	name    string
	handler Handler

	queue *MessageChannel[*Frame]

	pending      map[string]*Future
	pendingMutex sync.Mutex
	closed       bool

	logger   *slog.Logger
	observer observability.Observer
	metrics  *Metrics

	handlers sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewDispatcher(ctx context.Context, cfg Config, handler Handler) *Dispatcher {
	defaults := DefaultConfig()
	defaults.Merge(&cfg)

	dispatchCtx, cancel := context.WithCancel(ctx)

	d := &Dispatcher{
		name:     defaults.Name,
		handler:  handler,
		queue:    NewMessageChannel[*Frame](dispatchCtx, defaults.QueueSize),
		pending:  make(map[string]*Future),
		logger:   defaults.Logger,
		observer: observability.Resolve(defaults.Observer, observability.NoOpObserver{}),
		metrics:  NewMetrics(),
		ctx:      dispatchCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go d.messageLoop()

	return d
}

// Send queues payload and returns the Future for its reply. Failures to
// queue settle the returned Future instead of being returned directly.
func (d *Dispatcher) Send(ctx context.Context, kind protocol.MessageType, payload []byte) *Future {
	if _, ok := kind.ResponseType(); !ok {
		return Failed(fmt.Errorf("%w: %s", ErrUnknownMessageType, kind))
	}

	frame := NewFrame(kind, payload)
	future := NewFuture()

	d.pendingMutex.Lock()
	if d.closed {
		d.pendingMutex.Unlock()
		return Failed(ErrClosed)
	}
	d.pending[frame.CorrelationID] = future
	d.pendingMutex.Unlock()

	d.metrics.RecordSent()

	if err := d.queue.Send(ctx, frame); err != nil {
		if d.forget(frame.CorrelationID) {
			future.Fail(fmt.Errorf("enqueue %s: %w", frame, err))
			d.metrics.RecordFailed()
		}
		return future
	}

	d.observer.OnEvent(ctx, observability.NewEvent(EventSend, observability.LevelVerbose, "stream.Dispatcher", map[string]any{
		"stream":         d.name,
		"correlation_id": frame.CorrelationID,
		"type":           kind.String(),
		"size":           len(payload),
	}))

	return future
}

// Pending returns the number of exchanges awaiting a reply.
func (d *Dispatcher) Pending() int {
	d.pendingMutex.Lock()
	defer d.pendingMutex.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) Metrics() MetricsSnapshot {
	return d.metrics.Snapshot()
}

// Shutdown stops the message loop, waits for running handlers, and fails
// every exchange still pending with ErrClosed.
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	d.pendingMutex.Lock()
	d.closed = true
	d.pendingMutex.Unlock()

	d.queue.Close()
	d.cancel()

	handlersDone := make(chan struct{})
	go func() {
		<-d.done
		d.handlers.Wait()
		close(handlersDone)
	}()

	var err error
	select {
	case <-handlersDone:
	case <-time.After(timeout):
		err = fmt.Errorf("dispatcher shutdown timeout after %v", timeout)
	}

	d.pendingMutex.Lock()
	outstanding := d.pending
	d.pending = make(map[string]*Future)
	d.pendingMutex.Unlock()

	for _, future := range outstanding {
		if future.Fail(ErrClosed) {
			d.metrics.RecordFailed()
		}
	}

	d.logger.Debug(
		"dispatcher shut down",
		slog.String("stream", d.name),
		slog.Int("abandoned", len(outstanding)),
	)
	d.observer.OnEvent(context.Background(), observability.NewEvent(EventClosed, observability.LevelInfo, "stream.Dispatcher", map[string]any{
		"stream":    d.name,
		"abandoned": len(outstanding),
	}))

	return err
}

func (d *Dispatcher) messageLoop() {
	defer close(d.done)

	for {
		frame, err := d.queue.Receive(d.ctx)
		if err != nil {
			return
		}
		d.handlers.Add(1)
		go d.handle(frame)
	}
}

func (d *Dispatcher) handle(frame *Frame) {
	defer d.handlers.Done()

	reply, err := d.handler(d.ctx, frame.Type, frame.Payload)
	if errors.Is(err, ErrNoReply) {
		d.metrics.RecordDropped()
		d.observer.OnEvent(d.ctx, observability.NewEvent(EventReplyDropped, observability.LevelWarning, "stream.Dispatcher", map[string]any{
			"stream":         d.name,
			"correlation_id": frame.CorrelationID,
			"type":           frame.Type.String(),
		}))
		return
	}

	d.complete(frame, reply, err)
}

func (d *Dispatcher) complete(frame *Frame, reply []byte, err error) {
	d.pendingMutex.Lock()
	future, exists := d.pending[frame.CorrelationID]
	delete(d.pending, frame.CorrelationID)
	d.pendingMutex.Unlock()

	if !exists {
		d.logger.WarnContext(
			d.ctx,
			"reply for unknown exchange",
			slog.String("stream", d.name),
			slog.String("correlation_id", frame.CorrelationID),
		)
		return
	}

	if err != nil {
		future.Fail(fmt.Errorf("%s handler: %w", frame.Type, err))
		d.metrics.RecordFailed()
		d.logger.ErrorContext(
			d.ctx,
			"handler failed",
			slog.String("stream", d.name),
			slog.String("correlation_id", frame.CorrelationID),
			slog.String("error", err.Error()),
		)
	} else {
		future.Resolve(reply)
		d.metrics.RecordResolved()
	}

	d.observer.OnEvent(d.ctx, observability.NewEvent(EventReply, observability.LevelVerbose, "stream.Dispatcher", map[string]any{
		"stream":         d.name,
		"correlation_id": frame.CorrelationID,
		"type":           frame.Type.String(),
		"failed":         err != nil,
		"latency_ms":     time.Since(frame.Timestamp).Milliseconds(),
	}))
}

func (d *Dispatcher) forget(correlationID string) bool {
	d.pendingMutex.Lock()
	defer d.pendingMutex.Unlock()

	_, exists := d.pending[correlationID]
	delete(d.pending, correlationID)
	return exists
}
