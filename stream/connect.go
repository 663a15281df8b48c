package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"github.com/tailored-agentic-units/statecontext/observability"
	"github.com/tailored-agentic-units/statecontext/protocol"
)

const (
	// ServiceName is the connect service the state context procedures live under.
	ServiceName = "sawtooth.state.v1.StateContext"

	GetProcedure = "/" + ServiceName + "/Get"
	SetProcedure = "/" + ServiceName + "/Set"

	// CorrelationHeader carries a Frame's correlation ID in both directions.
	CorrelationHeader = "X-Correlation-Id"
)

var procedures = map[protocol.MessageType]string{
	protocol.MessageTypeGetRequest: GetProcedure,
	protocol.MessageTypeSetRequest: SetProcedure,
}

// frameCodec moves Frame payloads verbatim. Payloads are already protobuf
// encoded, so the codec registers under connect's "proto" name.
type frameCodec struct{}

func (frameCodec) Name() string { return "proto" }

func (frameCodec) Marshal(msg any) ([]byte, error) {
	frame, ok := msg.(*Frame)
	if !ok {
		return nil, fmt.Errorf("frame codec: cannot marshal %T", msg)
	}
	return frame.Payload, nil
}

func (frameCodec) Unmarshal(data []byte, msg any) error {
	frame, ok := msg.(*Frame)
	if !ok {
		return fmt.Errorf("frame codec: cannot unmarshal into %T", msg)
	}
	frame.Payload = slices.Clone(data)
	return nil
}

// ConnectStream is a Stream over connect unary calls, one procedure per
// request kind. A call runs on its own goroutine under the stream's lifetime,
// not the sender's context, so a sent request is never withdrawn when the
// caller stops waiting. Close cancels calls still in flight.
type ConnectStream struct {
	name    string
	clients map[protocol.MessageType]*connect.Client[Frame, Frame]

	logger   *slog.Logger
	observer observability.Observer
	metrics  *Metrics

	mu     sync.Mutex
	closed bool
	calls  sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewConnectStream(httpClient connect.HTTPClient, baseURL string, cfg Config, opts ...connect.ClientOption) *ConnectStream {
	defaults := DefaultConfig()
	defaults.Merge(&cfg)

	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(frameCodec{})}, opts...)

	clients := make(map[protocol.MessageType]*connect.Client[Frame, Frame], len(procedures))
	for kind, procedure := range procedures {
		clients[kind] = connect.NewClient[Frame, Frame](httpClient, baseURL+procedure, opts...)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ConnectStream{
		name:     defaults.Name,
		clients:  clients,
		logger:   defaults.Logger,
		observer: observability.Resolve(defaults.Observer, observability.NoOpObserver{}),
		metrics:  NewMetrics(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *ConnectStream) Send(ctx context.Context, kind protocol.MessageType, payload []byte) *Future {
	client, ok := s.clients[kind]
	if !ok {
		return Failed(fmt.Errorf("%w: %s", ErrUnknownMessageType, kind))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Failed(ErrClosed)
	}
	s.calls.Add(1)
	s.mu.Unlock()

	frame := NewFrame(kind, payload)
	future := NewFuture()
	s.metrics.RecordSent()

	s.observer.OnEvent(ctx, observability.NewEvent(EventSend, observability.LevelVerbose, "stream.ConnectStream", map[string]any{
		"stream":         s.name,
		"correlation_id": frame.CorrelationID,
		"type":           kind.String(),
		"size":           len(payload),
	}))

	go s.call(client, frame, future)

	return future
}

func (s *ConnectStream) call(client *connect.Client[Frame, Frame], frame *Frame, future *Future) {
	defer s.calls.Done()

	req := connect.NewRequest(frame)
	req.Header().Set(CorrelationHeader, frame.CorrelationID)

	resp, err := client.CallUnary(s.ctx, req)
	if err != nil {
		if s.ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrClosed, err)
		}
		future.Fail(fmt.Errorf("%s %s: %w", frame.Type, frame.CorrelationID, err))
		s.metrics.RecordFailed()
		s.logger.DebugContext(
			s.ctx,
			"connect call failed",
			slog.String("stream", s.name),
			slog.String("correlation_id", frame.CorrelationID),
			slog.String("error", err.Error()),
		)
		return
	}

	if echoed := resp.Header().Get(CorrelationHeader); echoed != "" && echoed != frame.CorrelationID {
		future.Fail(fmt.Errorf("%s: reply correlated to %s, want %s", frame.Type, echoed, frame.CorrelationID))
		s.metrics.RecordFailed()
		return
	}

	future.Resolve(resp.Msg.Payload)
	s.metrics.RecordResolved()

	s.observer.OnEvent(s.ctx, observability.NewEvent(EventReply, observability.LevelVerbose, "stream.ConnectStream", map[string]any{
		"stream":         s.name,
		"correlation_id": frame.CorrelationID,
		"type":           frame.Type.String(),
	}))
}

func (s *ConnectStream) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// Close cancels in-flight calls and waits for them to settle their Futures.
func (s *ConnectStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.calls.Wait()

	s.observer.OnEvent(context.Background(), observability.NewEvent(EventClosed, observability.LevelInfo, "stream.ConnectStream", map[string]any{
		"stream": s.name,
	}))
	return nil
}

// NewConnectHandler serves handler as the state context connect service. It
// returns the path prefix to mount the handler on.
func NewConnectHandler(handler Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(frameCodec{})}, opts...)

	mux := http.NewServeMux()
	for kind, procedure := range procedures {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, unaryHandler(handler, kind), opts...))
	}
	return "/" + ServiceName + "/", mux
}

func unaryHandler(handler Handler, kind protocol.MessageType) func(context.Context, *connect.Request[Frame]) (*connect.Response[Frame], error) {
	replyType, _ := kind.ResponseType()

	return func(ctx context.Context, req *connect.Request[Frame]) (*connect.Response[Frame], error) {
		correlationID := req.Header().Get(CorrelationHeader)

		reply, err := handler(ctx, kind, req.Msg.Payload)
		if errors.Is(err, ErrNoReply) {
			<-ctx.Done()
			return nil, connect.NewError(connect.CodeCanceled, ctx.Err())
		}
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}

		resp := connect.NewResponse(&Frame{
			CorrelationID: correlationID,
			Type:          replyType,
			Payload:       reply,
		})
		if correlationID != "" {
			resp.Header().Set(CorrelationHeader, correlationID)
		}
		return resp, nil
	}
}
