package state_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/tailored-agentic-units/statecontext/observability"
	"github.com/tailored-agentic-units/statecontext/protocol"
	"github.com/tailored-agentic-units/statecontext/state"
	"github.com/tailored-agentic-units/statecontext/stream"
	"github.com/tailored-agentic-units/statecontext/stream/mock"
)

// --- Test helpers ---

const testWait = 100 * time.Millisecond

func getResponse(entries ...protocol.Entry) []byte {
	resp := protocol.GetResponse{Entries: entries, Status: protocol.StatusOK}
	return resp.Marshal()
}

func setResponse(addresses ...string) []byte {
	resp := protocol.SetResponse{Addresses: addresses, Status: protocol.StatusOK}
	return resp.Marshal()
}

func newAccessor(s stream.Stream, opts ...state.Option) *state.Accessor {
	opts = append([]state.Option{
		state.WithWaitTimeout(testWait),
		state.WithObserver(observability.NoOpObserver{}),
	}, opts...)
	return state.New(s, "ctx-1", opts...)
}

func decodeGetRequest(t *testing.T, s *mock.Stream) protocol.GetRequest {
	t.Helper()
	call, ok := s.LastCall()
	if !ok {
		t.Fatal("no call recorded")
	}
	if call.Kind != protocol.MessageTypeGetRequest {
		t.Fatalf("call kind = %v, want %v", call.Kind, protocol.MessageTypeGetRequest)
	}
	var req protocol.GetRequest
	if err := req.Unmarshal(call.Payload); err != nil {
		t.Fatalf("GetRequest.Unmarshal() error = %v", err)
	}
	return req
}

func decodeSetRequest(t *testing.T, s *mock.Stream) protocol.SetRequest {
	t.Helper()
	call, ok := s.LastCall()
	if !ok {
		t.Fatal("no call recorded")
	}
	if call.Kind != protocol.MessageTypeSetRequest {
		t.Fatalf("call kind = %v, want %v", call.Kind, protocol.MessageTypeSetRequest)
	}
	var req protocol.SetRequest
	if err := req.Unmarshal(call.Payload); err != nil {
		t.Fatalf("SetRequest.Unmarshal() error = %v", err)
	}
	return req
}

func assertInternalError(t *testing.T, err error) *state.InternalError {
	t.Helper()
	if err == nil {
		t.Fatal("error = nil, want *InternalError")
	}
	var internal *state.InternalError
	if !errors.As(err, &internal) {
		t.Fatalf("error = %T (%v), want *InternalError", err, err)
	}
	if !errors.Is(err, state.ErrInternal) {
		t.Errorf("errors.Is(err, ErrInternal) = false for %v", err)
	}
	if internal.Message == "" {
		t.Error("InternalError.Message is empty, want cause description")
	}
	return internal
}

type captureObserver struct {
	mu     sync.Mutex
	events []observability.Event
}

func (c *captureObserver) OnEvent(_ context.Context, event observability.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureObserver) Types() []observability.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]observability.EventType, len(c.events))
	for i, e := range c.events {
		types[i] = e.Type
	}
	return types
}

// --- Get ---

func TestAccessor_Get_FirstWindow(t *testing.T) {
	s := mock.NewStream(mock.WithReply(getResponse(
		protocol.Entry{Address: "a1", Data: []byte("v1")},
		protocol.Entry{Address: "a2", Data: []byte("v2")},
	)))
	a := newAccessor(s)

	got, err := a.Get(context.Background(), []string{"a1", "a2", "a3"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := map[string][]byte{"a1": []byte("v1"), "a2": []byte("v2")}
	if len(got) != len(want) {
		t.Fatalf("Get() returned %d entries, want %d: %v", len(got), len(want), got)
	}
	for addr, data := range want {
		if !bytes.Equal(got[addr], data) {
			t.Errorf("Get()[%q] = %q, want %q", addr, got[addr], data)
		}
	}
	if _, ok := got["a3"]; ok {
		t.Error("Get() contains a3, want absent (no stored value)")
	}

	if s.SendCount() != 1 {
		t.Errorf("SendCount() = %d, want 1", s.SendCount())
	}
	req := decodeGetRequest(t, s)
	if req.ContextID != "ctx-1" {
		t.Errorf("request ContextID = %q, want %q", req.ContextID, "ctx-1")
	}
	if !slices.Equal(req.Addresses, []string{"a1", "a2", "a3"}) {
		t.Errorf("request Addresses = %v, want [a1 a2 a3]", req.Addresses)
	}
}

func TestAccessor_Get_SecondWindow(t *testing.T) {
	obs := &captureObserver{}
	s := mock.NewStream(mock.WithDelayedReply(
		getResponse(protocol.Entry{Address: "a1", Data: []byte("slow")}),
		testWait+testWait/2,
	))
	a := newAccessor(s, state.WithObserver(obs))

	got, err := a.Get(context.Background(), []string{"a1"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got["a1"]) != "slow" {
		t.Errorf("Get()[a1] = %q, want %q", got["a1"], "slow")
	}
	if s.SendCount() != 1 {
		t.Errorf("SendCount() = %d, want 1 (wait is retried, request is not)", s.SendCount())
	}
	if !slices.Contains(obs.Types(), state.EventWaitRetry) {
		t.Errorf("events = %v, want %s", obs.Types(), state.EventWaitRetry)
	}
}

func TestAccessor_Get_NeitherWindow(t *testing.T) {
	s := mock.NewStream()
	a := newAccessor(s)

	start := time.Now()
	got, err := a.Get(context.Background(), []string{"a1"})
	elapsed := time.Since(start)

	assertInternalError(t, err)
	if !errors.Is(err, stream.ErrTimeout) {
		t.Errorf("Get() error = %v, want to wrap ErrTimeout", err)
	}
	if got != nil {
		t.Errorf("Get() = %v, want nil on failure", got)
	}
	if elapsed < 2*testWait {
		t.Errorf("Get() returned after %v, want >= %v (two waits)", elapsed, 2*testWait)
	}
	if s.SendCount() != 1 {
		t.Errorf("SendCount() = %d, want 1", s.SendCount())
	}
}

func TestAccessor_Get_Empty(t *testing.T) {
	s := mock.NewStream(mock.WithReply(getResponse()))
	a := newAccessor(s)

	got, err := a.Get(context.Background(), nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Get() = %v, want empty non-nil map", got)
	}

	req := decodeGetRequest(t, s)
	if len(req.Addresses) != 0 {
		t.Errorf("request Addresses = %v, want empty", req.Addresses)
	}
}

func TestAccessor_Get_EmptyReplyPayload(t *testing.T) {
	s := mock.NewStream(mock.WithReply(nil))
	a := newAccessor(s)

	got, err := a.Get(context.Background(), []string{"a1"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Get() = %v, want empty map", got)
	}
}

func TestAccessor_Get_DuplicateAddressesPassedThrough(t *testing.T) {
	s := mock.NewStream(mock.WithReply(getResponse(protocol.Entry{Address: "a1", Data: []byte("v")})))
	a := newAccessor(s)

	if _, err := a.Get(context.Background(), []string{"a1", "a1"}); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	req := decodeGetRequest(t, s)
	if !slices.Equal(req.Addresses, []string{"a1", "a1"}) {
		t.Errorf("request Addresses = %v, want [a1 a1]", req.Addresses)
	}
}

// --- Set ---

func TestAccessor_Set_PreservesOrder(t *testing.T) {
	s := mock.NewStream(mock.WithReply(setResponse("a1", "a2")))
	a := newAccessor(s)

	entries := []state.Entry{
		{Address: "a1", Data: []byte("v1")},
		{Address: "a2", Data: []byte("v2")},
	}
	if _, err := a.Set(context.Background(), entries); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	req := decodeSetRequest(t, s)
	if req.ContextID != "ctx-1" {
		t.Errorf("request ContextID = %q, want %q", req.ContextID, "ctx-1")
	}
	if len(req.Entries) != len(entries) {
		t.Fatalf("request has %d entries, want %d", len(req.Entries), len(entries))
	}
	for i, want := range entries {
		got := req.Entries[i]
		if got.Address != want.Address || !bytes.Equal(got.Data, want.Data) {
			t.Errorf("request Entries[%d] = %+v, want %+v", i, got, want)
		}
	}
}

func TestAccessor_Set_DuplicatesNotCollapsed(t *testing.T) {
	s := mock.NewStream(mock.WithReply(setResponse("a1")))
	a := newAccessor(s)

	_, err := a.Set(context.Background(), []state.Entry{
		{Address: "a1", Data: []byte("first")},
		{Address: "a1", Data: []byte("second")},
	})
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	req := decodeSetRequest(t, s)
	if len(req.Entries) != 2 {
		t.Fatalf("request has %d entries, want 2", len(req.Entries))
	}
	if string(req.Entries[0].Data) != "first" || string(req.Entries[1].Data) != "second" {
		t.Errorf("request Entries = %+v, want first then second", req.Entries)
	}
}

func TestAccessor_Set_PartialWrite(t *testing.T) {
	s := mock.NewStream(mock.WithReply(setResponse("a1")))
	a := newAccessor(s)

	got, err := a.Set(context.Background(), []state.Entry{
		{Address: "a1", Data: []byte("v1")},
		{Address: "a2", Data: []byte("v2")},
	})
	if err != nil {
		t.Fatalf("Set() error = %v, want nil for partial application", err)
	}
	if !slices.Equal(got, []string{"a1"}) {
		t.Errorf("Set() = %v, want [a1]", got)
	}
}

func TestAccessor_Set_EmptyResponse(t *testing.T) {
	s := mock.NewStream(mock.WithReply(nil))
	a := newAccessor(s)

	got, err := a.Set(context.Background(), []state.Entry{{Address: "a1"}})
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Set() = %v, want empty non-nil slice", got)
	}
}

func TestAccessor_Set_SecondWindow(t *testing.T) {
	s := mock.NewStream(mock.WithDelayedReply(setResponse("a1"), testWait+testWait/2))
	a := newAccessor(s)

	got, err := a.Set(context.Background(), []state.Entry{{Address: "a1", Data: []byte("v")}})
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !slices.Equal(got, []string{"a1"}) {
		t.Errorf("Set() = %v, want [a1]", got)
	}
	if s.SendCount() != 1 {
		t.Errorf("SendCount() = %d, want 1", s.SendCount())
	}
}

// --- Failure classification ---

func TestAccessor_FailuresAreInternalErrors(t *testing.T) {
	cause := errors.New("validator went away")

	tests := []struct {
		name   string
		opts   []mock.Option
		ctx    func() (context.Context, context.CancelFunc)
		target error
	}{
		{
			name:   "double timeout",
			target: stream.ErrTimeout,
		},
		{
			name:   "execution failure",
			opts:   []mock.Option{mock.WithFailure(cause)},
			target: cause,
		},
		{
			name:   "malformed reply",
			opts:   []mock.Option{mock.WithReply([]byte{0x0a, 0x05, 'a'})},
			target: protocol.ErrMalformed,
		},
		{
			name: "interrupted wait",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
			target: stream.ErrInterrupted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/get", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			if tt.ctx != nil {
				ctx, cancel = tt.ctx()
			}
			defer cancel()

			s := mock.NewStream(tt.opts...)
			_, err := newAccessor(s).Get(ctx, []string{"a1"})

			assertInternalError(t, err)
			if !errors.Is(err, tt.target) {
				t.Errorf("Get() error = %v, want to wrap %v", err, tt.target)
			}
			if s.SendCount() != 1 {
				t.Errorf("SendCount() = %d, want 1", s.SendCount())
			}
		})

		t.Run(tt.name+"/set", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			if tt.ctx != nil {
				ctx, cancel = tt.ctx()
			}
			defer cancel()

			s := mock.NewStream(tt.opts...)
			_, err := newAccessor(s).Set(ctx, []state.Entry{{Address: "a1", Data: []byte("v")}})

			assertInternalError(t, err)
			if !errors.Is(err, tt.target) {
				t.Errorf("Set() error = %v, want to wrap %v", err, tt.target)
			}
			if s.SendCount() != 1 {
				t.Errorf("SendCount() = %d, want 1", s.SendCount())
			}
		})
	}
}

func TestAccessor_InterruptedDuringSecondWait(t *testing.T) {
	s := mock.NewStream()
	a := newAccessor(s)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(testWait+testWait/2, cancel)
	defer cancel()

	_, err := a.Get(ctx, []string{"a1"})

	assertInternalError(t, err)
	if !errors.Is(err, stream.ErrInterrupted) {
		t.Errorf("Get() error = %v, want to wrap ErrInterrupted", err)
	}
}

func TestAccessor_MalformedReplyMatchesOtherKind(t *testing.T) {
	// A SetResponse with one address decodes as a GetResponse field 1 holding
	// an Entry whose bytes are "a1": tag 0x61 is field 12 with wire type 1,
	// which needs eight bytes and is truncated.
	s := mock.NewStream(mock.WithReply(setResponse("a1")))

	_, err := newAccessor(s).Get(context.Background(), []string{"a1"})
	assertInternalError(t, err)
}

func TestAccessor_NilStream(t *testing.T) {
	a := state.New(nil, "ctx-1", state.WithObserver(observability.NoOpObserver{}))

	_, err := a.Get(context.Background(), []string{"a1"})
	assertInternalError(t, err)

	_, err = a.Set(context.Background(), nil)
	assertInternalError(t, err)
}

func TestAccessor_ContextID(t *testing.T) {
	a := state.New(mock.NewStream(), "ctx-42")
	if got := a.ContextID(); got != "ctx-42" {
		t.Errorf("ContextID() = %q, want %q", got, "ctx-42")
	}
}

func TestAccessor_Events(t *testing.T) {
	obs := &captureObserver{}
	s := mock.NewStream(mock.WithReply(setResponse("a1")))
	a := newAccessor(s, state.WithObserver(obs))

	if _, err := a.Set(context.Background(), []state.Entry{{Address: "a1"}}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	want := []observability.EventType{state.EventSetStart, state.EventSetComplete}
	if got := obs.Types(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestAccessor_SlogObserverLogsRetry(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s := mock.NewStream(mock.WithDelayedReply(getResponse(), testWait+testWait/2))

	a := newAccessor(s, state.WithObserver(observability.NewSlogObserver(logger)))
	if _, err := a.Get(context.Background(), []string{"a1"}); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if !bytes.Contains(buf.Bytes(), []byte(state.EventWaitRetry)) {
		t.Errorf("log output missing %s: %s", state.EventWaitRetry, buf.String())
	}
}

// --- Shared stream ---

func TestAccessor_ConcurrentContextsShareStream(t *testing.T) {
	handler := func(ctx context.Context, kind protocol.MessageType, payload []byte) ([]byte, error) {
		var req protocol.GetRequest
		if err := req.Unmarshal(payload); err != nil {
			return nil, err
		}
		entries := make([]protocol.Entry, 0, len(req.Addresses))
		for _, addr := range req.Addresses {
			entries = append(entries, protocol.Entry{Address: addr, Data: []byte(req.ContextID)})
		}
		resp := protocol.GetResponse{Entries: entries}
		return resp.Marshal(), nil
	}

	d := stream.NewDispatcher(context.Background(), stream.Config{
		Observer: "noop",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, handler)
	defer d.Shutdown(time.Second)

	const contexts = 20
	var wg sync.WaitGroup
	errs := make(chan error, contexts)

	for i := 0; i < contexts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			contextID := fmt.Sprintf("ctx-%d", i)
			a := state.New(d, contextID, state.WithObserver(observability.NoOpObserver{}))

			got, err := a.Get(context.Background(), []string{"shared"})
			if err != nil {
				errs <- err
				return
			}
			if string(got["shared"]) != contextID {
				errs <- fmt.Errorf("%s read %q", contextID, got["shared"])
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
