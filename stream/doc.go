// Package stream provides the asynchronous request/response channel the state
// accessor sends its requests over.
//
// A Stream accepts a typed payload and returns a Future that settles once the
// peer's reply is matched to the request:
//
//	future := s.Send(ctx, protocol.MessageTypeGetRequest, req.Marshal())
//	payload, err := future.Await(ctx, 2*time.Second)
//
// Await may be called any number of times on the same Future; each call is an
// independent bounded wait on the one outstanding exchange. A Future whose
// peer never replies never settles.
//
// # Implementations
//
// Dispatcher is an in-process Stream. Frames are queued to a Handler and the
// handler's reply completes the pending Future by correlation ID. A handler
// that returns ErrNoReply models a peer that silently drops the request.
//
//	d := stream.NewDispatcher(ctx, stream.DefaultConfig(), handler)
//	defer d.Shutdown(5 * time.Second)
//
// ConnectStream carries frames as connect unary calls. NewConnectHandler
// serves a Handler to ConnectStream clients:
//
//	path, h := stream.NewConnectHandler(store.Handler())
//	mux.Handle(path, h)
//
//	s := stream.NewConnectStream(http.DefaultClient, "http://localhost:8080", stream.DefaultConfig())
//	defer s.Close()
//
// # Correlation
//
// Every outbound Frame carries a UUIDv7 correlation ID. Dispatcher keys its
// pending table by it; ConnectStream sends it in the X-Correlation-Id header
// and the handler echoes it back.
package stream
