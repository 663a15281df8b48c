package stream

import (
	"context"
	"sync/atomic"
)

// MessageChannel is a bounded queue bound to an owning context. Sends and
// receives fail once either the caller's or the owner's context ends.
type MessageChannel[T any] struct {
	channel chan T
	context context.Context
	closed  atomic.Int32
}

func NewMessageChannel[T any](ctx context.Context, bufferSize int) *MessageChannel[T] {
	return &MessageChannel[T]{
		channel: make(chan T, bufferSize),
		context: ctx,
	}
}

func (mc *MessageChannel[T]) Send(ctx context.Context, message T) error {
	if mc.IsClosed() {
		return ErrClosed
	}
	select {
	case mc.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mc.context.Done():
		return mc.context.Err()
	}
}

func (mc *MessageChannel[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case message := <-mc.channel:
		return message, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-mc.context.Done():
		return zero, mc.context.Err()
	}
}

// Close marks the channel closed. Buffered messages can still be drained.
func (mc *MessageChannel[T]) Close() {
	mc.closed.CompareAndSwap(0, 1)
}

func (mc *MessageChannel[T]) IsClosed() bool {
	return mc.closed.Load() == 1
}
