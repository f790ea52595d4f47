package intercom

import (
	"context"
	"io"
	"sync"
)

// Reply answers a request with exactly one item or an error. Requests carry
// a Reply chosen by the caller, so the handler doesn't know how the answer
// travels back.
type Reply[T any] interface {
	ReplyOk(item T)
	ReplyError(err *Error)
}

// StreamReply answers a request with any number of items. The producer ends
// the stream with Close.
type StreamReply[T any] interface {
	Send(item T)
	SendError(err *Error)
	Close()
}

// Respond calls ReplyError if err is set, otherwise ReplyOk.
func Respond[T any](r Reply[T], item T, err error) {
	if err != nil {
		r.ReplyError(NewError(err))
		return
	}
	r.ReplyOk(item)
}

type result[T any] struct {
	item T
	err  *Error
}

func (r result[T]) unpack() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.item, nil
}

// ReplyHandle is a Reply that delivers to an in-process ReplyFuture. Only the
// first answer is delivered.
type ReplyHandle[T any] struct {
	ch   chan result[T]
	once sync.Once
}

// ReplyOk implements Reply.
func (h *ReplyHandle[T]) ReplyOk(item T) {
	h.once.Do(func() { h.ch <- result[T]{item: item} })
}

// ReplyError implements Reply.
func (h *ReplyHandle[T]) ReplyError(err *Error) {
	h.once.Do(func() { h.ch <- result[T]{err: err} })
}

// ReplyFuture receives the answer sent through a ReplyHandle.
type ReplyFuture[T any] struct {
	ch chan result[T]
}

// Wait blocks until the answer arrives or ctx is done.
func (f *ReplyFuture[T]) Wait(ctx context.Context) (T, error) {
	select {
	case r := <-f.ch:
		return r.unpack()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// NewReplyFuture creates a connected reply handle and future.
func NewReplyFuture[T any]() (*ReplyHandle[T], *ReplyFuture[T]) {
	ch := make(chan result[T], 1)
	return &ReplyHandle[T]{ch: ch}, &ReplyFuture[T]{ch: ch}
}

// StreamHandle is a StreamReply that delivers to an in-process ReplyStream.
// The channel is closed by Close, or by the last pending send if Close was
// called while it was blocked.
type StreamHandle[T any] struct {
	ch      chan result[T]
	stop    <-chan struct{}
	lock    sync.Mutex
	closed  bool
	pending int
}

func (h *StreamHandle[T]) send(r result[T]) {
	h.lock.Lock()
	if h.closed {
		h.lock.Unlock()
		return
	}
	h.pending++
	h.lock.Unlock()

	select {
	case h.ch <- r:
	case <-h.stop:
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	h.pending--
	if h.closed && h.pending == 0 {
		close(h.ch)
	}
}

// Send implements StreamReply. It blocks while the stream buffer is full,
// until the receiver reads or stops.
func (h *StreamHandle[T]) Send(item T) {
	h.send(result[T]{item: item})
}

// SendError implements StreamReply.
func (h *StreamHandle[T]) SendError(err *Error) {
	h.send(result[T]{err: err})
}

// Close implements StreamReply. It does not wait for blocked sends.
func (h *StreamHandle[T]) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.pending == 0 {
		close(h.ch)
	}
}

// ReplyStream receives the items sent through a StreamHandle.
type ReplyStream[T any] struct {
	ch       chan result[T]
	stop     chan struct{}
	stopOnce sync.Once
}

// Next gets the next item of the stream. It returns io.EOF once the producer
// closed the stream.
func (s *ReplyStream[T]) Next(ctx context.Context) (T, error) {
	select {
	case r, ok := <-s.ch:
		if !ok {
			var zero T
			return zero, io.EOF
		}
		return r.unpack()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Stop tells the producer nobody is listening anymore. Further sends are
// dropped.
func (s *ReplyStream[T]) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// NewReplyStream creates a connected stream handle and receiver. buffer is the
// number of items the producer can send ahead of the receiver.
func NewReplyStream[T any](buffer int) (*StreamHandle[T], *ReplyStream[T]) {
	ch := make(chan result[T], buffer)
	stop := make(chan struct{})
	return &StreamHandle[T]{ch: ch, stop: stop}, &ReplyStream[T]{ch: ch, stop: stop}
}
