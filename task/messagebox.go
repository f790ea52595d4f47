package task

import (
	"sync"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

// ErrNoMessageBox is returned when sending to an unset message box.
var ErrNoMessageBox = errors.New("message box is not set")

// ErrClosed is returned when sending to a task that was closed.
var ErrClosed = errors.New("message box is closed")

type envelope[M any] struct {
	msg M
}

type closeMarker struct{}

// mailbox is an unbounded FIFO queue drained into an unbuffered channel by a
// single goroutine, so messages come out in the order they were put in.
// Nothing is put after the close marker.
type mailbox[M any] struct {
	name  string
	queue *queue.Queue
	out   chan M

	lock   sync.Mutex
	closed bool
}

func newMailbox[M any](name string) *mailbox[M] {
	mb := &mailbox[M]{
		name:  name,
		queue: queue.New(16),
		out:   make(chan M),
	}
	go mb.pump()
	return mb
}

func (mb *mailbox[M]) pump() {
	defer close(mb.out)
	for {
		items, err := mb.queue.Get(1)
		if err != nil {
			return
		}

		switch item := items[0].(type) {
		case envelope[M]:
			mb.out <- item.msg
		case closeMarker:
			mb.queue.Dispose()
			return
		}
	}
}

func (mb *mailbox[M]) put(msg M) error {
	mb.lock.Lock()
	defer mb.lock.Unlock()
	if mb.closed {
		return ErrClosed
	}

	err := mb.queue.Put(envelope[M]{msg: msg})
	if err == queue.ErrDisposed {
		return ErrClosed
	}
	return err
}

func (mb *mailbox[M]) close() {
	mb.lock.Lock()
	defer mb.lock.Unlock()
	if mb.closed {
		logger.WithField("task", mb.name).Debug("message box already closed")
		return
	}
	mb.closed = true

	if err := mb.queue.Put(closeMarker{}); err != nil {
		logger.WithField("task", mb.name).WithError(err).Warn("could not close message box")
	}
}

// MessageBox is the sending end of a task's inbound channel. It is a small
// value that can be copied and handed to any number of other tasks.
type MessageBox[M any] struct {
	mailbox *mailbox[M]
}

// Send queues a message for the task. It never blocks.
func (b MessageBox[M]) Send(msg M) error {
	if b.mailbox == nil {
		return ErrNoMessageBox
	}
	return b.mailbox.put(msg)
}

// SendOrLog sends a message and logs if it could not be queued.
func (b MessageBox[M]) SendOrLog(msg M) {
	if err := b.Send(msg); err != nil {
		name := ""
		if b.mailbox != nil {
			name = b.mailbox.name
		}
		logger.WithFields(logger.Fields{
			"task":  name,
			"error": err,
		}).Warn("could not send message to task")
	}
}

// IsSet returns true if the message box points to a task.
func (b MessageBox[M]) IsSet() bool {
	return b.mailbox != nil
}
