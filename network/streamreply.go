package network

import (
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-msgio"
	logger "github.com/sirupsen/logrus"

	"github.com/phoreproject/xchain/intercom"
	"github.com/phoreproject/xchain/primitives"
)

// replyStream is the part of a libp2p stream a streamReply writes to.
type replyStream interface {
	io.WriteCloser
	Reset() error
	SetWriteDeadline(time.Time) error
}

// streamReply answers a block request on the stream it came from. A write
// error resets the stream and drops the rest of the answer. Every frame must
// be written within timeout, so a peer that stops reading only loses its own
// answer.
type streamReply struct {
	stream  replyStream
	writer  msgio.Writer
	timeout time.Duration

	lock sync.Mutex
	done bool
}

func newStreamReply(stream replyStream, timeout time.Duration) *streamReply {
	return &streamReply{
		stream:  stream,
		writer:  msgio.NewWriter(stream),
		timeout: timeout,
	}
}

func (s *streamReply) write(kind byte, payload []byte) bool {
	if s.done {
		return false
	}
	if err := s.stream.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		logger.WithError(err).Debug("could not set write deadline on block request stream")
	}
	if err := writeFrame(s.writer, kind, payload); err != nil {
		logger.WithError(err).Debug("could not write to block request stream")
		s.done = true
		_ = s.stream.Reset()
		return false
	}
	return true
}

func (s *streamReply) Send(block *primitives.Block) {
	data, err := block.Serialize()
	if err != nil {
		s.SendError(intercom.NewError(err))
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.write(frameBlock, data)
}

func (s *streamReply) SendError(err *intercom.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.write(frameError, []byte(err.Error()))
}

func (s *streamReply) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.write(frameEnd, nil) {
		return
	}
	s.done = true
	if err := s.stream.Close(); err != nil {
		logger.WithError(err).Debug("could not close block request stream")
	}
}
