package hub

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultStreamBuffer is the per-connection frame queue depth.
const DefaultStreamBuffer = 32

// Stream is a channel-backed Conn. The hub writes frames into it; the HTTP
// handler that owns the response drains Frames and stops when Done closes.
type Stream struct {
	id     string
	topic  Topic
	frames chan Frame
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewStream creates an open stream for topic. buffer <= 0 uses DefaultStreamBuffer.
func NewStream(topic Topic, buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultStreamBuffer
	}
	return &Stream{
		id:     uuid.NewString(),
		topic:  topic,
		frames: make(chan Frame, buffer),
		done:   make(chan struct{}),
	}
}

// ID returns the stream's process-unique id, a UUID.
func (s *Stream) ID() string { return s.id }

// Topic returns the topic this stream was opened for.
func (s *Stream) Topic() Topic { return s.topic }

// Frames delivers queued frames in write order.
func (s *Stream) Frames() <-chan Frame { return s.frames }

// Done is closed when the stream is closed by either side.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Write queues f without blocking. A full queue means the peer stopped
// reading; the stream is reported as failed so the broadcaster drops it.
func (s *Stream) Write(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrConnClosed
	}
	select {
	case s.frames <- f:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close marks the stream closed. Frames already queued stay readable.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ Conn = (*Stream)(nil)
