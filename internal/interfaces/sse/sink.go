package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

const writeTimeout = 10 * time.Second

// streamSink adapts one open SSE response into a registry sink. Frames
// are flushed immediately so the client sees them without buffering
// delay. Every write runs under a deadline: a peer that stops reading
// fills the transport buffer, the write fails instead of blocking the
// dispatch or heartbeat sweep, and the registry evicts the connection.
// Close does not tear down the HTTP response itself; it unblocks the
// handler goroutine, which returns and lets the server finish the
// stream.
type streamSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController

	mu   sync.Mutex
	once sync.Once
	done chan struct{}
}

func newStreamSink(w http.ResponseWriter, flusher http.Flusher) *streamSink {
	return &streamSink{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		done:    make(chan struct{}),
	}
}

func (s *streamSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return fmt.Errorf("stream closed")
	default:
	}

	// Bound the write, then clear the deadline so idle gaps between
	// events never count against the stream. Transports that do not
	// support deadlines write unbounded, as before.
	s.rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := s.w.Write(p); err != nil {
		return err
	}
	s.flusher.Flush()
	s.rc.SetWriteDeadline(time.Time{})
	return nil
}

func (s *streamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

// Done is closed when the sink is closed, typically because the registry
// evicted this connection.
func (s *streamSink) Done() <-chan struct{} {
	return s.done
}
