package queue

import "sync"

// ByteStream is a concurrency-safe FIFO of byte chunks that is read as one
// continuous stream. Writers never block; readers poll with Read and wait on
// Notify for new data.
type ByteStream struct {
	mu     sync.Mutex
	chunks Queue[[]byte]
	offset int // read offset into the head chunk
	size   int
	closed bool
	notify chan struct{}
}

// NewByteStream creates an empty stream.
func NewByteStream() *ByteStream {
	return &ByteStream{
		chunks: NewSliceQueue[[]byte](8),
		notify: make(chan struct{}, 1),
	}
}

// Write appends a copy of p. It returns false when the stream is closed.
func (s *ByteStream) Write(p []byte) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if len(p) > 0 {
		chunk := make([]byte, len(p))
		copy(chunk, p)
		s.chunks.Enqueue(chunk)
		s.size += len(p)
	}
	s.mu.Unlock()

	s.signal()

	return true
}

// Read copies buffered bytes into p and returns the count. closed reports
// that the stream was closed and no buffered bytes remain.
func (s *ByteStream) Read(p []byte) (n int, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n < len(p) {
		head, ok := s.chunks.Peek()
		if !ok {
			break
		}
		c := copy(p[n:], head[s.offset:])
		n += c
		s.offset += c
		if s.offset == len(head) {
			s.chunks.Dequeue()
			s.offset = 0
		}
	}
	s.size -= n

	return n, s.closed && s.size == 0
}

// Len returns the number of unread bytes.
func (s *ByteStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

// Close marks the stream closed. Buffered bytes stay readable.
func (s *ByteStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.signal()
}

// Notify returns a channel that receives after every Write and on Close.
// A single pending notification is kept; readers must re-check Read.
func (s *ByteStream) Notify() <-chan struct{} {
	return s.notify
}

func (s *ByteStream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
