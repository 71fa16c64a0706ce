package inmemory

import (
	"sync"

	"github.com/fllarpy/perf-probe/domain"
)

const (
	// Default number of profile reports kept for the reporter.
	defaultReportBufferSize = 100
)

var _ domain.Store = (*Store)(nil)

// Store is a goroutine-safe in-memory store. It buffers frames per trace
// until the owning request completes and keeps the most recent reports.
type Store struct {
	mu      sync.Mutex
	pending map[string][]domain.Frame
	reports *ringBuffer[domain.Report]
}

// NewStore returns a ready-to-use Store instance.
func NewStore() *Store {
	return NewStoreWithSize(defaultReportBufferSize)
}

// NewStoreWithSize returns a Store that keeps at most size reports.
func NewStoreWithSize(size int) *Store {
	if size <= 0 {
		size = defaultReportBufferSize
	}
	return &Store{
		pending: make(map[string][]domain.Frame),
		reports: newRingBuffer[domain.Report](size),
	}
}

// AddFrame appends a frame to the trace's pending list.
func (s *Store) AddFrame(traceID string, frame domain.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[traceID] = append(s.pending[traceID], frame)
}

// TakeFrames returns the frames recorded for traceID and forgets them.
func (s *Store) TakeFrames(traceID string) []domain.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := s.pending[traceID]
	delete(s.pending, traceID)
	return frames
}

// PendingTraces returns how many traces still have frames waiting. Used by tests.
func (s *Store) PendingTraces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// AddReport stores a report, evicting the oldest one when the buffer is full.
func (s *Store) AddReport(report domain.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports.add(report)
}

// Reports returns a copy of the stored reports, oldest first.
func (s *Store) Reports() []domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports.getAll()
}

// --- Ring Buffer for Reports ---

// ringBuffer is a generic, thread-unsafe circular buffer.
// The locking must be handled by the parent (Store).
type ringBuffer[T any] struct {
	buffer []T
	size   int
	start  int
	count  int
}

func newRingBuffer[T any](size int) *ringBuffer[T] {
	return &ringBuffer[T]{
		buffer: make([]T, size),
		size:   size,
	}
}

// add inserts an element into the buffer, overwriting the oldest if full.
func (rb *ringBuffer[T]) add(item T) {
	index := (rb.start + rb.count) % rb.size
	rb.buffer[index] = item
	if rb.count < rb.size {
		rb.count++
	} else {
		rb.start = (rb.start + 1) % rb.size
	}
}

// getAll returns all elements in the buffer in order.
func (rb *ringBuffer[T]) getAll() []T {
	if rb.count == 0 {
		return nil
	}
	items := make([]T, rb.count)
	for i := 0; i < rb.count; i++ {
		items[i] = rb.buffer[(rb.start+i)%rb.size]
	}
	return items
}
