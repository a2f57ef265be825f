package extsort

import "sync/atomic"

// Stats holds the monotonic counters of one run. All methods are safe for
// concurrent use; readers see values without further synchronization.
type Stats struct {
	read    atomic.Int64
	written atomic.Int64
	chunks  atomic.Int64
}

// NumbersRead returns how many values the chunk producer has parsed.
func (s *Stats) NumbersRead() int64 {
	return s.read.Load()
}

// NumbersWritten returns how many values the merge has emitted.
func (s *Stats) NumbersWritten() int64 {
	return s.written.Load()
}

// ChunksWritten returns how many chunk files the sorter pool has persisted.
func (s *Stats) ChunksWritten() int64 {
	return s.chunks.Load()
}
