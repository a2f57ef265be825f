package extsort

import (
	"errors"
	"runtime"
	"time"

	"github.com/golang/glog"
)

const (
	// DefaultChunkSize is the default number of values per chunk.
	DefaultChunkSize = 10_000_000
	// DefaultMaxOpenFiles is the default merge fan-in.
	DefaultMaxOpenFiles = 500
	// DefaultWriteBufferSize is the default output buffer size.
	DefaultWriteBufferSize = 8 * 1024 * 1024
	// DefaultSortTimeout bounds the wait for the chunk sorter pool.
	DefaultSortTimeout = 24 * time.Hour

	// fdHeadroom is kept free for the input, output, logs and the runtime.
	fdHeadroom = 64
)

// Options configures a Sorter.
type Options struct {
	ChunkSize       int
	Workers         int
	MaxOpenFiles    int
	ReadBufferSize  int
	MergeBufferSize int
	WriteBufferSize int
	SortTimeout     time.Duration
	KeepTemps       bool
	Mmap            bool
}

// Option is a functional option for configuring a Sorter.
type Option func(*Options)

// WithChunkSize sets the maximum number of values per chunk.
func WithChunkSize(n int) Option {
	return func(o *Options) {
		o.ChunkSize = n
	}
}

// WithWorkers sets the number of parallel chunk sorters.
// Default: runtime.NumCPU()
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithMaxOpenFiles caps the number of chunk files open during the merge.
func WithMaxOpenFiles(n int) Option {
	return func(o *Options) {
		o.MaxOpenFiles = n
	}
}

// WithBufferSizes sets the read buffer for the primary input, the read buffer
// per open chunk file and the output write buffer. Zero keeps the default.
func WithBufferSizes(read, merge, write int) Option {
	return func(o *Options) {
		if read > 0 {
			o.ReadBufferSize = read
		}
		if merge > 0 {
			o.MergeBufferSize = merge
		}
		if write > 0 {
			o.WriteBufferSize = write
		}
	}
}

// WithSortTimeout bounds the wait for all chunks to be sorted and written.
func WithSortTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.SortTimeout = d
	}
}

// WithKeepTemps keeps chunk files after they are merged.
func WithKeepTemps(keep bool) Option {
	return func(o *Options) {
		o.KeepTemps = keep
	}
}

// WithMmap memory-maps the input file in SortFile instead of reading it.
func WithMmap(mmap bool) Option {
	return func(o *Options) {
		o.Mmap = mmap
	}
}

func defaultOptions() Options {
	return Options{
		ChunkSize:       DefaultChunkSize,
		Workers:         runtime.NumCPU(),
		MaxOpenFiles:    DefaultMaxOpenFiles,
		ReadBufferSize:  DefaultReadBufferSize,
		MergeBufferSize: DefaultMergeBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
		SortTimeout:     DefaultSortTimeout,
	}
}

// validate checks the options and clamps MaxOpenFiles to what the process
// may actually open.
func (o *Options) validate() error {
	if o.ChunkSize <= 0 {
		return errors.New("extsort: chunk size must be positive")
	}
	if o.Workers <= 0 {
		return errors.New("extsort: workers must be positive")
	}
	if o.MaxOpenFiles <= 0 {
		return errors.New("extsort: max open files must be positive")
	}
	if o.SortTimeout <= 0 {
		o.SortTimeout = DefaultSortTimeout
	}
	o.MaxOpenFiles = clampOpenFiles(o.MaxOpenFiles, openFileLimit())
	return nil
}

// clampOpenFiles limits n to the descriptor limit minus headroom, keeping at
// least two files so the merge can make progress.
func clampOpenFiles(n, limit int) int {
	if limit <= 0 {
		return n
	}
	allowed := limit - fdHeadroom
	if allowed < 2 {
		allowed = 2
	}
	if n > allowed {
		glog.Warningf("[extsort] max open files %d exceeds descriptor limit %d, using %d", n, limit, allowed)
		return allowed
	}
	return n
}
