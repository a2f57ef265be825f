package extsort

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// Sorter sorts a stream of integers using a Store for temporary chunk files.
// A Sorter performs one run; its Stats belong to that run.
type Sorter struct {
	store  *Store
	source chunkSource
	opts   Options
	stats  Stats
}

// New creates a Sorter writing chunk files to store.
func New(store *Store, options ...Option) (*Sorter, error) {
	if store == nil {
		return nil, errors.New("extsort: store is required")
	}
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Sorter{store: store, source: store, opts: opts}, nil
}

// Stats returns the run's counters.
func (s *Sorter) Stats() *Stats {
	return &s.stats
}

// Options returns the effective options, after clamping.
func (s *Sorter) Options() Options {
	return s.opts
}

// SortChunks reads r, splits it into chunks of at most ChunkSize values, and
// sorts and persists each chunk on a bounded pool of workers. It returns the
// chunk files ordered by dispatch index once every worker has finished.
//
// A malformed token fails the run with a *ParseError; a chunk that cannot be
// written fails it with a *ChunkWriteError.
func (s *Sorter) SortChunks(ctx context.Context, r io.Reader) ([]ChunkInfo, error) {
	return s.sortChunks(ctx, NewTokenizer(r, s.opts.ReadBufferSize))
}

func (s *Sorter) sortChunks(ctx context.Context, tok *Tokenizer) ([]ChunkInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	// Go blocks while Workers chunks are in flight, so at most Workers+1
	// chunks are held in memory.
	g.SetLimit(s.opts.Workers)

	var (
		mu     sync.Mutex
		chunks []ChunkInfo
	)
	index := 0
	dispatch := func(chunk []int32) {
		idx := index
		index++
		g.Go(func() error {
			slices.Sort(chunk)
			info, err := s.store.WriteChunk(gctx, idx, chunk)
			if err != nil {
				return err
			}
			s.stats.chunks.Add(1)
			if glog.V(2) {
				glog.Infof("[extsort] chunk %d: %d values -> %s (%d bytes)", idx, info.Count, info.Object, info.Size)
			}

			mu.Lock()
			chunks = append(chunks, info)
			mu.Unlock()
			return nil
		})
	}

	var readErr error
	chunk := make([]int32, 0, s.initialChunkCap())
	for gctx.Err() == nil {
		v, err := tok.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				readErr = err
			} else {
				readErr = &InputReadError{Source: tok.source, Err: err}
			}
			break
		}
		chunk = append(chunk, v)
		s.stats.read.Add(1)

		if len(chunk) >= s.opts.ChunkSize {
			dispatch(chunk)
			chunk = make([]int32, 0, s.initialChunkCap())
		}
	}
	if readErr == nil && gctx.Err() == nil && len(chunk) > 0 {
		dispatch(chunk)
	}
	if readErr != nil {
		cancel()
	}

	werr := s.wait(g)
	switch {
	case readErr != nil:
		return nil, readErr
	case werr != nil:
		return nil, werr
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}

	slices.SortFunc(chunks, func(a, b ChunkInfo) int {
		return cmp.Compare(a.Index, b.Index)
	})
	glog.V(1).Infof("[extsort] sorted %d values into %d chunks", s.stats.NumbersRead(), len(chunks))
	return chunks, nil
}

// wait joins the sorter pool, giving up after SortTimeout.
func (s *Sorter) wait(g *errgroup.Group) error {
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	timer := time.NewTimer(s.opts.SortTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrSortTimeout, s.opts.SortTimeout)
	}
}

// initialChunkCap avoids reserving a full chunk up front for tiny inputs.
func (s *Sorter) initialChunkCap() int {
	return min(s.opts.ChunkSize, 64*1024)
}
