package extsort

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/lanrat/extsort/queue"

	"github.com/ligustah/numsort/internal/retry"
)

// ctxCheckInterval is how many values are merged between context checks.
const ctxCheckInterval = 1 << 16

// MergeResult describes a completed merge.
type MergeResult struct {
	Written  int64   // values written to the output
	Chunks   int     // chunk files produced by the sort phase
	Passes   int     // intermediate passes needed to bring the fan-in under MaxOpenFiles
	Warnings []error // *CleanupWarning for chunk files that could not be removed
}

// chunkSource opens chunk files for reading. *Store satisfies it.
type chunkSource interface {
	Open(ctx context.Context, info ChunkInfo) (io.ReadCloser, error)
}

// cursor is the merge-side reader of one chunk file; value holds its
// smallest unread number.
type cursor struct {
	info  ChunkInfo
	rc    io.ReadCloser
	tok   *Tokenizer
	value int32
	seen  int64
}

// advance loads the next value. It returns false once the chunk is exhausted.
func (c *cursor) advance() (bool, error) {
	v, err := c.tok.Next()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.value = v
	c.seen++
	return true, nil
}

func (c *cursor) close() error {
	if c.rc == nil {
		return nil
	}
	err := c.rc.Close()
	c.rc = nil
	return err
}

func newCursorQueue() *queue.PriorityQueue[*cursor] {
	return queue.NewPriorityQueue(func(a, b *cursor) int {
		return cmp.Compare(a.value, b.value)
	})
}

// Merge performs a k-way merge of sorted chunk files into w with at most
// MaxOpenFiles chunk files open at once. While more chunks remain than that,
// consecutive groups of MaxOpenFiles are first merged into new chunk files in
// the store. Consumed chunk files are deleted unless KeepTemps is set.
//
// Values are written separated by single spaces with no trailing delimiter.
func (s *Sorter) Merge(ctx context.Context, chunks []ChunkInfo, w io.Writer) (*MergeResult, error) {
	result := &MergeResult{Chunks: len(chunks)}

	var expected int64
	for _, c := range chunks {
		expected += c.Count
	}

	for len(chunks) > s.opts.MaxOpenFiles {
		next, err := s.mergePass(ctx, chunks, result)
		if err != nil {
			return nil, err
		}
		result.Passes++
		glog.V(1).Infof("[extsort] merge pass %d: %d chunks -> %d", result.Passes, len(chunks), len(next))
		chunks = next
	}

	glog.V(1).Infof("[extsort] merging %d chunks into output", len(chunks))
	bw := bufio.NewWriterSize(w, s.opts.WriteBufferSize)
	written, err := s.mergeRun(ctx, chunks, bw, &s.stats.written, func(info ChunkInfo) {
		s.removeChunk(ctx, info, result)
	})
	if err != nil {
		var re *MergeReadError
		if errors.As(err, &re) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &MergeWriteError{Err: err}
	}
	if err := bw.Flush(); err != nil {
		return nil, &MergeWriteError{Err: err}
	}
	if written != expected {
		return nil, fmt.Errorf("%w: wrote %d, chunks hold %d", ErrCountMismatch, written, expected)
	}

	result.Written = written
	return result, nil
}

// mergePass merges consecutive groups of MaxOpenFiles chunks into one new
// chunk file each and returns the new chunk list in the same order. Inputs are
// removed only after the chunk that replaces them is committed, so a failed
// write can be retried from the same inputs.
func (s *Sorter) mergePass(ctx context.Context, chunks []ChunkInfo, result *MergeResult) ([]ChunkInfo, error) {
	fanIn := s.opts.MaxOpenFiles
	next := make([]ChunkInfo, 0, (len(chunks)+fanIn-1)/fanIn)

	for start := 0; start < len(chunks); start += fanIn {
		group := chunks[start:min(start+fanIn, len(chunks))]
		if len(group) == 1 {
			next = append(next, group[0])
			continue
		}

		var count int64
		for _, c := range group {
			count += c.Count
		}

		info, err := s.store.writeChunkFunc(ctx, len(next), func(w io.Writer) (int64, error) {
			n, err := s.mergeRun(ctx, group, w, nil, nil)
			if err != nil {
				var re *MergeReadError
				if errors.As(err, &re) {
					return n, retry.Permanent(err)
				}
				return n, err
			}
			if n != count {
				return n, retry.Permanent(&MergeReadError{
					Object: group[0].Object,
					Err:    fmt.Errorf("%w: merged %d values, group holds %d", ErrCountMismatch, n, count),
				})
			}
			return n, nil
		})
		if err != nil {
			var re *MergeReadError
			if errors.As(err, &re) {
				return nil, re
			}
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, &MergeWriteError{Path: info.Object, Err: err}
		}
		if glog.V(2) {
			glog.Infof("[extsort] merged %d chunks -> %s (%d values)", len(group), info.Object, info.Count)
		}

		for _, c := range group {
			s.removeChunk(ctx, c, result)
		}
		next = append(next, info)
	}
	return next, nil
}

// mergeRun merges chunks, which must number at most MaxOpenFiles, into w and
// returns the number of values written. counter, when set, is advanced per
// value. done, when set, is called for each chunk once it has been read to
// the end and its count checked.
func (s *Sorter) mergeRun(ctx context.Context, chunks []ChunkInfo, w io.Writer, counter *atomic.Int64, done func(ChunkInfo)) (int64, error) {
	pq := newCursorQueue()
	cursors := make([]*cursor, 0, len(chunks))
	defer func() {
		for _, c := range cursors {
			c.close()
		}
	}()

	finish := func(c *cursor) error {
		if err := c.close(); err != nil {
			return &MergeReadError{Object: c.info.Object, Err: err}
		}
		if c.seen != c.info.Count {
			return &MergeReadError{
				Object: c.info.Object,
				Err:    fmt.Errorf("%w: read %d values, expected %d", ErrCountMismatch, c.seen, c.info.Count),
			}
		}
		if done != nil {
			done(c.info)
		}
		return nil
	}

	for _, info := range chunks {
		rc, err := s.source.Open(ctx, info)
		if err != nil {
			return 0, &MergeReadError{Object: info.Object, Err: err}
		}
		c := &cursor{
			info: info,
			rc:   rc,
			tok:  NewTokenizer(rc, s.opts.MergeBufferSize).Named(info.Object),
		}
		cursors = append(cursors, c)

		more, err := c.advance()
		if err != nil {
			return 0, &MergeReadError{Object: info.Object, Err: err}
		}
		if more {
			pq.Push(c)
			continue
		}
		if err := finish(c); err != nil {
			return 0, err
		}
	}

	scratch := make([]byte, 0, 12)
	var written int64
	for pq.Len() > 0 {
		if written%ctxCheckInterval == 0 && ctx.Err() != nil {
			return written, ctx.Err()
		}

		c := pq.Peek()
		scratch = scratch[:0]
		if written > 0 {
			scratch = append(scratch, ' ')
		}
		scratch = strconv.AppendInt(scratch, int64(c.value), 10)
		if _, err := w.Write(scratch); err != nil {
			return written, err
		}
		written++
		if counter != nil {
			counter.Add(1)
		}

		more, err := c.advance()
		if err != nil {
			return written, &MergeReadError{Object: c.info.Object, Err: err}
		}
		if more {
			pq.PeekUpdate()
			continue
		}
		pq.Pop()
		if err := finish(c); err != nil {
			return written, err
		}
	}
	return written, nil
}

// removeChunk deletes a consumed chunk file, recording a failure as a
// CleanupWarning.
func (s *Sorter) removeChunk(ctx context.Context, info ChunkInfo, result *MergeResult) {
	if s.opts.KeepTemps {
		return
	}
	if err := s.store.Remove(ctx, info); err != nil {
		warning := &CleanupWarning{Object: info.Object, Err: err}
		result.Warnings = append(result.Warnings, warning)
		glog.Warning(warning)
	}
}
