package extsort

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Result describes a completed SortFile run.
type Result struct {
	Numbers       int64
	Chunks        int
	Warnings      []error
	SortDuration  time.Duration
	MergeDuration time.Duration
}

// PhaseHook is called when a phase of SortFile begins. total is the number of
// values the phase will process, or -1 if unknown.
type PhaseHook func(phase Phase, total int64)

// SortFile sorts the integers in the input file into output. The output is
// written next to its final path and renamed into place only after the merge
// succeeds, so a failed run never leaves a committed output file.
func (s *Sorter) SortFile(ctx context.Context, input, output string, hook PhaseHook) (*Result, error) {
	if hook == nil {
		hook = func(Phase, int64) {}
	}

	src, closeSrc, err := s.openInput(input)
	if err != nil {
		return nil, err
	}

	hook(PhaseSort, -1)
	start := time.Now()
	chunks, err := s.sortChunks(ctx, NewTokenizer(src, s.opts.ReadBufferSize).Named(input))
	closeSrc()
	if err != nil {
		return nil, err
	}
	sortDuration := time.Since(start)

	vr, err := s.store.Validate(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if !vr.Valid {
		return nil, &MergeReadError{
			Object: vr.FirstBad,
			Err:    fmt.Errorf("chunk validation failed: %d missing, %d size mismatches", vr.MissingChunks, vr.SizeMismatches),
		}
	}

	hook(PhaseMerge, vr.TotalCount)
	start = time.Now()
	mr, err := s.mergeToFile(ctx, chunks, output)
	if err != nil {
		return nil, err
	}

	return &Result{
		Numbers:       mr.Written,
		Chunks:        mr.Chunks,
		Warnings:      mr.Warnings,
		SortDuration:  sortDuration,
		MergeDuration: time.Since(start),
	}, nil
}

// openInput opens the input file, memory-mapping it when configured.
func (s *Sorter) openInput(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	if !s.opts.Mmap {
		return f, func() { f.Close() }, nil
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat input: %w", err)
	}
	if fi.Size() == 0 {
		// zero-length files cannot be mapped
		return f, func() { f.Close() }, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("mmap input: %w", err)
	}
	glog.V(1).Infof("[extsort] mapped %s (%d bytes)", path, len(m))
	return bytes.NewReader(m), func() {
		m.Unmap()
		f.Close()
	}, nil
}

// mergeToFile merges into a partial file beside output and renames it into
// place on success.
func (s *Sorter) mergeToFile(ctx context.Context, chunks []ChunkInfo, output string) (*MergeResult, error) {
	partial := filepath.Join(filepath.Dir(output),
		"."+filepath.Base(output)+".partial-"+uuid.NewString()[:8])

	f, err := os.Create(partial)
	if err != nil {
		return nil, &MergeWriteError{Path: output, Err: err}
	}
	closed := false
	defer func() {
		if !closed {
			f.Close()
		}
	}()

	mr, err := s.Merge(ctx, chunks, f)
	if err == nil {
		if err = f.Sync(); err != nil {
			err = &MergeWriteError{Path: output, Err: err}
		}
	}
	if err == nil {
		closed = true
		if err = f.Close(); err != nil {
			err = &MergeWriteError{Path: output, Err: err}
		}
	}
	if err == nil {
		if err = os.Rename(partial, output); err != nil {
			err = &MergeWriteError{Path: output, Err: err}
		}
	}
	if err != nil {
		var mwe *MergeWriteError
		if errors.As(err, &mwe) && mwe.Path == "" {
			mwe.Path = output
		}
		if !closed {
			f.Close()
			closed = true
		}
		os.Remove(partial)
		return nil, err
	}
	return mr, nil
}
