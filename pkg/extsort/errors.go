package extsort

import (
	"errors"
	"fmt"
)

// ErrSortTimeout is returned when the chunk sorter pool does not drain within
// the configured sort timeout.
var ErrSortTimeout = errors.New("extsort: timed out waiting for chunk sorters")

// ErrCountMismatch is returned when the number of values merged does not match
// the number of values recorded for the chunk files.
var ErrCountMismatch = errors.New("extsort: merged count does not match chunk counts")

// ErrChecksumMismatch is returned when a chunk file's content no longer matches
// the checksum recorded when it was written.
var ErrChecksumMismatch = errors.New("extsort: chunk checksum mismatch")

// Phase names the stage of a run in which an error occurred.
type Phase string

const (
	PhaseIngest Phase = "ingest"
	PhaseSort   Phase = "sort"
	PhaseMerge  Phase = "merge"
)

// ParseError reports a token that is not a valid 32-bit integer.
type ParseError struct {
	Source string // name of the input, "" when unknown
	Offset int64  // byte offset of the token's first character
	Token  string
	Err    error
}

func (e *ParseError) Error() string {
	src := e.Source
	if src == "" {
		src = "input"
	}
	return fmt.Sprintf("parse %q at offset %d in %s: %v", e.Token, e.Offset, src, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// InputReadError reports a failure reading the primary input after it was
// opened.
type InputReadError struct {
	Source string
	Err    error
}

func (e *InputReadError) Error() string {
	return fmt.Sprintf("ingest: %v", e.Err)
}

func (e *InputReadError) Unwrap() error { return e.Err }

// ChunkWriteError reports a chunk that could not be persisted.
type ChunkWriteError struct {
	Index  int
	Object string
	Err    error
}

func (e *ChunkWriteError) Error() string {
	return fmt.Sprintf("write chunk %d (%s): %v", e.Index, e.Object, e.Err)
}

func (e *ChunkWriteError) Unwrap() error { return e.Err }

// MergeReadError reports a failure reading a chunk file during the merge.
type MergeReadError struct {
	Object string
	Err    error
}

func (e *MergeReadError) Error() string {
	return fmt.Sprintf("read chunk %s: %v", e.Object, e.Err)
}

func (e *MergeReadError) Unwrap() error { return e.Err }

// MergeWriteError reports a failure writing the merged output.
type MergeWriteError struct {
	Path string
	Err  error
}

func (e *MergeWriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("write output: %v", e.Err)
	}
	return fmt.Sprintf("write output %s: %v", e.Path, e.Err)
}

func (e *MergeWriteError) Unwrap() error { return e.Err }

// CleanupWarning reports a temporary chunk file that could not be deleted.
// It never affects the correctness of the output.
type CleanupWarning struct {
	Object string
	Err    error
}

func (e *CleanupWarning) Error() string {
	return fmt.Sprintf("remove chunk %s: %v", e.Object, e.Err)
}

func (e *CleanupWarning) Unwrap() error { return e.Err }

// PhaseOf returns the phase an error belongs to, or "" if err is not one of
// the engine's error types.
func PhaseOf(err error) Phase {
	var (
		pe *ParseError
		ie *InputReadError
		ce *ChunkWriteError
		re *MergeReadError
		we *MergeWriteError
	)
	switch {
	case err == nil:
		return ""
	// A corrupt chunk surfaces as a ParseError inside a MergeReadError, so
	// the merge types are matched first.
	case errors.As(err, &re), errors.As(err, &we), errors.Is(err, ErrCountMismatch), errors.Is(err, ErrChecksumMismatch):
		return PhaseMerge
	case errors.As(err, &ce), errors.Is(err, ErrSortTimeout):
		return PhaseSort
	case errors.As(err, &pe), errors.As(err, &ie):
		return PhaseIngest
	}
	return ""
}
