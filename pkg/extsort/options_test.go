package extsort

import (
	"errors"
	"fmt"
	"testing"
)

func TestClampOpenFiles(t *testing.T) {
	tests := []struct {
		n, limit, want int
	}{
		{500, 0, 500},
		{500, 1024, 500},
		{500, 256, 256 - fdHeadroom},
		{10, 50, 2},
		{1, 50, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.limit), func(t *testing.T) {
			if got := clampOpenFiles(tt.n, tt.limit); got != tt.want {
				t.Errorf("clampOpenFiles(%d, %d) = %d, want %d", tt.n, tt.limit, got, tt.want)
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	s, _ := newTestSorter(t, WithBufferSizes(0, 4096, 0))
	o := s.Options()
	if o.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d", o.ChunkSize)
	}
	if o.Workers <= 0 {
		t.Errorf("Workers = %d", o.Workers)
	}
	if o.ReadBufferSize != DefaultReadBufferSize || o.MergeBufferSize != 4096 || o.WriteBufferSize != DefaultWriteBufferSize {
		t.Errorf("buffers = %d/%d/%d", o.ReadBufferSize, o.MergeBufferSize, o.WriteBufferSize)
	}
	if o.SortTimeout != DefaultSortTimeout {
		t.Errorf("SortTimeout = %s", o.SortTimeout)
	}
}

func TestPhaseOf(t *testing.T) {
	parse := &ParseError{Token: "x", Err: errInvalidSyntax}
	tests := []struct {
		name string
		err  error
		want Phase
	}{
		{"nil", nil, ""},
		{"unrelated", errors.New("boom"), ""},
		{"parse", parse, PhaseIngest},
		{"wrapped parse", fmt.Errorf("run: %w", parse), PhaseIngest},
		{"input read", &InputReadError{Source: "in.txt", Err: errors.New("i/o error")}, PhaseIngest},
		{"chunk write", &ChunkWriteError{Err: errors.New("full")}, PhaseSort},
		{"timeout", fmt.Errorf("%w after 1s", ErrSortTimeout), PhaseSort},
		{"merge read", &MergeReadError{Err: errors.New("gone")}, PhaseMerge},
		{"corrupt chunk", &MergeReadError{Err: parse}, PhaseMerge},
		{"merge write", &MergeWriteError{Err: errors.New("full")}, PhaseMerge},
		{"count", ErrCountMismatch, PhaseMerge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PhaseOf(tt.err); got != tt.want {
				t.Errorf("PhaseOf = %q, want %q", got, tt.want)
			}
		})
	}
}
