package extsort

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func newTestSorter(t *testing.T, options ...Option) (*Sorter, *Store) {
	t.Helper()
	store := NewStore(openMemBucket(t))
	s, err := New(store, options...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, store
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestNewInvalidOptions(t *testing.T) {
	store := NewStore(openMemBucket(t))
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero chunk size", WithChunkSize(0)},
		{"negative workers", WithWorkers(-1)},
		{"zero max open files", WithMaxOpenFiles(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(store, tt.opt); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSortChunksBoundary(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSorter(t, WithChunkSize(3), WithWorkers(2))

	chunks, err := s.SortChunks(ctx, strings.NewReader("5 3 1 4 2 9 7"))
	if err != nil {
		t.Fatalf("SortChunks: %v", err)
	}

	want := []string{"1 3 5", "2 4 9", "7"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if got := readChunk(t, store, c); got != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got, want[i])
		}
	}

	stats := s.Stats()
	if stats.NumbersRead() != 7 || stats.ChunksWritten() != 3 {
		t.Errorf("stats: read %d, chunks %d", stats.NumbersRead(), stats.ChunksWritten())
	}
}

func TestSortChunksExactMultiple(t *testing.T) {
	s, _ := newTestSorter(t, WithChunkSize(2))

	chunks, err := s.SortChunks(context.Background(), strings.NewReader("4 3 2 1\n"))
	if err != nil {
		t.Fatalf("SortChunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2 with no empty trailing chunk", len(chunks))
	}
}

func TestSortChunksEmpty(t *testing.T) {
	s, store := newTestSorter(t)

	chunks, err := s.SortChunks(context.Background(), strings.NewReader(" \n\t "))
	if err != nil {
		t.Fatalf("SortChunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("got %d chunks, want 0", len(chunks))
	}
	if n, _ := store.RemoveAll(context.Background()); n != 0 {
		t.Errorf("store holds %d objects, want 0", n)
	}
}

func TestSortChunksParseError(t *testing.T) {
	s, _ := newTestSorter(t, WithChunkSize(1))

	_, err := s.SortChunks(context.Background(), strings.NewReader("3 x 5"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Token != "x" {
		t.Errorf("token = %q, want x", pe.Token)
	}
}

func TestSortChunksReadError(t *testing.T) {
	s, _ := newTestSorter(t, WithChunkSize(1))
	diskErr := errors.New("input/output error")
	r := io.MultiReader(strings.NewReader("3 1 2 "), iotest.ErrReader(diskErr))

	_, err := s.SortChunks(context.Background(), r)
	var ie *InputReadError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InputReadError, got %v", err)
	}
	if !errors.Is(err, diskErr) {
		t.Errorf("expected wrapped %v, got %v", diskErr, err)
	}
	if PhaseOf(err) != PhaseIngest {
		t.Errorf("PhaseOf = %q, want %q", PhaseOf(err), PhaseIngest)
	}
}

func TestSortChunksWriteError(t *testing.T) {
	bucket := openMemBucket(t)
	s, err := New(NewStore(bucket, WithRetry(RetryPolicy{})), WithChunkSize(2), WithWorkers(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bucket.Close()

	_, err = s.SortChunks(context.Background(), strings.NewReader("1 2 3 4 5 6"))
	var cwe *ChunkWriteError
	if !errors.As(err, &cwe) {
		t.Fatalf("expected *ChunkWriteError, got %v", err)
	}
}

func TestSortChunksCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, _ := newTestSorter(t, WithChunkSize(1))

	if _, err := s.SortChunks(ctx, strings.NewReader("1 2 3")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
