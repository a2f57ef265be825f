package generate

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
)

func run(t *testing.T, opts Options) (string, *Generator) {
	t.Helper()
	g, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var buf bytes.Buffer
	if err := g.Generate(context.Background(), &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return buf.String(), g
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"single block", Options{Count: 100, Min: -5, Max: 5, Seed: 1}},
		{"partial last block", Options{Count: 1001, BlockSize: 100, Workers: 3, Seed: 2}},
		{"exact blocks", Options{Count: 400, BlockSize: 100, Workers: 8, Seed: 3}},
		{"single value range", Options{Count: 50, Min: 7, Max: 7, BlockSize: 8}},
		{"extremes", Options{Count: 300, Min: math.MinInt32, Max: math.MaxInt32, BlockSize: 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, g := run(t, tt.opts)

			fields := strings.Fields(out)
			if int64(len(fields)) != tt.opts.Count {
				t.Fatalf("got %d values, want %d", len(fields), tt.opts.Count)
			}
			if g.Written() != tt.opts.Count {
				t.Errorf("Written = %d, want %d", g.Written(), tt.opts.Count)
			}
			lo, hi := int64(tt.opts.Min), int64(tt.opts.Max)
			if lo == 0 && hi == 0 {
				lo, hi = math.MinInt32, math.MaxInt32
			}
			for _, f := range fields {
				v, err := strconv.ParseInt(f, 10, 32)
				if err != nil {
					t.Fatalf("bad value %q: %v", f, err)
				}
				if v < lo || v > hi {
					t.Fatalf("value %d outside [%d, %d]", v, lo, hi)
				}
			}
			if !strings.HasSuffix(out, "\n") || strings.Contains(out, "  ") {
				t.Errorf("unexpected separators in output")
			}
		})
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a, _ := run(t, Options{Count: 5000, BlockSize: 128, Workers: 1, Seed: 42})
	b, _ := run(t, Options{Count: 5000, BlockSize: 128, Workers: 7, Seed: 42})
	c, _ := run(t, Options{Count: 5000, BlockSize: 128, Workers: 7, Seed: 43})

	if a != b {
		t.Error("same seed produced different output with different worker counts")
	}
	if a == c {
		t.Error("different seeds produced identical output")
	}
}

func TestGenerateEmpty(t *testing.T) {
	out, g := run(t, Options{Count: 0})
	if out != "" || g.Written() != 0 {
		t.Errorf("expected no output, got %q", out)
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(Options{Count: -1}); err == nil {
		t.Error("expected error for negative count")
	}
	if _, err := New(Options{Count: 1, Min: 5, Max: 4}); err == nil {
		t.Error("expected error for min > max")
	}
}

func TestNewRandomSeed(t *testing.T) {
	g, err := New(Options{Count: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Seed() == 0 {
		t.Error("expected a seed to be chosen")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestGenerateWriteError(t *testing.T) {
	g, err := New(Options{Count: 1_000_000, BlockSize: 1000, Workers: 4, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.Generate(context.Background(), failingWriter{}); err == nil {
		t.Fatal("expected write error")
	}
}

func TestGenerateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, err := New(Options{Count: 1_000_000, BlockSize: 1000, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var buf bytes.Buffer
	if err := g.Generate(ctx, &buf); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
