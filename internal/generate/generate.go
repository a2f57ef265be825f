package generate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the number of values one worker renders at a time.
const DefaultBlockSize = 64 * 1024

// Options configures a Generator.
type Options struct {
	// Count is the number of values to write.
	Count int64

	// Min and Max bound the values, inclusive. Both zero means the full
	// int32 range.
	Min, Max int32

	// Workers is the number of parallel block renderers.
	// Default: runtime.NumCPU()
	Workers int

	// BlockSize is the number of values per block.
	// Default: 65536
	BlockSize int

	// Seed makes the output reproducible. Zero picks a random seed.
	// The same seed yields the same output regardless of Workers.
	Seed uint64
}

// Generator writes random integers as whitespace-separated text.
type Generator struct {
	opts    Options
	written atomic.Int64
}

// New validates opts and returns a Generator.
func New(opts Options) (*Generator, error) {
	if opts.Count < 0 {
		return nil, errors.New("generate: count must not be negative")
	}
	if opts.Min == 0 && opts.Max == 0 {
		opts.Min, opts.Max = math.MinInt32, math.MaxInt32
	}
	if opts.Min > opts.Max {
		return nil, fmt.Errorf("generate: min %d is greater than max %d", opts.Min, opts.Max)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.Seed == 0 {
		opts.Seed = rand.Uint64()
	}
	return &Generator{opts: opts}, nil
}

// Seed returns the seed in use, so a random run can be reproduced.
func (g *Generator) Seed() uint64 {
	return g.opts.Seed
}

// Written returns how many values have been written so far. It is safe to
// call while Generate runs.
func (g *Generator) Written() int64 {
	return g.written.Load()
}

type block struct {
	index int64
	count int
	data  []byte
}

// Generate writes Count values to w. Blocks are rendered in parallel and
// written in order by a single writer; at most 2*Workers blocks are in flight.
func (g *Generator) Generate(ctx context.Context, w io.Writer) error {
	blocks := (g.opts.Count + int64(g.opts.BlockSize) - 1) / int64(g.opts.BlockSize)
	glog.V(1).Infof("[generate] %d values in %d blocks, %d workers, seed %d",
		g.opts.Count, blocks, g.opts.Workers, g.opts.Seed)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, gctx := errgroup.WithContext(runCtx)

	jobs := make(chan int64)
	results := make(chan block, g.opts.Workers)
	slots := make(chan struct{}, 2*g.opts.Workers)

	// Feed block indexes; a slot is released once the block is written.
	eg.Go(func() error {
		defer close(jobs)
		for i := int64(0); i < blocks; i++ {
			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workers errgroup.Group
	for range g.opts.Workers {
		workers.Go(func() error {
			for i := range jobs {
				b := g.render(i)
				select {
				case results <- b:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	eg.Go(func() error {
		err := workers.Wait()
		close(results)
		return err
	})

	werr := g.write(gctx, w, results, slots)
	if werr != nil {
		cancel()
	}
	err := eg.Wait()
	if werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// write appends blocks to w in index order.
func (g *Generator) write(ctx context.Context, w io.Writer, results <-chan block, slots <-chan struct{}) error {
	bw := bufio.NewWriterSize(w, 1024*1024)
	pending := make(map[int64]block)
	var next int64

	for b := range results {
		pending[b.index] = b
		for {
			b, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if next > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return fmt.Errorf("write block %d: %w", next, err)
				}
			}
			if _, err := bw.Write(b.data); err != nil {
				return fmt.Errorf("write block %d: %w", next, err)
			}
			g.written.Add(int64(b.count))
			next++
			<-slots
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if next > 0 {
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// render produces block i from its own stream, seeded by the run seed and
// the block index.
func (g *Generator) render(i int64) block {
	n := g.opts.BlockSize
	if rem := g.opts.Count - i*int64(n); rem < int64(n) {
		n = int(rem)
	}

	rng := rand.New(rand.NewPCG(g.opts.Seed, uint64(i)))
	span := uint64(int64(g.opts.Max)-int64(g.opts.Min)) + 1
	data := make([]byte, 0, n*12)
	for j := 0; j < n; j++ {
		if j > 0 {
			data = append(data, ' ')
		}
		v := int64(g.opts.Min) + int64(rng.Uint64N(span))
		data = strconv.AppendInt(data, v, 10)
	}
	return block{index: i, count: n, data: data}
}
