package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/ligustah/numsort/internal/config"
	"github.com/ligustah/numsort/internal/progress"
	"github.com/ligustah/numsort/pkg/extsort"
)

// bytesPerValue is the average size of a random int32 plus separator, used
// to estimate the value count of an input file for the first progress bar.
const bytesPerValue = 10.4836

// runSort sorts a file of integers using temporary chunk files.
func runSort(args []string) int {
	fs := pflag.NewFlagSet("sort", pflag.ContinueOnError)
	fs.AddGoFlagSet(flag.CommandLine)

	input := fs.StringP("input", "i", "", "Input file (required)")
	output := fs.StringP("output", "o", "", "Output file (required)")
	tempURL := fs.String("temp", "", "Temp storage: directory or bucket URL (default: a new temp dir)")
	chunkSize := fs.Int("chunk-size", 0, "Values per chunk (default 10000000)")
	workers := fs.IntP("workers", "w", 0, "Parallel chunk sorters (default: number of CPUs)")
	maxOpen := fs.Int("max-open-files", 0, "Chunk files open at once during the merge (default 500)")
	readBuffer := fs.String("read-buffer", "", "Input read buffer (default 8MiB)")
	mergeBuffer := fs.String("merge-buffer", "", "Read buffer per open chunk file (default 1MiB)")
	writeBuffer := fs.String("write-buffer", "", "Output write buffer (default 8MiB)")
	compress := fs.Bool("compress", false, "Compress chunk files with zstd")
	noChecksum := fs.Bool("no-checksum", false, "Skip chunk checksums")
	useMmap := fs.Bool("mmap", false, "Memory-map the input file")
	keepTemps := fs.Bool("keep-temps", false, "Keep chunk files after the run")
	showProgress := fs.Bool("progress", false, "Show progress output")
	logScale := fs.Bool("log-scale", false, "Use a logarithmic progress bar")
	sortTimeout := fs.Duration("sort-timeout", 0, "Maximum time to wait for chunk sorters (default 24h)")
	retryAttempts := fs.Int("retry-attempts", 0, "Retries per chunk write or delete (default 3)")
	configPath := fs.StringP("config", "c", "", "YAML configuration file")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: numsort sort [options] [INPUT [OUTPUT]]

Sort a file of whitespace-separated 32-bit integers that may not fit in memory.
The output holds the values in ascending order separated by single spaces.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}
	if *input == "" && fs.NArg() > 0 {
		*input = fs.Arg(0)
	}
	if *output == "" && fs.NArg() > 1 {
		*output = fs.Arg(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	override := config.Config{
		Input:        *input,
		Output:       *output,
		TempURL:      *tempURL,
		ChunkSize:    *chunkSize,
		Workers:      *workers,
		MaxOpenFiles: *maxOpen,
		Compress:     *compress,
		Mmap:         *useMmap,
		KeepTemps:    *keepTemps,
		Progress:     *showProgress,
		LogScale:     *logScale,
		SortTimeout:  *sortTimeout,
		Retry:        config.RetryConfig{Attempts: *retryAttempts},
	}
	for _, b := range []struct {
		flag string
		val  string
		dst  *int64
	}{
		{"read-buffer", *readBuffer, &override.ReadBuffer},
		{"merge-buffer", *mergeBuffer, &override.MergeBuffer},
		{"write-buffer", *writeBuffer, &override.WriteBuffer},
	} {
		if b.val == "" {
			continue
		}
		size, err := progress.ParseBytes(b.val)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --%s: %v\n", b.flag, err)
			return ExitInvalidArgs
		}
		*b.dst = size
	}
	cfg = cfg.Merge(override)
	if *noChecksum {
		cfg.Checksum = false
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	info, err := os.Stat(cfg.Input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error accessing input: %v\n", err)
		return ExitInputNotAccess
	}
	if info.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: input %s is a directory\n", cfg.Input)
		return ExitInputNotAccess
	}

	ctx, cancel := signalContext()
	defer cancel()

	return sortFile(ctx, cfg, info.Size())
}

// sortFile runs one sort with a validated configuration.
func sortFile(ctx context.Context, cfg config.Config, inputSize int64) int {
	location := cfg.TempURL
	ownDir := ""
	if location == "" {
		dir, err := os.MkdirTemp("", "numsort-")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating temp dir: %v\n", err)
			return ExitStorageError
		}
		location, ownDir = dir, dir
	}

	store, err := extsort.OpenStore(ctx, location,
		extsort.WithCompression(cfg.Compress),
		extsort.WithChecksum(cfg.Checksum),
		extsort.WithRetry(cfg.Retry.Policy()),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening temp storage: %v\n", err)
		return ExitStorageError
	}

	defer func() {
		store.Close()
		if ownDir == "" {
			return
		}
		if cfg.KeepTemps {
			fmt.Fprintf(os.Stderr, "[numsort] Temporary files kept in %s\n", filepath.Join(ownDir, store.Prefix()))
			return
		}
		if err := os.RemoveAll(ownDir); err != nil {
			glog.Warningf("[numsort] remove temp dir %s: %v", ownDir, err)
		}
	}()

	sorter, err := extsort.New(store,
		extsort.WithChunkSize(cfg.ChunkSize),
		extsort.WithWorkers(cfg.Workers),
		extsort.WithMaxOpenFiles(cfg.MaxOpenFiles),
		extsort.WithBufferSizes(int(cfg.ReadBuffer), int(cfg.MergeBuffer), int(cfg.WriteBuffer)),
		extsort.WithSortTimeout(cfg.SortTimeout),
		extsort.WithKeepTemps(cfg.KeepTemps),
		extsort.WithMmap(cfg.Mmap),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	opts := sorter.Options()
	glog.V(1).Infof("[numsort] chunk size %d, %d workers, %d open files, temp %s%s",
		opts.ChunkSize, opts.Workers, opts.MaxOpenFiles, location, store.Prefix())

	stats := sorter.Stats()
	var reporter *progress.Reporter
	hook := func(phase extsort.Phase, total int64) {
		if reporter != nil {
			reporter.Stop()
			reporter = nil
		}
		label, processed := "Sorting", stats.NumbersRead
		if phase == extsort.PhaseMerge {
			label, processed = "Merging", stats.NumbersWritten
		} else {
			total = int64(float64(inputSize) / bytesPerValue)
		}
		if !cfg.Progress {
			fmt.Fprintf(os.Stderr, "[numsort] %s...\n", label)
			return
		}
		reporter = progress.NewReporter(progress.Options{
			Label:     label,
			Total:     total,
			Processed: processed,
			Format:    progress.Bar(50, cfg.LogScale),
		})
		reporter.Start()
	}

	start := time.Now()
	result, err := sorter.SortFile(ctx, cfg.Input, cfg.Output, hook)
	if reporter != nil {
		reporter.Stop()
	}
	if err != nil {
		if !cfg.KeepTemps {
			// Best effort; chunks of a failed run are not guaranteed to go.
			if n, rerr := store.RemoveAll(context.Background()); rerr != nil {
				glog.Warningf("[numsort] clean up temp files: %v", rerr)
			} else if n > 0 {
				glog.V(1).Infof("[numsort] removed %d temp files", n)
			}
		}
		return reportSortError(ctx, err)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "[numsort] Warning: %v\n", w)
	}
	fmt.Fprintf(os.Stderr, "[numsort] Sorted %d numbers in %d chunks into %s\n",
		result.Numbers, result.Chunks, cfg.Output)
	fmt.Fprintf(os.Stderr, "[numsort] Sort: %s | Merge: %s | Total: %s\n",
		progress.FormatDuration(result.SortDuration),
		progress.FormatDuration(result.MergeDuration),
		progress.FormatDuration(time.Since(start)),
	)
	return ExitSuccess
}

// reportSortError prints a failed run and maps it to an exit code.
func reportSortError(ctx context.Context, err error) int {
	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "[numsort] Sort interrupted")
		return ExitGeneralError
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		if extsort.PhaseOf(err) == "" {
			fmt.Fprintf(os.Stderr, "Error accessing input: %v\n", err)
			return ExitInputNotAccess
		}
	}

	phase := extsort.PhaseOf(err)
	fmt.Fprintf(os.Stderr, "[numsort] %s failed: %v\n", phaseName(phase), err)
	switch phase {
	case extsort.PhaseIngest:
		return ExitParseError
	case extsort.PhaseSort:
		return ExitStorageError
	case extsort.PhaseMerge:
		return ExitMergeError
	}
	return ExitGeneralError
}

func phaseName(p extsort.Phase) string {
	if p == "" {
		return "run"
	}
	return string(p)
}
