package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/ligustah/numsort/internal/generate"
	"github.com/ligustah/numsort/internal/progress"
)

// runGenerate writes a file of random integers.
func runGenerate(args []string) int {
	fs := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	fs.AddGoFlagSet(flag.CommandLine)

	output := fs.StringP("output", "o", "", "Output file (required)")
	count := fs.Int64P("count", "n", 0, "Number of values (required)")
	minValue := fs.Int64("min", math.MinInt32, "Smallest value")
	maxValue := fs.Int64("max", math.MaxInt32, "Largest value")
	workers := fs.IntP("workers", "w", 0, "Parallel generators (default: number of CPUs)")
	seed := fs.Uint64("seed", 0, "Random seed (default: random)")
	showProgress := fs.Bool("progress", false, "Show progress output")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: numsort generate [options]

Write random 32-bit integers separated by spaces, for testing numsort sort.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	if *output == "" || *count <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --output and a positive --count are required")
		fs.Usage()
		return ExitInvalidArgs
	}
	if *minValue < math.MinInt32 || *maxValue > math.MaxInt32 {
		fmt.Fprintln(os.Stderr, "Error: --min and --max must fit in 32 bits")
		return ExitInvalidArgs
	}

	g, err := generate.New(generate.Options{
		Count:   *count,
		Min:     int32(*minValue),
		Max:     int32(*maxValue),
		Workers: *workers,
		Seed:    *seed,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output: %v\n", err)
		return ExitStorageError
	}

	var reporter *progress.Reporter
	if *showProgress {
		reporter = progress.NewReporter(progress.Options{
			Label:     "Generating",
			Total:     *count,
			Processed: g.Written,
		})
		reporter.Start()
	}

	start := time.Now()
	err = g.Generate(ctx, f)
	if reporter != nil {
		reporter.Stop()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(*output)
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "[numsort] Generate interrupted")
			return ExitGeneralError
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(os.Stderr, "[numsort] Wrote %d numbers to %s in %s (seed %d)\n",
		g.Written(), *output, progress.FormatDuration(time.Since(start)), g.Seed())
	return ExitSuccess
}
