package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitInputNotAccess   = 3
	ExitParseError       = 4
	ExitStorageError     = 5
	ExitMergeError       = 6
	ExitValidationFailed = 7
)

func main() {
	// glog writes to files by default; a CLI wants stderr.
	flag.Set("logtostderr", "true")
	code := run(os.Args[1:])
	glog.Flush()
	os.Exit(code)
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "sort":
		return runSort(cmdArgs)
	case "generate":
		return runGenerate(cmdArgs)
	case "verify":
		return runVerify(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: numsort <command> [options]

Commands:
  sort      Sort a file of whitespace-separated 32-bit integers
  generate  Write a file of random integers for testing
  verify    Check that a file is sorted and holds the same values as its input

Run 'numsort <command> -h' for command-specific help.`)
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[numsort] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
