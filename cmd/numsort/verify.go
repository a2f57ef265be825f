package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/ligustah/numsort/pkg/extsort"
)

// runVerify checks that an output file is sorted and, given the input,
// that it holds the same values.
func runVerify(args []string) int {
	fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	fs.AddGoFlagSet(flag.CommandLine)

	output := fs.StringP("output", "o", "", "Sorted file to check (required)")
	input := fs.StringP("input", "i", "", "Original input to compare values against")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: numsort verify [options]

Check that a file is in ascending order. With --input, also check that both
files hold the same multiset of values.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: --output is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	out, code := fingerprint(*output)
	if out == nil {
		return code
	}

	fmt.Printf("File: %s\n", *output)
	fmt.Printf("Numbers: %d\n", out.Count)

	valid := true
	if out.Sorted {
		fmt.Println("Order: ascending")
	} else {
		fmt.Printf("Order: NOT SORTED (first descent at byte %d)\n", out.FirstDescent)
		valid = false
	}

	if *input != "" {
		in, code := fingerprint(*input)
		if in == nil {
			return code
		}
		if in.SameValues(out) {
			fmt.Printf("Values: match %s\n", *input)
		} else {
			fmt.Printf("Values: DIFFER from %s (%d numbers vs %d)\n", *input, in.Count, out.Count)
			valid = false
		}
	}

	if !valid {
		fmt.Println("Status: INVALID")
		return ExitValidationFailed
	}
	fmt.Println("Status: VALID")
	return ExitSuccess
}

func fingerprint(path string) (*extsort.Print, int) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, ExitInputNotAccess
	}
	defer f.Close()

	p, err := extsort.Fingerprint(f, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if extsort.PhaseOf(err) == extsort.PhaseIngest {
			return nil, ExitParseError
		}
		return nil, ExitGeneralError
	}
	return p, ExitSuccess
}
