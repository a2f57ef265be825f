// Package progress renders the progress of a long-running phase to stderr.
//
// A Reporter polls a counter on its own goroutine and never writes to it, so
// the work being observed needs no knowledge of the display.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    Label:     "Sorting",
//	    Total:     estimate,
//	    Processed: sorter.Stats().NumbersRead,
//	    Format:    progress.Bar(50, logScale),
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
// # Output Format
//
//	[numsort] Sorting: [#####################                             ] 42.17% (4217000/10000000) | 12.40M/s | ETA: 1s
//	[numsort] Merging: [##################################################] 100.00% (10000000/10000000) | 9.81M/s | done in 1s
//
// With a logarithmic Bar the displayed percentage is ln(p+1)/ln(101)*100,
// which moves visibly during the first percent of a long run.
package progress
