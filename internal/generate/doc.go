// Package generate writes random test input for numsort.
//
// Blocks of values are rendered by a pool of workers and appended in order by
// a single writer, so a seed reproduces the same file for any worker count.
//
//	g, err := generate.New(generate.Options{Count: 100_000_000, Seed: 7})
//	err = g.Generate(ctx, f)
package generate
