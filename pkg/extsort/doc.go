// Package extsort sorts text files of whitespace-separated 32-bit integers that
// are too large to fit in memory.
//
// A run has two phases. The sort phase reads the input through a [Tokenizer],
// cuts it into chunks of at most ChunkSize values, and sorts and writes each
// chunk on a bounded pool of workers into a [Store]. The merge phase performs
// a k-way merge of the chunk files with at most MaxOpenFiles open. When there
// are more chunks than that, groups of MaxOpenFiles are merged into new chunk
// files first, pass by pass, until the final merge fits.
//
// # Usage
//
//	store, err := extsort.OpenStore(ctx, "/tmp/numsort")
//	defer store.Close()
//
//	sorter, err := extsort.New(store,
//	    extsort.WithChunkSize(10_000_000),
//	    extsort.WithMaxOpenFiles(500),
//	)
//	result, err := sorter.SortFile(ctx, "numbers.txt", "sorted.txt", nil)
//
// [Sorter.SortChunks] and [Sorter.Merge] can be used separately for streams
// that are not files.
//
// # Storage Layout
//
// Chunk files live in any gocloud.dev/blob bucket, a local directory by default:
//
//	{bucket}/numsort-{run uuid}/chunk-{uuid}.txt
//	{bucket}/numsort-{run uuid}/chunk-{uuid}.txt.zst   (WithCompression)
//
// Each file holds ascending values separated by single spaces.
//
// # Errors
//
// Fatal errors carry the phase they occurred in, see [PhaseOf]:
// [*ParseError] (ingest), [*ChunkWriteError] (sort), [*MergeReadError] and
// [*MergeWriteError] (merge). Chunk files that cannot be deleted after the
// merge are reported as [*CleanupWarning] in the result.
package extsort
