package extsort

import (
	"context"
	"fmt"
)

// ValidationResult contains the results of validating a set of chunk files.
type ValidationResult struct {
	Valid          bool     // true if all chunks exist and sizes match
	ChunkCount     int      // number of chunks checked
	TotalCount     int64    // sum of recorded value counts
	MissingChunks  int      // number of chunks that don't exist
	SizeMismatches int      // number of chunks with wrong stored size
	FirstBad       string   // object of the first invalid chunk
	Errors         []string // detailed error messages
}

// Validate checks that every chunk file exists with the size recorded when it
// was written. It reads object attributes only, not chunk data.
//
// Missing chunks and size mismatches are reported in the result with
// Valid=false; an error is returned only if the store cannot be queried.
func (s *Store) Validate(ctx context.Context, chunks []ChunkInfo) (*ValidationResult, error) {
	result := &ValidationResult{
		Valid:      true,
		ChunkCount: len(chunks),
		Errors:     make([]string, 0),
	}

	for _, chunk := range chunks {
		result.TotalCount += chunk.Count

		attrs, err := s.bucket.Attributes(ctx, chunk.Object)
		if err != nil {
			if isNotExist(err) {
				result.invalid(chunk.Object)
				result.MissingChunks++
				result.Errors = append(result.Errors,
					fmt.Sprintf("chunk %d missing: %s", chunk.Index, chunk.Object))
				continue
			}
			return nil, fmt.Errorf("extsort: check chunk %s: %w", chunk.Object, err)
		}

		if attrs.Size != chunk.Size {
			result.invalid(chunk.Object)
			result.SizeMismatches++
			result.Errors = append(result.Errors,
				fmt.Sprintf("chunk %d size mismatch: expected %d, got %d",
					chunk.Index, chunk.Size, attrs.Size))
		}
	}

	return result, nil
}

func (r *ValidationResult) invalid(object string) {
	if r.Valid {
		r.FirstBad = object
	}
	r.Valid = false
}
