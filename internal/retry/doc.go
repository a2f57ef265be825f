// Package retry runs operations against temporary storage with exponential
// backoff and jitter.
//
// # Usage
//
//	err := retry.Do(ctx, retry.Policy{
//	    Attempts:   3,
//	    Backoff:    500 * time.Millisecond,
//	    MaxBackoff: 10 * time.Second,
//	}, func(ctx context.Context) error {
//	    return bucket.Delete(ctx, key)
//	})
//
// Wrap an error with [Permanent] to stop retrying immediately.
package retry
