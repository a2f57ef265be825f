package extsort

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/numsort/internal/retry"
)

// RetryPolicy configures retries of chunk writes and deletes.
type RetryPolicy = retry.Policy

// ChunkInfo describes a sorted chunk file in a Store.
type ChunkInfo struct {
	Index    int    // dispatch order of the chunk
	Object   string // key in the store's bucket
	Count    int64  // number of values in the chunk
	Size     int64  // stored size in bytes
	Checksum string // xxh3 of the uncompressed text, "" when disabled
}

type storeOptions struct {
	prefix      string
	compress    bool
	checksum    bool
	retry       RetryPolicy
	writeBuffer int
}

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

// WithPrefix sets the key prefix under which chunk files are written.
// Default: "numsort-<uuid>/".
func WithPrefix(prefix string) StoreOption {
	return func(o *storeOptions) {
		o.prefix = prefix
	}
}

// WithCompression enables zstd compression of chunk files.
func WithCompression(compress bool) StoreOption {
	return func(o *storeOptions) {
		o.compress = compress
	}
}

// WithChecksum enables or disables xxh3 checksums of chunk files.
// Default is true.
func WithChecksum(checksum bool) StoreOption {
	return func(o *storeOptions) {
		o.checksum = checksum
	}
}

// WithRetry sets the retry policy for chunk writes and deletes.
func WithRetry(p RetryPolicy) StoreOption {
	return func(o *storeOptions) {
		o.retry = p
	}
}

// WithWriteBuffer sets the buffer size used when encoding a chunk file.
func WithWriteBuffer(size int) StoreOption {
	return func(o *storeOptions) {
		o.writeBuffer = size
	}
}

// Store holds sorted chunk files in a blob bucket.
type Store struct {
	bucket *blob.Bucket
	owned  bool
	opts   storeOptions
}

// OpenStore opens the temporary chunk storage at location. A location without
// a URL scheme is a local directory, created if missing. Anything else is
// passed to blob.OpenBucket (file://, mem://, s3://, gs://).
func OpenStore(ctx context.Context, location string, options ...StoreOption) (*Store, error) {
	var (
		bucket *blob.Bucket
		err    error
	)
	if !strings.Contains(location, "://") {
		dir, aerr := filepath.Abs(location)
		if aerr != nil {
			return nil, fmt.Errorf("extsort: temp dir: %w", aerr)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("extsort: create temp dir: %w", err)
		}
		// Temp files next to the chunks, so the final rename never crosses
		// a mount point.
		bucket, err = fileblob.OpenBucket(dir, &fileblob.Options{NoTempDir: true})
	} else {
		bucket, err = blob.OpenBucket(ctx, location)
	}
	if err != nil {
		return nil, fmt.Errorf("extsort: open bucket: %w", err)
	}

	s := NewStore(bucket, options...)
	s.owned = true
	return s, nil
}

// NewStore wraps an existing bucket. The bucket is not closed by Close.
func NewStore(bucket *blob.Bucket, options ...StoreOption) *Store {
	opts := storeOptions{
		checksum:    true,
		retry:       retry.DefaultPolicy(),
		writeBuffer: 1024 * 1024,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.prefix == "" {
		opts.prefix = "numsort-" + uuid.NewString() + "/"
	}
	return &Store{bucket: bucket, opts: opts}
}

// Prefix returns the key prefix of this store's chunk files.
func (s *Store) Prefix() string {
	return s.opts.prefix
}

// Close releases the bucket if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.bucket.Close()
}

func (s *Store) newObjectName() string {
	name := s.opts.prefix + "chunk-" + uuid.NewString() + ".txt"
	if s.opts.compress {
		name += ".zst"
	}
	return name
}

// WriteChunk persists values, which must already be sorted, as a new chunk
// file. Failed attempts are aborted and retried per the store's policy; no
// partial object is ever committed.
func (s *Store) WriteChunk(ctx context.Context, index int, values []int32) (ChunkInfo, error) {
	return s.writeChunkFunc(ctx, index, func(w io.Writer) (int64, error) {
		scratch := make([]byte, 0, 12)
		for i, v := range values {
			scratch = scratch[:0]
			if i > 0 {
				scratch = append(scratch, ' ')
			}
			scratch = strconv.AppendInt(scratch, int64(v), 10)
			if _, err := w.Write(scratch); err != nil {
				return int64(i), err
			}
		}
		return int64(len(values)), nil
	})
}

// writeChunkFunc persists the sorted values fill writes as a new chunk file.
// fill returns how many values it wrote and is called again from the start
// on every retry.
func (s *Store) writeChunkFunc(ctx context.Context, index int, fill func(w io.Writer) (int64, error)) (ChunkInfo, error) {
	info := ChunkInfo{
		Index:  index,
		Object: s.newObjectName(),
	}

	err := retry.Do(ctx, s.opts.retry, func(ctx context.Context) error {
		count, size, sum, err := s.writeOnce(ctx, info.Object, fill)
		if err != nil {
			return err
		}
		info.Count = count
		info.Size = size
		info.Checksum = sum
		return nil
	})
	if err != nil {
		return info, &ChunkWriteError{Index: index, Object: info.Object, Err: err}
	}
	return info, nil
}

func (s *Store) writeOnce(ctx context.Context, object string, fill func(w io.Writer) (int64, error)) (int64, int64, string, error) {
	cw, err := s.create(ctx, object)
	if err != nil {
		return 0, 0, "", err
	}

	bw := bufio.NewWriterSize(cw, s.opts.writeBuffer)
	count, err := fill(bw)
	if err != nil {
		cw.abort()
		return 0, 0, "", err
	}
	if err := bw.Flush(); err != nil {
		cw.abort()
		return 0, 0, "", err
	}
	size, sum, err := cw.commit()
	return count, size, sum, err
}

// chunkWriter streams one chunk file into the bucket, optionally through zstd,
// hashing the uncompressed bytes.
type chunkWriter struct {
	object string
	cancel context.CancelFunc
	w      *blob.Writer
	sized  *countingWriter
	zw     *zstd.Encoder
	hash   *xxh3.Hasher
	out    io.Writer
}

func (s *Store) create(ctx context.Context, object string) (*chunkWriter, error) {
	wctx, cancel := context.WithCancel(ctx)
	w, err := s.bucket.NewWriter(wctx, object, &blob.WriterOptions{ContentType: "text/plain"})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create chunk writer: %w", err)
	}

	cw := &chunkWriter{
		object: object,
		cancel: cancel,
		w:      w,
		sized:  &countingWriter{w: w},
	}
	cw.out = cw.sized

	if s.opts.compress {
		zw, err := zstd.NewWriter(cw.sized,
			zstd.WithEncoderLevel(zstd.SpeedFastest),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			cw.abort()
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		cw.zw = zw
		cw.out = zw
	}
	if s.opts.checksum {
		cw.hash = xxh3.New()
		cw.out = io.MultiWriter(cw.out, cw.hash)
	}
	return cw, nil
}

func (cw *chunkWriter) Write(p []byte) (int, error) {
	return cw.out.Write(p)
}

// commit finishes the object and returns its stored size and checksum.
func (cw *chunkWriter) commit() (int64, string, error) {
	defer cw.cancel()
	if cw.zw != nil {
		if err := cw.zw.Close(); err != nil {
			cw.abort()
			return 0, "", fmt.Errorf("close zstd writer: %w", err)
		}
	}
	if err := cw.w.Close(); err != nil {
		return 0, "", fmt.Errorf("close chunk writer: %w", err)
	}
	sum := ""
	if cw.hash != nil {
		sum = formatChecksum(cw.hash.Sum64())
	}
	return cw.sized.n, sum, nil
}

// abort cancels the upload so the object is never created.
func (cw *chunkWriter) abort() {
	cw.cancel()
	if cw.zw != nil {
		cw.zw.Close()
	}
	cw.w.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func formatChecksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

// Open returns a reader over the uncompressed text of a chunk file. When the
// store verifies checksums and info carries one, the reader returns an error
// wrapping ErrChecksumMismatch instead of io.EOF if the content changed.
func (s *Store) Open(ctx context.Context, info ChunkInfo) (io.ReadCloser, error) {
	br, err := s.bucket.NewReader(ctx, info.Object, nil)
	if err != nil {
		return nil, fmt.Errorf("open chunk: %w", err)
	}

	rc := &chunkReader{r: br, closers: []func() error{br.Close}}
	if strings.HasSuffix(info.Object, ".zst") {
		zr, err := zstd.NewReader(br,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
		)
		if err != nil {
			br.Close()
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		rc.r = zr
		rc.closers = append([]func() error{func() error { zr.Close(); return nil }}, rc.closers...)
	}
	if s.opts.checksum && info.Checksum != "" {
		rc.hash = xxh3.New()
		rc.expected = info.Checksum
	}
	return rc, nil
}

// chunkReader reads a chunk and checks its checksum at EOF.
type chunkReader struct {
	r        io.Reader
	closers  []func() error
	hash     *xxh3.Hasher
	expected string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if c.hash != nil && n > 0 {
		c.hash.Write(p[:n])
	}
	if err == io.EOF && c.hash != nil {
		if actual := formatChecksum(c.hash.Sum64()); actual != c.expected {
			return n, fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, c.expected, actual)
		}
	}
	return n, err
}

func (c *chunkReader) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove deletes a chunk file. A file that is already gone is not an error.
func (s *Store) Remove(ctx context.Context, info ChunkInfo) error {
	return retry.Do(ctx, s.opts.retry, func(ctx context.Context) error {
		if err := s.bucket.Delete(ctx, info.Object); err != nil && !isNotExist(err) {
			return err
		}
		return nil
	})
}

// RemoveAll deletes every object under the store's prefix and returns the
// number removed. Use it to clean up after an aborted run.
func (s *Store) RemoveAll(ctx context.Context) (int, error) {
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.opts.prefix})
	removed := 0
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("extsort: list chunks: %w", err)
		}
		if obj.IsDir {
			continue
		}
		if err := s.bucket.Delete(ctx, obj.Key); err != nil && !isNotExist(err) {
			return removed, fmt.Errorf("extsort: delete chunk %s: %w", obj.Key, err)
		}
		removed++
	}
	return removed, nil
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
