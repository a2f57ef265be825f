package extsort

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

func openMemBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func readChunk(t *testing.T, store *Store, info ChunkInfo) string {
	t.Helper()
	rc, err := store.Open(context.Background(), info)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(data)
}

func TestStoreWriteChunk(t *testing.T) {
	tests := []struct {
		name     string
		options  []StoreOption
		wantExt  string
		checksum bool
	}{
		{"plain", nil, ".txt", true},
		{"compressed", []StoreOption{WithCompression(true)}, ".txt.zst", true},
		{"no checksum", []StoreOption{WithChecksum(false)}, ".txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(openMemBucket(t), append(tt.options, WithPrefix("run/"))...)

			info, err := store.WriteChunk(ctx, 3, []int32{-7, 0, 2, 2, 2147483647})
			if err != nil {
				t.Fatalf("WriteChunk: %v", err)
			}
			if info.Index != 3 || info.Count != 5 {
				t.Errorf("info = %+v", info)
			}
			if !strings.HasPrefix(info.Object, "run/chunk-") || !strings.HasSuffix(info.Object, tt.wantExt) {
				t.Errorf("object = %q, want run/chunk-*%s", info.Object, tt.wantExt)
			}
			if (info.Checksum != "") != tt.checksum {
				t.Errorf("checksum = %q, enabled = %v", info.Checksum, tt.checksum)
			}
			if info.Size <= 0 {
				t.Errorf("size = %d, want > 0", info.Size)
			}

			if got := readChunk(t, store, info); got != "-7 0 2 2 2147483647" {
				t.Errorf("content = %q", got)
			}
		})
	}
}

func TestStoreChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	bucket := openMemBucket(t)
	store := NewStore(bucket)

	info, err := store.WriteChunk(ctx, 0, []int32{1, 2, 3})
	if err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	// Same size, different content.
	if err := bucket.WriteAll(ctx, info.Object, []byte("1 2 4"), nil); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	rc, err := store.Open(ctx, info)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	if _, err := io.ReadAll(rc); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}

	vr, err := store.Validate(ctx, []ChunkInfo{info})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !vr.Valid {
		t.Errorf("sizes match, Validate should not flag the chunk: %v", vr.Errors)
	}
}

func TestStoreValidate(t *testing.T) {
	ctx := context.Background()
	bucket := openMemBucket(t)
	store := NewStore(bucket)

	var chunks []ChunkInfo
	for i, values := range [][]int32{{1, 2}, {3, 4, 5}, {6}} {
		info, err := store.WriteChunk(ctx, i, values)
		if err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
		chunks = append(chunks, info)
	}

	vr, err := store.Validate(ctx, chunks)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !vr.Valid || vr.ChunkCount != 3 || vr.TotalCount != 6 {
		t.Fatalf("unexpected result: %+v", vr)
	}

	if err := bucket.Delete(ctx, chunks[1].Object); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := bucket.WriteAll(ctx, chunks[2].Object, []byte("6 7"), nil); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	vr, err = store.Validate(ctx, chunks)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if vr.Valid {
		t.Fatal("expected invalid result")
	}
	if vr.MissingChunks != 1 || vr.SizeMismatches != 1 {
		t.Errorf("missing = %d, mismatches = %d", vr.MissingChunks, vr.SizeMismatches)
	}
	if vr.FirstBad != chunks[1].Object {
		t.Errorf("FirstBad = %q, want %q", vr.FirstBad, chunks[1].Object)
	}
	if len(vr.Errors) != 2 {
		t.Errorf("errors = %v", vr.Errors)
	}
}

func TestStoreRemove(t *testing.T) {
	ctx := context.Background()
	bucket := openMemBucket(t)
	store := NewStore(bucket)
	other := NewStore(bucket)

	info, err := store.WriteChunk(ctx, 0, []int32{1})
	if err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.WriteChunk(ctx, i+1, []int32{int32(i)}); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
	}
	if _, err := other.WriteChunk(ctx, 0, []int32{9}); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	if err := store.Remove(ctx, info); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(ctx, info); err != nil {
		t.Fatalf("second Remove should ignore a missing file: %v", err)
	}

	n, err := store.RemoveAll(ctx)
	if err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if n != 3 {
		t.Errorf("RemoveAll removed %d, want 3", n)
	}

	// Other runs sharing the bucket are untouched.
	if n, err := other.RemoveAll(ctx); err != nil || n != 1 {
		t.Errorf("other RemoveAll = %d, %v; want 1", n, err)
	}
}

func TestStoreWriteChunkError(t *testing.T) {
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	store := NewStore(bucket, WithRetry(RetryPolicy{}))
	bucket.Close()

	_, err = store.WriteChunk(context.Background(), 4, []int32{1, 2})
	var cwe *ChunkWriteError
	if !errors.As(err, &cwe) {
		t.Fatalf("expected *ChunkWriteError, got %v", err)
	}
	if cwe.Index != 4 {
		t.Errorf("index = %d, want 4", cwe.Index)
	}
	if PhaseOf(err) != PhaseSort {
		t.Errorf("PhaseOf = %q, want %q", PhaseOf(err), PhaseSort)
	}
}

func TestOpenStoreLocalDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir() + "/nested/temp"

	store, err := OpenStore(ctx, dir, WithCompression(true))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	info, err := store.WriteChunk(ctx, 0, []int32{5, 6})
	if err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if got := readChunk(t, store, info); got != "5 6" {
		t.Errorf("content = %q", got)
	}
}
