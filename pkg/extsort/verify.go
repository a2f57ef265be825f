package extsort

import (
	"encoding/binary"
	"io"

	"github.com/zeebo/xxh3"
)

// Print is an order-independent summary of a stream of integers. Two streams
// holding the same multiset of values have equal Count and Sum.
type Print struct {
	Count  int64
	Sum    uint64 // wrapping sum of xxh3 hashes of each value
	Sorted bool   // true if the stream is non-decreasing
	// FirstDescent is the byte offset of the first value smaller than its
	// predecessor, or -1 when Sorted.
	FirstDescent int64
}

// SameValues reports whether p and o summarize the same multiset of values.
func (p *Print) SameValues(o *Print) bool {
	return p.Count == o.Count && p.Sum == o.Sum
}

// Fingerprint reads every value from r and summarizes it.
func Fingerprint(r io.Reader, bufSize int) (*Print, error) {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}
	tok := NewTokenizer(r, bufSize)
	p := &Print{Sorted: true, FirstDescent: -1}

	var (
		prev int32
		key  [4]byte
	)
	for {
		v, err := tok.Next()
		if err == io.EOF {
			return p, nil
		}
		if err != nil {
			return nil, err
		}
		if p.Count > 0 && v < prev && p.Sorted {
			p.Sorted = false
			p.FirstDescent = tok.TokenOffset()
		}
		binary.LittleEndian.PutUint32(key[:], uint32(v))
		p.Sum += xxh3.Hash(key[:])
		p.Count++
		prev = v
	}
}
