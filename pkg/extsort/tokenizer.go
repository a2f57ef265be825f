package extsort

import (
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// DefaultReadBufferSize is the buffer size used for the primary input.
	DefaultReadBufferSize = 8 * 1024 * 1024
	// DefaultMergeBufferSize is the buffer size used per open chunk file.
	DefaultMergeBufferSize = 1024 * 1024

	minBufferSize = 16
)

var (
	errInvalidSyntax = errors.New("invalid integer syntax")
	errOutOfRange    = errors.New("value out of int32 range")
)

// Tokenizer lazily parses whitespace-separated int32 values from a reader.
// It is not safe for concurrent use.
type Tokenizer struct {
	r      io.Reader
	source string

	buf    []byte
	pos    int
	end    int
	offset int64 // offset of buf[0] in the stream
	err    error // sticky read error, io.EOF included

	tok   []byte
	start int64 // offset of the last token
}

// NewTokenizer returns a Tokenizer reading from r through a buffer of the
// given size.
func NewTokenizer(r io.Reader, bufSize int) *Tokenizer {
	if bufSize < minBufferSize {
		bufSize = minBufferSize
	}
	return &Tokenizer{
		r:   r,
		buf: make([]byte, bufSize),
		tok: make([]byte, 0, 16),
	}
}

// Named sets the source name reported in parse errors.
func (t *Tokenizer) Named(source string) *Tokenizer {
	t.source = source
	return t
}

// Offset returns the number of bytes consumed so far.
func (t *Tokenizer) Offset() int64 {
	return t.offset + int64(t.pos)
}

// TokenOffset returns the byte offset of the most recently returned token.
func (t *Tokenizer) TokenOffset() int64 {
	return t.start
}

// Next returns the next value. It returns io.EOF once the input is exhausted,
// a *ParseError for a malformed token, and a wrapped error if reading fails.
func (t *Tokenizer) Next() (int32, error) {
	// skip whitespace
	for {
		if t.pos == t.end {
			if !t.fill() {
				return 0, t.readErr()
			}
			continue
		}
		if !isSpace(t.buf[t.pos]) {
			break
		}
		t.pos++
	}

	t.start = t.Offset()
	t.tok = t.tok[:0]
	for {
		if t.pos == t.end {
			if !t.fill() {
				if t.err != io.EOF {
					return 0, t.readErr()
				}
				break
			}
			continue
		}
		i := t.pos
		for i < t.end && !isSpace(t.buf[i]) {
			i++
		}
		t.tok = append(t.tok, t.buf[t.pos:i]...)
		t.pos = i
		if i < t.end {
			break
		}
	}

	v, err := parseInt32(t.tok)
	if err != nil {
		return 0, &ParseError{Source: t.source, Offset: t.start, Token: string(t.tok), Err: err}
	}
	return v, nil
}

// fill refills the buffer. It returns false when no more bytes are available.
func (t *Tokenizer) fill() bool {
	if t.err != nil {
		return false
	}
	t.offset += int64(t.end)
	t.pos, t.end = 0, 0
	for t.end == 0 {
		n, err := t.r.Read(t.buf)
		t.end = n
		if err != nil {
			t.err = err
			return n > 0
		}
	}
	return true
}

func (t *Tokenizer) readErr() error {
	if t.err == io.EOF {
		return io.EOF
	}
	if t.source != "" {
		return fmt.Errorf("read %s: %w", t.source, t.err)
	}
	return fmt.Errorf("read input: %w", t.err)
}

// isSpace matches the ASCII whitespace characters, including the file, group,
// record and unit separators.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r', 0x1c, 0x1d, 0x1e, 0x1f:
		return true
	}
	return false
}

// parseInt32 parses a base-10 integer with an optional sign.
func parseInt32(b []byte) (int32, error) {
	if len(b) == 0 {
		return 0, errInvalidSyntax
	}
	neg := false
	switch b[0] {
	case '-':
		neg = true
		b = b[1:]
	case '+':
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, errInvalidSyntax
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, errInvalidSyntax
		}
		n = n*10 + int64(c-'0')
		if n > math.MaxInt32+1 {
			return 0, errOutOfRange
		}
	}
	if neg {
		n = -n
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, errOutOfRange
	}
	return int32(n), nil
}
