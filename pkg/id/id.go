package id

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"
)

// ID is a 96-bit sortable request identifier: [6 bytes ms][6 bytes counter],
// both big-endian. The text form is 20 characters of Crockford base32.
type ID [12]byte

const (
	encoding   = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	encodedLen = 20
	maxCounter = 1<<48 - 1
)

// ErrInvalid is returned by Parse for malformed input.
var ErrInvalid = errors.New("id: invalid request id")

// Time returns the millisecond timestamp embedded in the id.
func (i ID) Time() time.Time {
	var b [8]byte
	copy(b[2:], i[:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(b[:])))
}

// String encodes the id as Crockford base32; the encoding sorts like the bytes.
func (i ID) String() string {
	out := make([]byte, encodedLen)
	var acc uint32
	bits := 0
	n := 0
	for _, v := range i {
		acc = acc<<8 | uint32(v)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out[n] = encoding[(acc>>uint(bits))&0x1f]
			n++
		}
	}
	if bits > 0 {
		out[n] = encoding[(acc<<uint(5-bits))&0x1f]
	}
	return string(out)
}

// Parse decodes a string produced by String.
func Parse(s string) (ID, error) {
	var id ID
	if len(s) != encodedLen {
		return id, ErrInvalid
	}
	var acc uint32
	bits := 0
	n := 0
	for i := 0; i < len(s); i++ {
		v := decodeChar(s[i])
		if v < 0 {
			return ID{}, ErrInvalid
		}
		acc = acc<<5 | uint32(v)
		bits += 5
		if bits >= 8 && n < len(id) {
			bits -= 8
			id[n] = byte(acc >> uint(bits))
			n++
		}
	}
	return id, nil
}

func decodeChar(c byte) int {
	for i := 0; i < len(encoding); i++ {
		if encoding[i] == c {
			return i
		}
	}
	return -1
}

// Generator produces strictly increasing ids per process.
type Generator struct {
	mu      sync.Mutex
	lastMs  int64
	counter uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID. A clock that moves backwards is pinned to the last
// seen millisecond; a counter that runs out rolls into the next millisecond.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	switch {
	case ms > g.lastMs:
		g.lastMs = ms
		g.counter = 0
	case g.counter == maxCounter:
		g.lastMs++
		g.counter = 0
	default:
		g.counter++
	}

	var id ID
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(g.lastMs))
	copy(id[:6], b[2:])
	binary.BigEndian.PutUint64(b[:], g.counter)
	copy(id[6:], b[2:])
	return id
}

var defaultGen = NewGenerator()

// New returns the next id from the process-wide generator as a string.
func New() string { return defaultGen.Next().String() }
