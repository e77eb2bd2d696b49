package encoding

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/zeusync/statesync/pkg/generic"
)

var (
	ErrShortBuffer = errors.New("encoding: short buffer")
	ErrTrailing    = errors.New("encoding: trailing bytes")
	ErrLength      = errors.New("encoding: length out of range")
)

// Encoder is implemented by values that write themselves to an archive.
type Encoder interface {
	EncodeTo(w *Writer)
}

// Writer appends little-endian primitives to a growing buffer.
type Writer struct {
	buf []byte
}

var writers = generic.NewPool(func() *Writer {
	return &Writer{buf: make([]byte, 0, 1024)}
}, (*Writer).Reset)

func NewWriter() *Writer { return &Writer{} }

// AcquireWriter takes a reset writer from the shared pool. Release it once the
// result of Bytes has been copied or consumed.
func AcquireWriter() *Writer { return writers.Get() }

func ReleaseWriter(w *Writer) { writers.Put(w) }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

// Reset empties the buffer, keeping its capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

func (w *Writer) Uint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
		return
	}
	w.Uint8(0)
}

func (w *Writer) Uint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *Writer) Uint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *Writer) Uint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *Writer) Int64(v int64) { w.Uint64(uint64(v)) }

func (w *Writer) Float64(v float64) { w.Uint64(math.Float64bits(v)) }

// Bytes32 writes a u32 length prefix followed by the raw bytes.
func (w *Writer) Bytes32(b []byte) {
	w.Uint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) String(s string) {
	w.Uint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// Reader consumes an archive produced by Writer. The first failure is sticky:
// later reads return zero values and Err reports the original error.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Err() error { return r.err }

func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Finish returns the sticky error, or ErrTrailing if unread bytes remain.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return ErrTrailing
	}
	return nil
}

// Fail records err unless an earlier error is already set.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool { return r.Uint8() != 0 }

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) Int64() int64 { return int64(r.Uint64()) }

func (r *Reader) Float64() float64 { return math.Float64frombits(r.Uint64()) }

// Count reads a u32 element count and rejects values that cannot fit in the
// remaining input given the minimum encoded size of one element.
func (r *Reader) Count(minElem int) int {
	n := int(r.Uint32())
	if r.err != nil {
		return 0
	}
	if minElem > 0 && n > r.Remaining()/minElem {
		r.err = ErrLength
		return 0
	}
	return n
}

func (r *Reader) Bytes32() []byte {
	n := r.Count(1)
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *Reader) String() string {
	n := r.Count(1)
	return string(r.take(n))
}
