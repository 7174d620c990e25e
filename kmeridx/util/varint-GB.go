// Copyright © 2023-2026 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package util

import (
	"errors"
	"io"
)

var offsetsUint32 = []uint8{24, 16, 8, 0}

// ErrBrokenStream means the encoded stream ends in the middle of a group.
var ErrBrokenStream = errors.New("stream vbyte: broken stream")

// PutUint32s encodes four uint32s into 4-16 bytes, and returns control byte
// and encoded byte length.
func PutUint32s(buf []byte, v1, v2, v3, v4 uint32) (ctrl byte, n int) {
	for _, v := range [4]uint32{v1, v2, v3, v4} {
		blen := ByteLengthUint32(v)
		ctrl = ctrl<<2 | byte(blen-1)
		for _, offset := range offsetsUint32[4-blen:] {
			buf[n] = byte((v >> offset) & 0xff)
			n++
		}
	}
	return
}

// Uint32s decodes encoded bytes.
func Uint32s(ctrl byte, buf []byte) (vs [4]uint32, n int) {
	if len(buf) < CtrlByte2ByteLengthsUint32(ctrl) {
		return vs, 0
	}

	var blen, j int
	for i := 0; i < 4; i++ {
		blen = int((ctrl>>(6-(i<<1)))&3) + 1
		for j = 0; j < blen; j++ {
			vs[i] <<= 8
			vs[i] |= uint32(buf[n])
			n++
		}
	}
	return
}

// ByteLengthUint32 returns the minimum number of bytes to store a integer.
func ByteLengthUint32(n uint32) uint8 {
	if n < 256 {
		return 1
	}
	if n < 65536 {
		return 2
	}
	if n < 16777216 {
		return 3
	}
	return 4
}

// CtrlByte2ByteLengthsUint32 returns the byte length for a given control byte.
func CtrlByte2ByteLengthsUint32(ctrl byte) int {
	return int(ctrl>>6&3+ctrl>>4&3+ctrl>>2&3+ctrl&3) + 4
}

// Uint32Writer writes a stream of uint32s in groups of four,
// each group is a control byte followed by 4-16 bytes.
type Uint32Writer struct {
	w    io.Writer
	vals [4]uint32
	i    int
	buf  []byte

	N int // written bytes
}

// NewUint32Writer creates a Uint32Writer.
func NewUint32Writer(w io.Writer) *Uint32Writer {
	return &Uint32Writer{w: w, buf: make([]byte, 17)}
}

// Put appends one value.
func (w *Uint32Writer) Put(v uint32) error {
	w.vals[w.i] = v
	w.i++
	if w.i < 4 {
		return nil
	}
	return w.flush()
}

func (w *Uint32Writer) flush() error {
	ctrl, n := PutUint32s(w.buf[1:], w.vals[0], w.vals[1], w.vals[2], w.vals[3])
	w.buf[0] = ctrl
	_, err := w.w.Write(w.buf[:n+1])
	if err != nil {
		return err
	}
	w.N += n + 1
	w.i = 0
	w.vals = [4]uint32{}
	return nil
}

// Flush writes the last incomplete group, padded with zeros.
func (w *Uint32Writer) Flush() error {
	if w.i == 0 {
		return nil
	}
	return w.flush()
}

// Uint32Reader reads values written by Uint32Writer.
// The number of values is not saved in the stream, callers need to know it.
type Uint32Reader struct {
	r    io.Reader
	vals [4]uint32
	i    int
	buf  []byte
}

// NewUint32Reader creates a Uint32Reader.
func NewUint32Reader(r io.Reader) *Uint32Reader {
	return &Uint32Reader{r: r, i: 4, buf: make([]byte, 16)}
}

// Next returns the next value.
func (r *Uint32Reader) Next() (uint32, error) {
	if r.i == 4 {
		_, err := io.ReadFull(r.r, r.buf[:1])
		if err != nil {
			return 0, err
		}
		ctrl := r.buf[0]
		nBytes := CtrlByte2ByteLengthsUint32(ctrl)

		_, err = io.ReadFull(r.r, r.buf[:nBytes])
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, ErrBrokenStream
			}
			return 0, err
		}

		var n int
		r.vals, n = Uint32s(ctrl, r.buf[:nBytes])
		if n == 0 {
			return 0, ErrBrokenStream
		}
		r.i = 0
	}

	v := r.vals[r.i]
	r.i++
	return v, nil
}
