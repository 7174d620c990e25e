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

package index

import (
	"errors"
	"fmt"
	"math"

	"github.com/shenwei356/kmeridx/kmeridx/util"
	"github.com/zeebo/wyhash"
)

// MaxK is the largest k-mer size: a k-mer code must fit in the higher
// 32 bits of a composite record.
const MaxK = 16

// MaxKmers is the maximum number of k-mers (N-k+1) in an index.
// math.MaxUint32 is reserved for unset offsets.
const MaxKmers = math.MaxUint32 - 1

// ErrInputShape means the sequence length or k-mer size is invalid,
// or a caller-provisioned buffer is too small.
var ErrInputShape = errors.New("kmer index: invalid input shape")

// ErrResource means buffers can not be provisioned.
var ErrResource = errors.New("kmer index: resource failure")

// Index stores positions of all k-mers of a DNA sequence.
// It is read-only after construction.
//
// Positions of k-mer v are Positions[Offsets[v]:Offsets[v+1]], in ascending order.
type Index struct {
	k int
	n int // the number of bases

	// Offsets[v] is the start of the run of k-mer v in Positions.
	// K-mers that do not occur have the offset of the next occurring one.
	// len(Offsets) is 4^k+1, and the last element equals len(Positions).
	Offsets []uint32

	// Positions are 0-based start positions of all k-mers,
	// sorted by k-mer codes and then positions.
	Positions []uint64

	// ------------- optional -------------

	path string // path of the index directory

	Catalog *Catalog // names and locations of the concatenated sequences
}

// K returns the k-mer size.
func (idx *Index) K() int {
	return idx.k
}

// Len returns the number of bases of the indexed sequence.
func (idx *Index) Len() int {
	return idx.n
}

// NumKmers returns the number of k-mer positions, i.e., N-k+1.
func (idx *Index) NumKmers() int {
	return len(idx.Positions)
}

// Path returns the directory the index is read from or written to.
func (idx *Index) Path() string {
	return idx.path
}

// Lookup returns positions of a k-mer code, nil for codes out of range.
// The returned slice must not be modified.
func (idx *Index) Lookup(code uint64) []uint64 {
	if code >= uint64(len(idx.Offsets)-1) {
		return nil
	}
	return idx.Positions[idx.Offsets[code]:idx.Offsets[code+1]]
}

// Count returns the number of occurrences of a k-mer code.
func (idx *Index) Count(code uint64) int {
	if code >= uint64(len(idx.Offsets)-1) {
		return 0
	}
	return int(idx.Offsets[code+1] - idx.Offsets[code])
}

// LookupSeq returns positions of a k-mer given in bases.
func (idx *Index) LookupSeq(kmer []byte) ([]uint64, error) {
	if len(kmer) != idx.k {
		return nil, fmt.Errorf("k-mer size mismatch: %d, the index k: %d", len(kmer), idx.k)
	}
	code, err := util.Encode(kmer)
	if err != nil {
		return nil, err
	}
	return idx.Lookup(code), nil
}

// Walk visits all occurring k-mers in ascending order of their codes.
// It stops if fn returns true.
func (idx *Index) Walk(fn func(code uint64, positions []uint64) (stop bool)) {
	var start, end uint32
	for v := 0; v < len(idx.Offsets)-1; v++ {
		start, end = idx.Offsets[v], idx.Offsets[v+1]
		if start == end {
			continue
		}
		if fn(uint64(v), idx.Positions[start:end]) {
			return
		}
	}
}

// Checksum returns a hash value of k, Offsets and Positions.
// Identical indexes have the same checksum on any platform.
func (idx *Index) Checksum() uint64 {
	h := &checksummer{buf: make([]byte, 0, 64<<10), h: uint64(idx.k)}
	for _, v := range idx.Offsets {
		h.putUint32(v)
	}
	for _, v := range idx.Positions {
		h.putUint32(uint32(v))
	}
	return h.sum()
}

type checksummer struct {
	buf []byte
	h   uint64
}

func (c *checksummer) putUint32(v uint32) {
	c.buf = be.AppendUint32(c.buf, v)
	if len(c.buf) == cap(c.buf) {
		c.h = wyhash.Hash(c.buf, c.h)
		c.buf = c.buf[:0]
	}
}

func (c *checksummer) sum() uint64 {
	if len(c.buf) > 0 {
		c.h = wyhash.Hash(c.buf, c.h)
		c.buf = c.buf[:0]
	}
	return c.h
}
