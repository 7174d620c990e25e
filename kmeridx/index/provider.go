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
	"github.com/pkg/errors"
	"github.com/shenwei356/kmeridx/kmeridx/index/twobit"
)

// Buffers holds all memory used in building an index:
// the packed sequence, the offset table and the record/position array.
type Buffers struct {
	Packed    []uint32 // at least twobit.WordsFor(N) words
	Offsets   []uint32 // 4^k+1 elements
	Positions []uint64 // N-k+1 elements, composite records during building
}

// Load copies a packed sequence of n bases into the buffers.
func (b *Buffers) Load(packed []uint32, n int) error {
	nWords := twobit.WordsFor(n)
	if len(packed) < nWords || len(b.Packed) < nWords {
		return errors.Wrapf(ErrResource, "failed to transfer %d words", nWords)
	}
	copy(b.Packed, packed[:nWords])
	clear(b.Packed[nWords:])
	return nil
}

// Detach hands over the offset table and the position array to the caller.
// They are not touched by Provider.Release any more.
func (b *Buffers) Detach() ([]uint32, []uint64, error) {
	if b.Offsets == nil || b.Positions == nil {
		return nil, nil, errors.Wrap(ErrResource, "output buffers already detached")
	}
	offsets, positions := b.Offsets, b.Positions
	b.Offsets, b.Positions = nil, nil
	return offsets, positions, nil
}

// Provider allocates and releases buffers for building an index.
type Provider interface {
	// Alloc returns buffers for a sequence of n bases and k-mer size k.
	Alloc(n, k int) (*Buffers, error)
	// Release frees buffers which are not detached.
	Release(b *Buffers)
}

// BufferBytes returns the number of bytes of buffers for a sequence of n bases
// and k-mer size k, with one slack word for the packed sequence.
func BufferBytes(n, k int) int64 {
	return int64(twobit.WordsFor(n)+1)<<2 +
		(int64(1)<<(k<<1)+1)<<2 +
		int64(n-k+1)<<3
}

// HeapProvider allocates buffers on the heap.
type HeapProvider struct {
	// MaxBytes limits the size of buffers of one building, 0 for no limit.
	MaxBytes int64
}

// Alloc allocates buffers.
func (p *HeapProvider) Alloc(n, k int) (b *Buffers, err error) {
	need := BufferBytes(n, k)
	if p.MaxBytes > 0 && need > p.MaxBytes {
		return nil, errors.Wrapf(ErrResource, "%d bytes needed, %d bytes allowed", need, p.MaxBytes)
	}

	// make panics on lengths the runtime can not allocate.
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = errors.Wrapf(ErrResource, "failed to allocate %d bytes: %v", need, r)
		}
	}()

	b = &Buffers{
		Packed:    make([]uint32, twobit.WordsFor(n)+1),
		Offsets:   make([]uint32, 1<<(k<<1)+1),
		Positions: make([]uint64, n-k+1),
	}
	return b, nil
}

// Release drops references to the buffers.
func (p *HeapProvider) Release(b *Buffers) {
	if b == nil {
		return
	}
	b.Packed = nil
	b.Offsets = nil
	b.Positions = nil
}

// WithBuffers allocates buffers with p, calls fn, and always releases
// the buffers before returning, whether fn succeeds or not.
func WithBuffers(p Provider, n, k int, fn func(b *Buffers) error) error {
	b, err := p.Alloc(n, k)
	if err != nil {
		return err
	}
	defer p.Release(b)

	return fn(b)
}
