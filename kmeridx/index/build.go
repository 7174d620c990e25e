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
	"runtime"

	"github.com/pkg/errors"
	"github.com/shenwei356/kmeridx/kmeridx/index/twobit"
	"github.com/twotwotwo/sorts/sortutil"
)

// DefaultPartitions is the default number of ranges each building phase is split into.
const DefaultPartitions = 4096

// Options contains the options for building an index.
type Options struct {
	// Threads is the maximum number of goroutines of each phase.
	// Sorting uses sorts.MaxProcs goroutines.
	Threads int

	// Partitions is the number of contiguous ranges each phase is split into.
	Partitions int

	// Provider provisions buffers in Build and BuildFromSeq.
	// A HeapProvider without limit is used if nil.
	Provider Provider
}

// DefaultOptions is the default options.
var DefaultOptions = Options{
	Threads:    runtime.NumCPU(),
	Partitions: DefaultPartitions,
}

func (opt *Options) threads() int {
	if opt.Threads < 1 {
		return 1
	}
	return opt.Threads
}

func (opt *Options) partitions() int {
	if opt.Partitions < 1 {
		return DefaultPartitions
	}
	return opt.Partitions
}

func (opt *Options) provider() Provider {
	if opt.Provider == nil {
		return &HeapProvider{}
	}
	return opt.Provider
}

// CheckShape checks the sequence length n and k-mer size k.
func CheckShape(n, k int) error {
	if k < 1 || k > MaxK {
		return errors.Wrapf(ErrInputShape, "k-mer size %d out of range: [1, %d]", k, MaxK)
	}
	if n < k {
		return errors.Wrapf(ErrInputShape, "sequence length %d < k-mer size %d", n, k)
	}
	if n-k+1 > MaxKmers {
		return errors.Wrapf(ErrInputShape, "too many k-mers: %d, the maximum: %d", n-k+1, MaxKmers)
	}
	return nil
}

func checkWords(words []uint32, n int) error {
	if len(words) < twobit.WordsFor(n) {
		return errors.Wrapf(ErrInputShape, "%d words given for %d bases, at least %d needed",
			len(words), n, twobit.WordsFor(n))
	}
	return nil
}

func errShortRecords(got, need int) error {
	return errors.Wrapf(ErrInputShape, "position buffer of %d elements, at least %d needed", got, need)
}

// Build builds an index from a packed sequence of n bases.
// Buffers are provisioned by opt.Provider, and the packed sequence is copied in.
// Either a complete index or an error is returned.
func Build(packed []uint32, n, k int, opt *Options) (*Index, error) {
	if opt == nil {
		opt = &DefaultOptions
	}
	if err := CheckShape(n, k); err != nil {
		return nil, err
	}
	if err := checkWords(packed, n); err != nil {
		return nil, err
	}

	return build(n, k, opt, func(b *Buffers) error {
		return b.Load(packed, n)
	})
}

// BuildFromSeq packs a DNA sequence into provisioned buffers and builds the index.
// Bases other than 'A', 'C', 'G', 'T' are treated as 'A'.
func BuildFromSeq(s []byte, k int, opt *Options) (*Index, error) {
	if opt == nil {
		opt = &DefaultOptions
	}
	if err := CheckShape(len(s), k); err != nil {
		return nil, err
	}

	return build(len(s), k, opt, func(b *Buffers) error {
		err := twobit.Pack(s, b.Packed, opt.threads())
		if err != nil {
			return errors.Wrapf(ErrResource, "failed to pack sequence: %s", err)
		}
		return nil
	})
}

func build(n, k int, opt *Options, load func(b *Buffers) error) (*Index, error) {
	var idx *Index
	err := WithBuffers(opt.provider(), n, k, func(b *Buffers) error {
		if err := load(b); err != nil {
			return err
		}

		if err := BuildInto(b.Packed, n, k, b.Offsets, b.Positions, opt); err != nil {
			return err
		}

		offsets, positions, err := b.Detach()
		if err != nil {
			return err
		}
		idx = &Index{
			k:         k,
			n:         n,
			Offsets:   offsets[:1<<(k<<1)+1],
			Positions: positions[:n-k+1],
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// BuildInto builds the offset table and the position array of a packed sequence
// of n bases into caller-provisioned buffers:
// len(offsets) >= 4^k+1, len(positions) >= n-k+1.
//
// Phases are run one after another, each phase waits for all its goroutines:
//
//  1. computing composite records of all k-mers,
//  2. sorting the records,
//  3. recording offsets of the run starts,
//  4. filling offsets of absent k-mers,
//  5. stripping k-mer codes from the records.
func BuildInto(packed []uint32, n, k int, offsets []uint32, positions []uint64, opt *Options) error {
	if opt == nil {
		opt = &DefaultOptions
	}
	if err := CheckShape(n, k); err != nil {
		return err
	}
	if err := checkWords(packed, n); err != nil {
		return err
	}
	m := n - k + 1
	if len(positions) < m {
		return errShortRecords(len(positions), m)
	}
	size := 1 << (k << 1)
	if len(offsets) < size+1 {
		return errors.Wrapf(ErrInputShape, "offset buffer of %d elements, at least %d needed",
			len(offsets), size+1)
	}

	threads, parts := opt.threads(), opt.partitions()
	records := positions[:m]

	extractKmers(packed, k, records, threads, parts)

	sortutil.Uint64s(records)

	deriveOffsets(records, offsets[:size+1], threads, parts)

	fillGaps(offsets[:size+1], threads, parts)

	stripTags(records, threads, parts)

	return nil
}
