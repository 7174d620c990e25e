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
	"github.com/shenwei356/kmeridx/kmeridx/util"
)

// KmerAt returns the code of the k-mer starting at position i of a packed sequence.
// The k-mer may span two words, a missing second word is treated as zero.
func KmerAt(words []uint32, i, k int) uint64 {
	w := i >> 4
	shift := uint(i&15) << 1

	code := uint64(words[w]) >> shift
	if shift > 0 && w+1 < len(words) {
		code |= uint64(words[w+1]) << (32 - shift)
	}
	return code & (1<<(uint(k)<<1) - 1)
}

// ExtractKmers computes one composite record for every k-mer position i
// in [0, n-k] of a packed sequence of n bases, and saves it in records[i].
//
// A record is code<<32 | i, so sorting records in ascending order groups
// them by k-mer codes, and orders positions of the same k-mer.
func ExtractKmers(words []uint32, n, k int, records []uint64, opt *Options) error {
	if opt == nil {
		opt = &DefaultOptions
	}
	if err := CheckShape(n, k); err != nil {
		return err
	}
	if err := checkWords(words, n); err != nil {
		return err
	}
	m := n - k + 1
	if len(records) < m {
		return errShortRecords(len(records), m)
	}

	extractKmers(words, k, records[:m], opt.threads(), opt.partitions())
	return nil
}

func extractKmers(words []uint32, k int, records []uint64, threads, parts int) {
	util.ForEachRange(util.Partitions(len(records), parts), threads, func(_, begin, end int) {
		for i := begin; i < end; i++ {
			records[i] = KmerAt(words, i, k)<<32 | uint64(i)
		}
	})
}
