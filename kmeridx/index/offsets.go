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
	"math"

	"github.com/shenwei356/kmeridx/kmeridx/util"
)

// unsetOffset marks k-mers without a directly observed run start.
const unsetOffset = math.MaxUint32

// maskPosition keeps the position bits of a composite record.
const maskPosition = 1<<32 - 1

// deriveOffsets records the start of every run of the same k-mer in sorted records.
// offsets has 4^k+1 elements; entries of absent k-mers stay unsetOffset,
// and the last one is set to len(records).
//
// Each partition compares its first record with the last one of the previous
// partition, so runs crossing partition boundaries are handled, and every
// run start is written by exactly one goroutine.
func deriveOffsets(records []uint64, offsets []uint32, threads, parts int) {
	last := len(offsets) - 1
	util.ForEachRange(util.Partitions(last, parts), threads, func(_, begin, end int) {
		for v := begin; v < end; v++ {
			offsets[v] = unsetOffset
		}
	})
	offsets[last] = uint32(len(records))

	util.ForEachRange(util.Partitions(len(records), parts), threads, func(_, begin, end int) {
		var pre, code uint64
		if begin > 0 {
			pre = records[begin-1] >> 32
		}
		for i := begin; i < end; i++ {
			code = records[i] >> 32
			if i == 0 || code != pre {
				offsets[code] = uint32(i)
			}
			pre = code
		}
	})
}

// fillGaps sets every unset offset to the nearest following set one,
// so absent k-mers have empty runs. The last offset must be set.
//
// Two passes over partitions of the offset table: the first finds the
// leftmost set offset of each partition, a sequential scan from right to left
// then gives every partition the value to carry in from its right side,
// and the second pass fills each partition from right to left.
func fillGaps(offsets []uint32, threads, parts int) {
	ranges := util.Partitions(len(offsets), parts)

	firsts := make([]uint32, len(ranges))
	util.ForEachRange(ranges, threads, func(i, begin, end int) {
		firsts[i] = unsetOffset
		for v := begin; v < end; v++ {
			if offsets[v] != unsetOffset {
				firsts[i] = offsets[v]
				return
			}
		}
	})

	carries := make([]uint32, len(ranges))
	var carry uint32 = unsetOffset
	for i := len(ranges) - 1; i >= 0; i-- {
		carries[i] = carry
		if firsts[i] != unsetOffset {
			carry = firsts[i]
		}
	}

	util.ForEachRange(ranges, threads, func(i, begin, end int) {
		next := carries[i]
		for v := end - 1; v >= begin; v-- {
			if offsets[v] == unsetOffset {
				offsets[v] = next
			} else {
				next = offsets[v]
			}
		}
	})
}

// stripTags removes k-mer codes from sorted records, leaving positions.
func stripTags(records []uint64, threads, parts int) {
	util.ForEachRange(util.Partitions(len(records), parts), threads, func(_, begin, end int) {
		for i := begin; i < end; i++ {
			records[i] &= maskPosition
		}
	})
}
