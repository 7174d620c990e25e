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

import "sync"

// Partitions splits [0, n) into at most parts contiguous ranges of the same size.
// The last range absorbs the remainder, so the ranges tile [0, n) exactly.
func Partitions(n, parts int) [][2]int {
	if n <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}

	size := n / parts
	ranges := make([][2]int, parts)
	var begin int
	for i := range ranges {
		ranges[i] = [2]int{begin, begin + size}
		begin += size
	}
	ranges[parts-1][1] = n

	return ranges
}

// ForEachRange calls fn for every range, with at most threads goroutines
// running at the same time. It returns after all calls finish.
// i is the index of the range in ranges.
func ForEachRange(ranges [][2]int, threads int, fn func(i, begin, end int)) {
	if threads <= 1 || len(ranges) == 1 {
		for i, r := range ranges {
			fn(i, r[0], r[1])
		}
		return
	}

	var wg sync.WaitGroup
	tokens := make(chan int, threads)
	for i, r := range ranges {
		wg.Add(1)
		tokens <- 1
		go func(i int, r [2]int) {
			fn(i, r[0], r[1])
			wg.Done()
			<-tokens
		}(i, r)
	}
	wg.Wait()
}
