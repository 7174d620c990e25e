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
	"github.com/shenwei356/kmers"
	"github.com/twotwotwo/sorts/sortutil"
)

// K-mer codes here store the first base in the lowest two bits,
// which is the reverse of the base order used by github.com/shenwei356/kmers.

// Encode converts a k-mer (k <= 32) to its code.
// Illegal bases are reported by kmers.Encode.
func Encode(kmer []byte) (uint64, error) {
	rev := append(make([]byte, 0, len(kmer)), kmer...)
	ReverseBytes(rev)
	return kmers.Encode(rev)
}

// MustDecode converts a code back to the k-mer.
func MustDecode(code uint64, k int) []byte {
	kmer := append([]byte(nil), kmers.MustDecode(code, k)...)
	ReverseBytes(kmer)
	return kmer
}

// ReverseBytes reverses a byte slice in place.
func ReverseBytes(s []byte) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// UniqUint64s sorts a uint64 list and removes duplicates.
func UniqUint64s(list *[]uint64) {
	if len(*list) < 2 {
		return
	}

	sortutil.Uint64s(*list)

	j := 1
	p := (*list)[0]
	for _, v := range (*list)[1:] {
		if v == p {
			continue
		}
		(*list)[j] = v
		j++
		p = v
	}
	*list = (*list)[:j]
}
