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
	"bytes"
	"math/rand"
	"testing"
)

var testsUint32 [][4]uint32

func init() {
	ntests := 10000
	testsUint32 = make([][4]uint32, ntests)
	var i int
	for ; i < ntests/2; i++ {
		testsUint32[i] = [4]uint32{rand.Uint32(), rand.Uint32(), rand.Uint32(), rand.Uint32()}
	}
	for ; i < ntests*3/4; i++ {
		testsUint32[i] = [4]uint32{uint32(rand.Intn(65536)), uint32(rand.Intn(256)), uint32(rand.Intn(65536)), uint32(rand.Intn(256))}
	}
	for ; i < ntests; i++ {
		testsUint32[i] = [4]uint32{uint32(rand.Intn(256)), uint32(rand.Intn(256)), uint32(rand.Intn(256)), uint32(rand.Intn(256))}
	}
}

func TestStreamVByte32(t *testing.T) {
	buf := make([]byte, 16)
	var ctrl byte
	var n, n2 int
	var vs [4]uint32
	for i, test := range testsUint32 {
		ctrl, n = PutUint32s(buf, test[0], test[1], test[2], test[3])
		if CtrlByte2ByteLengthsUint32(ctrl) != n {
			t.Errorf("#%d, wrong byte length", i)
		}

		vs, n2 = Uint32s(ctrl, buf[0:n])
		if n2 != n {
			t.Errorf("#%d, wrong decoded length: %d, expected: %d", i, n2, n)
		}

		if vs != test {
			t.Errorf("#%d, wrong decoded result: %v, answer: %v", i, vs, test)
		}
	}
}

func TestUint32Stream(t *testing.T) {
	for _, n := range []int{0, 1, 3, 4, 5, 1000, 1001} {
		vals := make([]uint32, n)
		for i := range vals {
			vals[i] = rand.Uint32() >> uint(rand.Intn(32))
		}

		var buf bytes.Buffer
		w := NewUint32Writer(&buf)
		for _, v := range vals {
			if err := w.Put(v); err != nil {
				t.Error(err)
				return
			}
		}
		if err := w.Flush(); err != nil {
			t.Error(err)
			return
		}
		if w.N != buf.Len() {
			t.Errorf("n=%d: unexpected written bytes: %d, buffer: %d", n, w.N, buf.Len())
		}

		r := NewUint32Reader(&buf)
		for i, v := range vals {
			v2, err := r.Next()
			if err != nil {
				t.Errorf("n=%d: #%d: %s", n, i, err)
				return
			}
			if v2 != v {
				t.Errorf("n=%d: #%d: unexpected value: %d, expected: %d", n, i, v2, v)
			}
		}
	}
}

func TestUint32StreamBroken(t *testing.T) {
	var buf bytes.Buffer
	w := NewUint32Writer(&buf)
	for _, v := range []uint32{1 << 30, 2, 3, 4} {
		w.Put(v)
	}
	data := buf.Bytes()

	r := NewUint32Reader(bytes.NewReader(data[:len(data)-1]))
	if _, err := r.Next(); err != ErrBrokenStream {
		t.Errorf("expected ErrBrokenStream, got: %v", err)
	}
}

func TestPartitions(t *testing.T) {
	tests := [][2]int{ // n, parts
		{1, 1}, {1, 8}, {10, 3}, {16, 4}, {17, 4}, {100, 7}, {5, 0}, {4096, 4096}, {4097, 4096},
	}
	for _, test := range tests {
		n, parts := test[0], test[1]
		ranges := Partitions(n, parts)
		if len(ranges) == 0 {
			t.Errorf("n=%d, parts=%d: no ranges", n, parts)
			continue
		}
		if ranges[0][0] != 0 || ranges[len(ranges)-1][1] != n {
			t.Errorf("n=%d, parts=%d: ranges do not cover [0, %d): %v", n, parts, n, ranges)
		}
		for i := 1; i < len(ranges); i++ {
			if ranges[i][0] != ranges[i-1][1] {
				t.Errorf("n=%d, parts=%d: gap or overlap between range %d and %d", n, parts, i-1, i)
			}
			if ranges[i-1][1] <= ranges[i-1][0] {
				t.Errorf("n=%d, parts=%d: empty range %d", n, parts, i-1)
			}
		}
	}

	if Partitions(0, 4) != nil {
		t.Errorf("expected no ranges for n=0")
	}
}

func TestForEachRange(t *testing.T) {
	n := 100003
	for _, threads := range []int{1, 2, 8} {
		marks := make([]uint8, n)
		ForEachRange(Partitions(n, 97), threads, func(_, begin, end int) {
			for i := begin; i < end; i++ {
				marks[i]++
			}
		})
		for i, m := range marks {
			if m != 1 {
				t.Errorf("threads=%d: position %d visited %d times", threads, i, m)
				break
			}
		}
	}
}

func TestEncode(t *testing.T) {
	// the first base is saved in the lowest bits
	tests := map[string]uint64{
		"A":    0,
		"T":    3,
		"GA":   2,
		"AC":   4,
		"CT":   13,
		"GACT": 0b11010010,
	}
	for kmer, code := range tests {
		c, err := Encode([]byte(kmer))
		if err != nil {
			t.Error(err)
			return
		}
		if c != code {
			t.Errorf("%s: unexpected code: %d, expected: %d", kmer, c, code)
		}
		if s := MustDecode(c, len(kmer)); string(s) != kmer {
			t.Errorf("%d: unexpected k-mer: %s, expected: %s", c, s, kmer)
		}
	}
}

func TestUniqUint64s(t *testing.T) {
	list := []uint64{5, 1, 5, 3, 1, 1, 9}
	UniqUint64s(&list)
	expected := []uint64{1, 3, 5, 9}
	if len(list) != len(expected) {
		t.Errorf("unexpected result: %v, expected: %v", list, expected)
		return
	}
	for i, v := range expected {
		if list[i] != v {
			t.Errorf("unexpected result: %v, expected: %v", list, expected)
			return
		}
	}
}
