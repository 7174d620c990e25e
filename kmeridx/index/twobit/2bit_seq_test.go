// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
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

package twobit

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func randSeq(n int) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = bit2base[rand.Intn(4)]
	}
	return s
}

func TestPackGACT(t *testing.T) {
	words := PackSeq([]byte("GACT"))
	if len(words) != 2 {
		t.Errorf("unexpected number of words: %d, expected: 2", len(words))
	}
	if words[0] != 0b11010010 {
		t.Errorf("unexpected packed word: %08b, expected: %08b", words[0], 0b11010010)
	}
	if words[1] != 0 {
		t.Errorf("the extra word should be zero: %d", words[1])
	}
}

func TestPackRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 2, 15, 16, 17, 31, 32, 33, 1000, 100001} {
		s := randSeq(n)

		for _, threads := range []int{1, 4} {
			words := make([]uint32, WordsFor(n)+1)
			words[len(words)-1] = 0xffffffff // should be cleared
			if err := Pack(s, words, threads); err != nil {
				t.Error(err)
				return
			}
			if words[len(words)-1] != 0 {
				t.Errorf("n=%d, threads=%d: extra word not cleared", n, threads)
			}

			s2, err := Unpack(words, n)
			if err != nil {
				t.Error(err)
				return
			}
			if string(s2) != string(s) {
				t.Errorf("n=%d, threads=%d: unpacked sequence mismatch", n, threads)
			}
		}
	}
}

func TestPackInvalidBases(t *testing.T) {
	words := PackSeq([]byte("NCxTacgt"))
	s, err := Unpack(words, 8)
	if err != nil {
		t.Error(err)
		return
	}
	if string(s) != "ACATAAAA" {
		t.Errorf("unexpected result: %s, expected: %s", s, "ACATAAAA")
	}
}

func TestPackShortBuffer(t *testing.T) {
	err := Pack(randSeq(17), make([]uint32, 1), 1)
	if !errors.Is(err, ErrShortBuffer) {
		t.Errorf("expected ErrShortBuffer, got: %v", err)
	}

	if _, err = Unpack(make([]uint32, 1), 17); err != ErrInvalidTwoBitData {
		t.Errorf("expected ErrInvalidTwoBitData, got: %v", err)
	}
}

func TestSubSeq(t *testing.T) {
	s := randSeq(100)
	words := PackSeq(s)
	regions := [][2]int{{0, 0}, {0, 99}, {15, 16}, {3, 50}, {99, 99}}
	for _, r := range regions {
		sub, err := SubSeq(words, len(s), r[0], r[1])
		if err != nil {
			t.Error(err)
			return
		}
		if string(sub) != string(s[r[0]:r[1]+1]) {
			t.Errorf("[%d, %d]: unexpected subsequence: %s, expected: %s", r[0], r[1], sub, s[r[0]:r[1]+1])
		}
	}

	if _, err := SubSeq(words, len(s), 10, 100); err == nil {
		t.Errorf("expected an error for an out-of-range region")
	}
}

func TestReadWrite(t *testing.T) {
	dir, err := os.MkdirTemp("", "twobit")
	if err != nil {
		t.Error(err)
		return
	}
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "t.2bit")

	seqs := [][]byte{randSeq(1), randSeq(16), randSeq(1000), randSeq(33)}

	w, err := NewWriter(file)
	if err != nil {
		t.Error(err)
		return
	}
	for i, s := range seqs {
		if i%2 == 0 {
			err = w.WriteSeq(s)
		} else {
			err = w.Write2Bit(PackSeq(s), len(s))
		}
		if err != nil {
			t.Error(err)
			return
		}
	}
	if err = w.WriteSeq(nil); err != ErrEmptySeq {
		t.Errorf("expected ErrEmptySeq, got: %v", err)
	}
	if err = w.Close(); err != nil {
		t.Error(err)
		return
	}

	r, err := NewReader(file)
	if err != nil {
		t.Error(err)
		return
	}
	defer r.Close()

	if r.NumSeqs() != len(seqs) {
		t.Errorf("unexpected number of sequences: %d, expected: %d", r.NumSeqs(), len(seqs))
		return
	}

	for i, s := range seqs {
		s2, err := r.Seq(i)
		if err != nil {
			t.Error(err)
			return
		}
		if string(s2) != string(s) {
			t.Errorf("#%d: sequence mismatch", i)
		}

		words, n, err := r.Words(i)
		if err != nil {
			t.Error(err)
			return
		}
		if n != len(s) || len(words) != WordsFor(n) {
			t.Errorf("#%d: unexpected words: %d, bases: %d", i, len(words), n)
		}
	}

	sub, err := r.SubSeq(2, 17, 70)
	if err != nil {
		t.Error(err)
		return
	}
	if string(sub) != string(seqs[2][17:71]) {
		t.Errorf("unexpected subsequence: %s, expected: %s", sub, seqs[2][17:71])
	}

	if _, err = r.Seq(len(seqs)); err == nil {
		t.Errorf("expected an error for an out-of-range sequence index")
	}
}

func BenchmarkPack(b *testing.B) {
	s := randSeq(1 << 20)
	words := make([]uint32, WordsFor(len(s)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Pack(s, words, 4)
	}
}
