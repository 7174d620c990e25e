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
	"math/rand"
	"testing"

	"github.com/shenwei356/kmeridx/kmeridx/index/twobit"
	"github.com/shenwei356/kmeridx/kmeridx/util"
)

var bases = []byte("ACGT")

func randSeq(r *rand.Rand, n int, alphabet []byte) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = alphabet[r.Intn(len(alphabet))]
	}
	return s
}

// kmerCode encodes a k-mer from bases, the first base in the lowest bits.
func kmerCode(s []byte) uint64 {
	var code uint64
	for i := len(s) - 1; i >= 0; i-- {
		code <<= 2
		switch s[i] {
		case 'C':
			code |= 1
		case 'G':
			code |= 2
		case 'T':
			code |= 3
		}
	}
	return code
}

// checkIndex checks all the properties of an index built from s.
func checkIndex(t *testing.T, s []byte, k int, idx *Index) {
	t.Helper()
	n := len(s)
	m := n - k + 1
	size := 1 << (k << 1)

	if idx.K() != k || idx.Len() != n || idx.NumKmers() != m {
		t.Errorf("unexpected k: %d, n: %d, #k-mers: %d", idx.K(), idx.Len(), idx.NumKmers())
		return
	}
	if len(idx.Offsets) != size+1 {
		t.Errorf("unexpected number of offsets: %d, expected: %d", len(idx.Offsets), size+1)
		return
	}
	if idx.Offsets[0] != 0 || int(idx.Offsets[size]) != m {
		t.Errorf("unexpected first/last offsets: %d, %d", idx.Offsets[0], idx.Offsets[size])
		return
	}

	// monotonicity
	for v := 1; v <= size; v++ {
		if idx.Offsets[v] < idx.Offsets[v-1] {
			t.Errorf("offsets decrease at %d: %d < %d", v, idx.Offsets[v], idx.Offsets[v-1])
			return
		}
	}

	// coverage, group correctness and order
	seen := make([]bool, m)
	for v := 0; v < size; v++ {
		positions := idx.Lookup(uint64(v))
		if len(positions) != idx.Count(uint64(v)) {
			t.Errorf("k-mer %d: count mismatch", v)
			return
		}
		for j, p := range positions {
			if p >= uint64(m) {
				t.Errorf("k-mer %d: position out of range: %d", v, p)
				return
			}
			if seen[p] {
				t.Errorf("k-mer %d: duplicated position: %d", v, p)
				return
			}
			seen[p] = true

			if code := kmerCode(s[p : p+uint64(k)]); code != uint64(v) {
				t.Errorf("position %d: k-mer %s (%d) found in the group of %d", p, s[p:p+uint64(k)], code, v)
				return
			}

			if j > 0 && positions[j-1] >= p {
				t.Errorf("k-mer %d: positions not in ascending order: %v", v, positions)
				return
			}
		}
	}
	for p, ok := range seen {
		if !ok {
			t.Errorf("position %d missing", p)
			return
		}
	}
}

func TestGACT(t *testing.T) {
	s := []byte("GACT")
	idx, err := BuildFromSeq(s, 2, &Options{Threads: 2, Partitions: 3})
	if err != nil {
		t.Error(err)
		return
	}

	positions := []uint64{0, 1, 2}
	for i, p := range positions {
		if idx.Positions[i] != p {
			t.Errorf("unexpected positions: %v, expected: %v", idx.Positions, positions)
			break
		}
	}

	// GA: 2, AC: 4, CT: 13
	offsets := []uint32{0, 0, 0, 1, 1, 2, 2, 2, 2, 2, 2, 2, 2, 2, 3, 3, 3}
	if len(idx.Offsets) != len(offsets) {
		t.Errorf("unexpected number of offsets: %d, expected: %d", len(idx.Offsets), len(offsets))
		return
	}
	for v, o := range offsets {
		if idx.Offsets[v] != o {
			t.Errorf("unexpected offset of %d: %d, expected: %d", v, idx.Offsets[v], o)
		}
	}

	for _, kmer := range []string{"GA", "AC", "CT"} {
		locs, err := idx.LookupSeq([]byte(kmer))
		if err != nil {
			t.Error(err)
			return
		}
		if len(locs) != 1 || string(s[locs[0]:locs[0]+2]) != kmer {
			t.Errorf("%s: unexpected positions: %v", kmer, locs)
		}
	}
	if locs, _ := idx.LookupSeq([]byte("TT")); len(locs) != 0 {
		t.Errorf("TT: unexpected positions: %v", locs)
	}
	if _, err = idx.LookupSeq([]byte("GAC")); err == nil {
		t.Errorf("expected an error for a k-mer of wrong size")
	}
	checkIndex(t, s, 2, idx)
}

func TestKmerAt(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	s := randSeq(r, 100, bases)
	words := twobit.PackSeq(s)
	exact := words[:twobit.WordsFor(len(s))] // without the slack word

	for _, k := range []int{1, 2, 7, 15, 16} {
		for i := 0; i+k <= len(s); i++ {
			code := kmerCode(s[i : i+k])
			if c := KmerAt(words, i, k); c != code {
				t.Errorf("k=%d, i=%d: unexpected code: %d, expected: %d", k, i, c, code)
				return
			}
			if c := KmerAt(exact, i, k); c != code {
				t.Errorf("k=%d, i=%d, no slack word: unexpected code: %d, expected: %d", k, i, c, code)
				return
			}
		}
	}
}

func TestExtractKmers(t *testing.T) {
	s := []byte("GACTGACT")
	words := twobit.PackSeq(s)
	k := 3
	records := make([]uint64, len(s)-k+1)
	err := ExtractKmers(words, len(s), k, records, &Options{Threads: 3, Partitions: 4})
	if err != nil {
		t.Error(err)
		return
	}
	for i, rec := range records {
		if rec&maskPosition != uint64(i) || rec>>32 != kmerCode(s[i:i+k]) {
			t.Errorf("#%d: unexpected record: %x", i, rec)
		}
	}

	err = ExtractKmers(words, len(s), k, records[:3], nil)
	if !errors.Is(err, ErrInputShape) {
		t.Errorf("expected ErrInputShape, got: %v", err)
	}
}

func TestBuildRandom(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for _, n := range []int{1, 2, 16, 17, 33, 100, 1000, 5000} {
		for _, k := range []int{1, 2, 3, 5, 8} {
			if k > n {
				continue
			}
			s := randSeq(r, n, bases)
			idx, err := BuildFromSeq(s, k, &Options{Threads: 4, Partitions: 7})
			if err != nil {
				t.Errorf("n=%d, k=%d: %s", n, k, err)
				return
			}
			checkIndex(t, s, k, idx)
		}
	}
}

// Long runs of the same k-mer and long gaps of absent k-mers span many partitions.
func TestBuildSeams(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	seqs := [][]byte{
		randSeq(r, 3000, []byte("A")),
		randSeq(r, 3000, []byte("AT")),
		append(randSeq(r, 1500, []byte("A")), randSeq(r, 1500, []byte("T"))...),
		randSeq(r, 20, bases),
	}
	for i, s := range seqs {
		for _, k := range []int{1, 4, 9} {
			for _, parts := range []int{1, 2, 5, 64, 4096, 100000} {
				idx, err := BuildFromSeq(s, k, &Options{Threads: 8, Partitions: parts})
				if err != nil {
					t.Error(err)
					return
				}
				checkIndex(t, s, k, idx)
				if t.Failed() {
					t.Logf("seq #%d, k=%d, partitions=%d", i, k, parts)
					return
				}
			}
		}
	}
}

func TestBuildDeterminism(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	s := randSeq(r, 20000, bases)
	k := 6

	var sum uint64
	for i, opt := range []Options{
		{Threads: 1, Partitions: 1},
		{Threads: 2, Partitions: 3},
		{Threads: 8, Partitions: 4096},
		{Threads: 16, Partitions: 99},
		DefaultOptions,
	} {
		idx, err := BuildFromSeq(s, k, &opt)
		if err != nil {
			t.Error(err)
			return
		}
		if i == 0 {
			sum = idx.Checksum()
			continue
		}
		if idx.Checksum() != sum {
			t.Errorf("threads=%d, partitions=%d: index differs", opt.Threads, opt.Partitions)
		}
	}
}

func TestBuildPacked(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	s := randSeq(r, 777, bases)
	k := 5

	idx1, err := BuildFromSeq(s, k, nil)
	if err != nil {
		t.Error(err)
		return
	}

	packed := make([]uint32, twobit.WordsFor(len(s)))
	if err = twobit.Pack(s, packed, 3); err != nil {
		t.Error(err)
		return
	}
	idx2, err := Build(packed, len(s), k, nil)
	if err != nil {
		t.Error(err)
		return
	}
	checkIndex(t, s, k, idx2)
	if idx1.Checksum() != idx2.Checksum() {
		t.Errorf("indexes built from sequence and packed sequence differ")
	}

	// caller-provisioned buffers
	offsets := make([]uint32, 1<<(k<<1)+1)
	positions := make([]uint64, len(s)-k+1)
	err = BuildInto(packed, len(s), k, offsets, positions, &Options{Threads: 2, Partitions: 10})
	if err != nil {
		t.Error(err)
		return
	}
	idx3 := &Index{k: k, n: len(s), Offsets: offsets, Positions: positions}
	if idx3.Checksum() != idx1.Checksum() {
		t.Errorf("index built into given buffers differs")
	}

	err = BuildInto(packed, len(s), k, offsets[:10], positions, nil)
	if !errors.Is(err, ErrInputShape) {
		t.Errorf("short offsets: expected ErrInputShape, got: %v", err)
	}
	err = BuildInto(packed, len(s), k, offsets, positions[:10], nil)
	if !errors.Is(err, ErrInputShape) {
		t.Errorf("short positions: expected ErrInputShape, got: %v", err)
	}
	_, err = Build(packed[:10], len(s), k, nil)
	if !errors.Is(err, ErrInputShape) {
		t.Errorf("short packed sequence: expected ErrInputShape, got: %v", err)
	}
}

func TestBuildInvalidBases(t *testing.T) {
	idx, err := BuildFromSeq([]byte("NNAC"), 2, nil)
	if err != nil {
		t.Error(err)
		return
	}
	// NNAC is indexed as AAAC
	checkIndex(t, []byte("AAAC"), 2, idx)
}

func TestCheckShape(t *testing.T) {
	tests := []struct {
		n, k int
		ok   bool
	}{
		{4, 2, true},
		{1, 1, true},
		{16, 16, true},
		{3, 4, false},
		{10, 0, false},
		{100, 17, false},
		{MaxKmers + 1, 1, false},
		{MaxKmers, 1, true},
	}
	for _, test := range tests {
		err := CheckShape(test.n, test.k)
		if test.ok && err != nil {
			t.Errorf("n=%d, k=%d: unexpected error: %s", test.n, test.k, err)
		}
		if !test.ok && !errors.Is(err, ErrInputShape) {
			t.Errorf("n=%d, k=%d: expected ErrInputShape, got: %v", test.n, test.k, err)
		}
	}

	if _, err := BuildFromSeq([]byte("ACG"), 4, nil); !errors.Is(err, ErrInputShape) {
		t.Errorf("expected ErrInputShape, got: %v", err)
	}
}

type countingProvider struct {
	HeapProvider
	allocs, releases int
	fail             bool
}

func (p *countingProvider) Alloc(n, k int) (*Buffers, error) {
	p.allocs++
	b, err := p.HeapProvider.Alloc(n, k)
	if err != nil {
		return nil, err
	}
	if p.fail {
		b.Packed = b.Packed[:0] // transferring in fails
	}
	return b, nil
}

func (p *countingProvider) Release(b *Buffers) {
	p.releases++
	p.HeapProvider.Release(b)
}

func TestProvider(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	s := randSeq(r, 500, bases)
	k := 4

	// budget too small
	_, err := BuildFromSeq(s, k, &Options{Provider: &HeapProvider{MaxBytes: 1 << 10}})
	if !errors.Is(err, ErrResource) {
		t.Errorf("expected ErrResource, got: %v", err)
	}

	// enough budget
	idx, err := BuildFromSeq(s, k, &Options{Provider: &HeapProvider{MaxBytes: BufferBytes(len(s), k)}})
	if err != nil {
		t.Error(err)
		return
	}
	checkIndex(t, s, k, idx)

	// buffers are released on success and on failure
	p := &countingProvider{}
	if _, err = Build(twobit.PackSeq(s), len(s), k, &Options{Provider: p}); err != nil {
		t.Error(err)
		return
	}
	p.fail = true
	idx, err = Build(twobit.PackSeq(s), len(s), k, &Options{Provider: p})
	if !errors.Is(err, ErrResource) || idx != nil {
		t.Errorf("expected ErrResource and no index, got: %v", err)
	}
	if p.allocs != 2 || p.releases != 2 {
		t.Errorf("unexpected allocations: %d, releases: %d", p.allocs, p.releases)
	}

	b := &Buffers{Offsets: []uint32{0}, Positions: []uint64{0}}
	if _, _, err = b.Detach(); err != nil {
		t.Error(err)
	}
	if _, _, err = b.Detach(); !errors.Is(err, ErrResource) {
		t.Errorf("expected ErrResource for detaching twice, got: %v", err)
	}
}

func TestFillGaps(t *testing.T) {
	// only the last offset is set
	offsets := make([]uint32, 1001)
	for i := range offsets {
		offsets[i] = unsetOffset
	}
	offsets[1000] = 42
	offsets[3] = 7
	fillGaps(offsets, 4, 100)
	for v, o := range offsets {
		if v <= 3 && o != 7 || v > 3 && o != 42 {
			t.Errorf("unexpected offset of %d: %d", v, o)
			return
		}
	}
}

func TestWalk(t *testing.T) {
	s := []byte("ACGTACGTAC")
	k := 3
	idx, err := BuildFromSeq(s, k, nil)
	if err != nil {
		t.Error(err)
		return
	}

	var n int
	var pre uint64
	idx.Walk(func(code uint64, positions []uint64) bool {
		if n > 0 && code <= pre {
			t.Errorf("k-mers not in ascending order: %d, %d", pre, code)
		}
		kmer := util.MustDecode(code, k)
		for _, p := range positions {
			if string(s[p:p+uint64(k)]) != string(kmer) {
				t.Errorf("%s: unexpected position: %d", kmer, p)
			}
		}
		n += len(positions)
		pre = code
		return false
	})
	if n != len(s)-k+1 {
		t.Errorf("unexpected number of positions: %d, expected: %d", n, len(s)-k+1)
	}

	var visited int
	idx.Walk(func(code uint64, positions []uint64) bool {
		visited++
		return true
	})
	if visited != 1 {
		t.Errorf("walking should stop after the first k-mer")
	}
}

func BenchmarkBuild(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	s := randSeq(r, 1<<20, bases)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := BuildFromSeq(s, 12, nil)
		if err != nil {
			b.Error(err)
			return
		}
	}
}
