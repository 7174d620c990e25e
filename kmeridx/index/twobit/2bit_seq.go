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
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/shenwei356/kmeridx/kmeridx/util"
)

var be = binary.BigEndian

// Magic number for checking file format
var Magic = [8]byte{'2', 'b', 'i', 't', 'w', 'o', 'r', 'd'}

// the file extension of the 2bit file
const IndexFileExt = ".idx"

// MainVersion is use for checking compatibility
var MainVersion uint8 = 1

// MinorVersion is less important
var MinorVersion uint8 = 0

// BufferSize is size of reading and writing buffer
var BufferSize = 65536 // os.Getpagesize()

// BasesPerWord is the number of bases packed in one uint32 word.
const BasesPerWord = 16

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("2bit seqs: invalid binary format")

// ErrEmptySeq means the sequence is empty
var ErrEmptySeq = errors.New("2bit seqs: empty seq")

// ErrInvalidTwoBitData means the length of two bit seq slice does not match the number of bases
var ErrInvalidTwoBitData = errors.New("2bit seqs: invalid two-bit data")

// ErrShortBuffer means the word buffer can not hold all bases.
var ErrShortBuffer = errors.New("2bit seqs: word buffer too small")

// ErrBrokenFile means the file is not complete.
var ErrBrokenFile = errors.New("2bit seqs: broken file")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("2bit seqs: version mismatch")

// WordsFor returns the number of words needed to store n bases.
func WordsFor(n int) int {
	return (n + BasesPerWord - 1) / BasesPerWord
}

// A:0, C:1, G:2, T:3, everything else is treated as A.
var base2bit [256]uint32

func init() {
	base2bit['C'] = 1
	base2bit['G'] = 2
	base2bit['T'] = 3
}

var bit2base = [4]byte{'A', 'C', 'G', 'T'}

// packWord packs up to 16 bases, the first base in the lowest two bits.
func packWord(s []byte) (w uint32) {
	var shift uint32
	for _, b := range s {
		w |= base2bit[b] << shift
		shift += 2
	}
	return w
}

// Pack converts a DNA sequence to 2bit-packed words and saves them in words,
// which should have at least WordsFor(len(s)) elements.
// Word i holds bases [16*i, 16*i+16), the earliest base in the lowest bits.
// Extra words are set to zero.
//
// Bases other than 'A', 'C', 'G', 'T' are packed as 'A'.
// Words are computed by up to threads goroutines.
func Pack(s []byte, words []uint32, threads int) error {
	nWords := WordsFor(len(s))
	if len(words) < nWords {
		return fmt.Errorf("%w: %d words needed for %d bases, %d given",
			ErrShortBuffer, nWords, len(s), len(words))
	}
	clear(words[nWords:])

	n := len(s)
	util.ForEachRange(util.Partitions(nWords, threads), threads, func(_, begin, end int) {
		var start, stop int
		for i := begin; i < end; i++ {
			start = i << 4
			stop = start + BasesPerWord
			if stop > n {
				stop = n
			}
			words[i] = packWord(s[start:stop])
		}
	})

	return nil
}

// PackSeq converts a DNA sequence to 2bit-packed words,
// with one extra zero word at the end.
func PackSeq(s []byte) []uint32 {
	words := make([]uint32, WordsFor(len(s))+1)
	Pack(s, words, 1)
	return words
}

// Unpack converts 2bit-packed words of n bases back to a DNA sequence.
func Unpack(words []uint32, n int) ([]byte, error) {
	if n < 0 || len(words) < WordsFor(n) {
		return nil, ErrInvalidTwoBitData
	}

	s := make([]byte, n)
	var w uint32
	for i := range s {
		if i&15 == 0 {
			w = words[i>>4]
		}
		s[i] = bit2base[w&3]
		w >>= 2
	}
	return s, nil
}

// SubSeq returns the subsequence from start to end (both are 0-based)
// of 2bit-packed words of n bases.
func SubSeq(words []uint32, n int, start, end int) ([]byte, error) {
	if n < 0 || len(words) < WordsFor(n) {
		return nil, ErrInvalidTwoBitData
	}
	if start < 0 || end >= n || end < start {
		return nil, fmt.Errorf("invalid region: [%d, %d], valid range: [0, %d]", start, end, n-1)
	}

	s := make([]byte, 0, end-start+1)
	for i := start; i <= end; i++ {
		s = append(s, bit2base[words[i>>4]>>((i&15)<<1)&3])
	}
	return s, nil
}

// Writer saves a list of 2bit-packed DNA sequences.
// The IDs of sequences are not saved.
type Writer struct {
	file string
	fh   *os.File
	w    *bufio.Writer

	buf    []byte // 24 bytes buffer
	offset int

	// offset, #words, #bases,
	index [][3]int
}

// NewWriter creates a new Writer.
func NewWriter(file string) (*Writer, error) {
	w := &Writer{file: file}
	var err error
	w.fh, err = os.Create(file)
	if err != nil {
		return nil, err
	}
	w.w = bufio.NewWriterSize(w.fh, BufferSize)

	w.buf = make([]byte, 24)

	// 8-byte magic number
	err = binary.Write(w.w, be, Magic)
	if err != nil {
		return nil, err
	}
	w.offset += 8

	// 8-byte meta info
	// actually, only 2 bytes used and the left 6 bytes is preserved.
	err = binary.Write(w.w, be, [8]uint8{MainVersion, MinorVersion})
	if err != nil {
		return nil, err
	}
	w.offset += 8
	return w, nil
}

// WriteSeq packs and writes one sequence.
func (w *Writer) WriteSeq(s []byte) error {
	words := poolWords.Get().(*[]uint32)
	nWords := WordsFor(len(s))
	if cap(*words) < nWords {
		*words = make([]uint32, nWords)
	}
	*words = (*words)[:nWords]

	Pack(s, *words, 1)
	err := w.Write2Bit(*words, len(s))
	poolWords.Put(words)
	return err
}

var poolWords = &sync.Pool{New: func() interface{} {
	tmp := make([]uint32, 0, 1<<16)
	return &tmp
}}

// Write2Bit writes one 2bit-packed sequence of n bases.
// Words after the first WordsFor(n) ones are not saved.
func (w *Writer) Write2Bit(words []uint32, n int) error {
	if n == 0 {
		return ErrEmptySeq
	}
	nWords := WordsFor(n)
	if len(words) < nWords {
		return ErrInvalidTwoBitData
	}

	// the number of words and bases
	be.PutUint64(w.buf[:8], uint64(nWords))
	be.PutUint64(w.buf[8:16], uint64(n))
	_, err := w.w.Write(w.buf[:16])
	if err != nil {
		return err
	}

	// write 2bit-packed data
	for _, v := range words[:nWords] {
		be.PutUint32(w.buf[:4], v)
		_, err = w.w.Write(w.buf[:4])
		if err != nil {
			return err
		}
	}

	// collect data for the index file
	w.index = append(w.index, [3]int{w.offset, nWords, n})

	w.offset += 16 + nWords<<2
	return nil
}

// Close writes the index file and finish writing.
func (w *Writer) Close() error {
	err := w.w.Flush()
	if err != nil {
		return err
	}

	err = w.fh.Close()
	if err != nil {
		return err
	}

	// write the index

	fh, err := os.Create(filepath.Clean(w.file) + IndexFileExt)
	if err != nil {
		return err
	}
	wtr := bufio.NewWriterSize(fh, BufferSize)
	buf := w.buf[:24]

	// the number of records
	be.PutUint64(buf[:8], uint64(len(w.index)))
	_, err = wtr.Write(buf[:8])
	if err != nil {
		return err
	}

	for _, info := range w.index {
		be.PutUint64(buf[:8], uint64(info[0]))    // offset
		be.PutUint64(buf[8:16], uint64(info[1]))  // words
		be.PutUint64(buf[16:24], uint64(info[2])) // bases

		_, err = wtr.Write(buf)
		if err != nil {
			return err
		}
	}
	err = wtr.Flush()
	if err != nil {
		return err
	}

	return fh.Close()
}

// Reader is for fast extracting of subsequence of any sequence
type Reader struct {
	fh  *os.File
	buf []byte

	index [][3]int
}

// NewReader returns a reader from a file
func NewReader(file string) (*Reader, error) {
	var err error
	r := &Reader{buf: make([]byte, 24)}

	r.fh, err = os.Open(file)
	if err != nil {
		return nil, err
	}

	buf := r.buf
	// check the magic number
	_, err = io.ReadFull(r.fh, buf[:8])
	if err != nil {
		r.fh.Close()
		return nil, ErrBrokenFile
	}
	if [8]byte(buf[:8]) != Magic {
		r.fh.Close()
		return nil, ErrInvalidFileFormat
	}

	// read metadata
	_, err = io.ReadFull(r.fh, buf[:8])
	if err != nil {
		r.fh.Close()
		return nil, ErrBrokenFile
	}

	// check compatibility
	if MainVersion != buf[0] {
		r.fh.Close()
		return nil, ErrVersionMismatch
	}

	// ------------ index file ----------------

	rdr, err := os.Open(filepath.Clean(file) + IndexFileExt)
	if err != nil {
		r.fh.Close()
		return nil, err
	}
	defer rdr.Close()
	br := bufio.NewReaderSize(rdr, BufferSize)

	// the number of records
	_, err = io.ReadFull(br, buf[:8])
	if err != nil {
		r.fh.Close()
		return nil, ErrBrokenFile
	}

	r.index = make([][3]int, int(be.Uint64(buf[:8])))
	for i := range r.index {
		_, err = io.ReadFull(br, buf[:24])
		if err != nil {
			r.fh.Close()
			return nil, ErrBrokenFile
		}

		r.index[i] = [3]int{
			int(be.Uint64(buf[:8])),
			int(be.Uint64(buf[8:16])),
			int(be.Uint64(buf[16:24])),
		}
	}

	return r, nil
}

// Close the file handler.
func (r *Reader) Close() error {
	return r.fh.Close()
}

// NumSeqs returns the number of sequences in the file.
func (r *Reader) NumSeqs() int {
	return len(r.index)
}

// SeqLen returns the number of bases of the sequence with index of idx (0-based).
func (r *Reader) SeqLen(idx int) (int, error) {
	if idx < 0 || idx >= len(r.index) {
		return 0, fmt.Errorf("sequence index (%d) out of range: [0, %d]", idx, len(r.index)-1)
	}
	return r.index[idx][2], nil
}

// Words returns all 2bit-packed words and the number of bases
// of the sequence with index of idx (0-based).
func (r *Reader) Words(idx int) ([]uint32, int, error) {
	if idx < 0 || idx >= len(r.index) {
		return nil, 0, fmt.Errorf("sequence index (%d) out of range: [0, %d]", idx, len(r.index)-1)
	}
	info := r.index[idx]
	words, err := r.readWords(info[0]+16, info[1])
	if err != nil {
		return nil, 0, err
	}
	return words, info[2], nil
}

func (r *Reader) readWords(offset int, nWords int) ([]uint32, error) {
	_, err := r.fh.Seek(int64(offset), 0)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(r.fh, BufferSize)
	words := make([]uint32, nWords)
	for i := range words {
		_, err = io.ReadFull(br, r.buf[:4])
		if err != nil {
			return nil, ErrBrokenFile
		}
		words[i] = be.Uint32(r.buf[:4])
	}
	return words, nil
}

// Seq returns the sequence with index of idx (0-based).
func (r *Reader) Seq(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(r.index) {
		return nil, fmt.Errorf("sequence index (%d) out of range: [0, %d]", idx, len(r.index)-1)
	}
	return r.SubSeq(idx, 0, r.index[idx][2]-1)
}

// SubSeq returns the subsequence of sequence (idx is 0-based),
// from start to end (both are 0-based).
// start and end are trimmed to the range of the sequence.
func (r *Reader) SubSeq(idx int, start int, end int) ([]byte, error) {
	if idx < 0 || idx >= len(r.index) {
		return nil, fmt.Errorf("sequence index (%d) out of range: [0, %d]", idx, len(r.index)-1)
	}
	info := r.index[idx]
	offset := info[0] + 16 // 16 is the bytes of #words and #bases
	nBases := info[2]
	if start < 0 {
		start = 0
	}
	if end >= nBases-1 {
		end = nBases - 1
	}
	if end < start {
		end = start
	}

	// only read the words covering the region
	wStart := start >> 4
	words, err := r.readWords(offset+wStart<<2, end>>4-wStart+1)
	if err != nil {
		return nil, err
	}

	return SubSeq(words, (end>>4-wStart+1)<<4, start-wStart<<4, end-wStart<<4)
}
