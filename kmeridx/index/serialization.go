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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shenwei356/kmeridx/kmeridx/util"
	"github.com/shenwei356/util/pathutil"
	"github.com/shenwei356/xopen"
)

var be = binary.BigEndian

// Magic number for checking file format
var Magic = [8]byte{'.', 'k', 'm', 'e', 'r', 'i', 'd', 'x'}

// MainVersion is use for checking compatibility
var MainVersion uint8 = 0

// MinorVersion is less important
var MinorVersion uint8 = 1

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("kmer index: invalid binary format")

// ErrBrokenFile means the file is not complete.
var ErrBrokenFile = errors.New("kmer index: broken file")

// ErrVersionMismatch means version mismatch between files and program.
var ErrVersionMismatch = errors.New("kmer index: version mismatch")

// ErrChecksumMismatch means the data does not match the saved checksum.
var ErrChecksumMismatch = errors.New("kmer index: checksum mismatch")

// ErrDirNotEmpty means the output directory is not empty.
var ErrDirNotEmpty = errors.New("kmer index: output directory not empty")

// ErrPWDAsOutDir means the current directory is used as the output directory.
var ErrPWDAsOutDir = errors.New("kmer index: current directory cant't be the output dir")

// ErrInvalidIndexDir means the path is not a valid index directory.
var ErrInvalidIndexDir = errors.New("kmer index: invalid index directory")

// IndexFile is the name of the binary file of offsets and positions.
const IndexFile = "index.bin"

// CatalogFile stores IDs and locations of the concatenated sequences.
const CatalogFile = "seqs.tsv"

// TwoBitFile stores the 2bit-packed concatenated sequence.
const TwoBitFile = "seqs.2bit"

// WriteToPath writes an index to a directory.
//
// Files:
//
//	Index file, binary
//	Catalog file, plain text, if the catalog is not nil.
func (idx *Index) WriteToPath(outDir string, overwrite bool) error {
	pwd, _ := os.Getwd()
	if outDir == "./" || outDir == "." || pwd == filepath.Clean(outDir) {
		return ErrPWDAsOutDir
	}

	existed, err := pathutil.DirExists(outDir)
	if err != nil {
		return err
	}
	if existed {
		empty, err := pathutil.IsEmpty(outDir)
		if err != nil {
			return err
		}
		if !empty && !overwrite {
			return ErrDirNotEmpty
		}
		err = os.RemoveAll(outDir)
		if err != nil {
			return err
		}
	}
	err = os.MkdirAll(outDir, 0777)
	if err != nil {
		return err
	}

	idx.path = outDir

	err = idx.WriteToFile(filepath.Join(outDir, IndexFile))
	if err != nil {
		return err
	}

	if idx.Catalog != nil {
		err = idx.Catalog.WriteToFile(filepath.Join(outDir, CatalogFile))
		if err != nil {
			return err
		}
	}

	return nil
}

// WriteToFile writes offsets and positions to a binary file.
//
// Header (32 bytes):
//
//	Magic number, 8 bytes, ".kmeridx".
//	Main and minor versions, 2 bytes.
//	K size, 1 byte.
//	Blank, 5 bytes.
//	Number of bases (N), 8 bytes.
//	Number of k-mers (N-k+1), 8 bytes.
//
// Data:
//
//	Offsets, 4^k+1 values, delta of adjacent values.
//	Positions, N-k+1 values. For each k-mer, the first position is saved,
//	  the others are saved as the delta to the previous one.
//	  Values are encoded in groups of four: a control byte followed by 4-16 bytes.
//	Checksum, 8 bytes.
func (idx *Index) WriteToFile(file string) error {
	outfh, err := xopen.Wopen(file)
	if err != nil {
		return err
	}
	defer outfh.Close()

	// 8-byte magic number
	err = binary.Write(outfh, be, Magic)
	if err != nil {
		return err
	}

	// 8-byte meta info
	err = binary.Write(outfh, be, [8]uint8{MainVersion, MinorVersion, uint8(idx.k)})
	if err != nil {
		return err
	}

	// 16-byte the number of bases and k-mers
	err = binary.Write(outfh, be, [2]uint64{uint64(idx.n), uint64(len(idx.Positions))})
	if err != nil {
		return err
	}

	w := util.NewUint32Writer(outfh)

	var pre uint32
	for _, v := range idx.Offsets {
		err = w.Put(v - pre)
		if err != nil {
			return fmt.Errorf("write offsets error: %s", err)
		}
		pre = v
	}
	err = w.Flush()
	if err != nil {
		return fmt.Errorf("write offsets error: %s", err)
	}

	var start, end uint32
	var i uint32
	var p uint64
	for v := 0; v < len(idx.Offsets)-1; v++ {
		start, end = idx.Offsets[v], idx.Offsets[v+1]
		if start == end {
			continue
		}

		p = idx.Positions[start]
		err = w.Put(uint32(p))
		if err != nil {
			return fmt.Errorf("write positions error: %s", err)
		}
		for i = start + 1; i < end; i++ {
			err = w.Put(uint32(idx.Positions[i] - p))
			if err != nil {
				return fmt.Errorf("write positions error: %s", err)
			}
			p = idx.Positions[i]
		}
	}
	err = w.Flush()
	if err != nil {
		return fmt.Errorf("write positions error: %s", err)
	}

	return binary.Write(outfh, be, idx.Checksum())
}

// NewFromPath reads an index from a directory.
func NewFromPath(dir string) (*Index, error) {
	ok, err := pathutil.DirExists(dir)
	if err != nil || !ok {
		return nil, ErrInvalidIndexDir
	}

	fileIndex := filepath.Join(dir, IndexFile)
	ok, err = pathutil.Exists(fileIndex)
	if err != nil || !ok {
		return nil, ErrInvalidIndexDir
	}

	idx, err := NewFromFile(fileIndex)
	if err != nil {
		return nil, err
	}
	idx.path = dir

	fileCatalog := filepath.Join(dir, CatalogFile)
	ok, err = pathutil.Exists(fileCatalog)
	if err != nil {
		return nil, err
	}
	if ok {
		idx.Catalog, err = ReadCatalog(fileCatalog)
		if err != nil {
			return nil, err
		}
		if idx.Catalog.Len() != idx.n {
			return nil, fmt.Errorf("the catalog (%d bases) does not match the index (%d bases)",
				idx.Catalog.Len(), idx.n)
		}
	}

	return idx, nil
}

// NewFromFile reads offsets and positions from a binary file.
func NewFromFile(file string) (*Index, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	buf := make([]byte, 8)

	// check the magic number
	_, err = io.ReadFull(fh, buf)
	if err != nil {
		return nil, ErrBrokenFile
	}
	if [8]byte(buf) != Magic {
		return nil, ErrInvalidFileFormat
	}

	// read version information
	_, err = io.ReadFull(fh, buf)
	if err != nil {
		return nil, ErrBrokenFile
	}
	// check compatibility
	if MainVersion != buf[0] {
		return nil, ErrVersionMismatch
	}
	k := int(buf[2])

	_, err = io.ReadFull(fh, buf)
	if err != nil {
		return nil, ErrBrokenFile
	}
	n := int(be.Uint64(buf))

	_, err = io.ReadFull(fh, buf)
	if err != nil {
		return nil, ErrBrokenFile
	}
	m := int(be.Uint64(buf))

	if err = CheckShape(n, k); err != nil || m != n-k+1 {
		return nil, ErrInvalidFileFormat
	}

	idx := &Index{
		k:         k,
		n:         n,
		Offsets:   make([]uint32, 1<<(k<<1)+1),
		Positions: make([]uint64, m),
	}

	r := util.NewUint32Reader(fh)

	var pre, d uint32
	for i := range idx.Offsets {
		d, err = r.Next()
		if err != nil {
			return nil, ErrBrokenFile
		}
		pre += d
		idx.Offsets[i] = pre
	}
	if int(idx.Offsets[len(idx.Offsets)-1]) != m {
		return nil, ErrInvalidFileFormat
	}

	// a new group starts after the offsets
	r = util.NewUint32Reader(fh)

	var start, end, i uint32
	var p uint64
	for v := 0; v < len(idx.Offsets)-1; v++ {
		start, end = idx.Offsets[v], idx.Offsets[v+1]
		if start > end {
			return nil, ErrInvalidFileFormat
		}
		for i = start; i < end; i++ {
			d, err = r.Next()
			if err != nil {
				return nil, ErrBrokenFile
			}
			if i == start {
				p = uint64(d)
			} else {
				p += uint64(d)
			}
			idx.Positions[i] = p
		}
	}

	_, err = io.ReadFull(fh, buf)
	if err != nil {
		return nil, ErrBrokenFile
	}
	if be.Uint64(buf) != idx.Checksum() {
		return nil, ErrChecksumMismatch
	}

	return idx, nil
}
