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
	"bufio"
	"bytes"
	"fmt"
	"strconv"

	"github.com/rdleal/intervalst/interval"
	"github.com/shenwei356/xopen"
)

// Catalog records names and locations of sequences which are concatenated
// into one sequence before indexing.
type Catalog struct {
	IDs    [][]byte // sequence IDs
	Starts []int    // 0-based start positions in the concatenated sequence
	Lens   []int    // sequence lengths

	n int // total length

	// sequence i covers [2*start, 2*end+1], end is 0-based and inclusive.
	tree *interval.SearchTree[int, int]
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		IDs:    make([][]byte, 0, 128),
		Starts: make([]int, 0, 128),
		Lens:   make([]int, 0, 128),
		tree:   interval.NewSearchTree[int, int](func(x, y int) int { return x - y }),
	}
}

// Add appends a sequence of the given length.
func (c *Catalog) Add(id []byte, length int) error {
	i := len(c.IDs)
	c.IDs = append(c.IDs, append([]byte(nil), id...))
	c.Starts = append(c.Starts, c.n)
	c.Lens = append(c.Lens, length)

	if length > 0 {
		err := c.tree.Insert(c.n<<1, (c.n+length-1)<<1+1, i)
		if err != nil {
			return err
		}
	}
	c.n += length
	return nil
}

// NumSeqs returns the number of sequences.
func (c *Catalog) NumSeqs() int {
	return len(c.IDs)
}

// Len returns the total length of all sequences.
func (c *Catalog) Len() int {
	return c.n
}

// Locate returns the index of the sequence containing the position pos
// of the concatenated sequence, and the position in that sequence.
func (c *Catalog) Locate(pos int) (int, int, bool) {
	if pos < 0 || pos >= c.n {
		return -1, -1, false
	}
	i, ok := c.tree.AnyIntersection(pos<<1, pos<<1+1)
	if !ok {
		return -1, -1, false
	}
	return i, pos - c.Starts[i], true
}

// Contains checks if the k-mer starting at pos lies in a single sequence.
func (c *Catalog) Contains(pos, k int) bool {
	i, p, ok := c.Locate(pos)
	if !ok {
		return false
	}
	return p+k <= c.Lens[i]
}

// Index returns the index of a sequence ID, -1 for absent ones.
func (c *Catalog) Index(id []byte) int {
	for i, _id := range c.IDs {
		if bytes.Equal(_id, id) {
			return i
		}
	}
	return -1
}

// WriteToFile writes the catalog in tab-delimited format: ID, start, length.
func (c *Catalog) WriteToFile(file string) error {
	outfh, err := xopen.Wopen(file)
	if err != nil {
		return err
	}
	defer outfh.Close()

	for i, id := range c.IDs {
		_, err = fmt.Fprintf(outfh, "%s\t%d\t%d\n", id, c.Starts[i], c.Lens[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadCatalog reads a catalog file.
func ReadCatalog(file string) (*Catalog, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	c := NewCatalog()
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)
	var items [][]byte
	var start, length int
	var nLine int
	for scanner.Scan() {
		nLine++
		line := bytes.TrimRight(scanner.Bytes(), "\r\n")
		if len(line) == 0 {
			continue
		}

		items = bytes.Split(line, []byte{'\t'})
		if len(items) != 3 {
			return nil, fmt.Errorf("catalog: invalid line %d: %s", nLine, line)
		}
		start, err = strconv.Atoi(string(items[1]))
		if err != nil {
			return nil, fmt.Errorf("catalog: invalid start at line %d: %s", nLine, items[1])
		}
		length, err = strconv.Atoi(string(items[2]))
		if err != nil {
			return nil, fmt.Errorf("catalog: invalid length at line %d: %s", nLine, items[2])
		}
		if start != c.n {
			return nil, fmt.Errorf("catalog: unexpected start at line %d: %d, expected: %d", nLine, start, c.n)
		}

		if err = c.Add(items[0], length); err != nil {
			return nil, err
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}

	return c, nil
}
