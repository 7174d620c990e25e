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

package cmd

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// FileInfo is the name of the summary file in an index directory.
const FileInfo = "info.toml"

// IndexInfo summarizes an index.
type IndexInfo struct {
	MainVersion  uint8  `toml:"main-version" comment:"Index format"`
	MinorVersion uint8  `toml:"minor-version"`
	K            int    `toml:"k" comment:"K-mer size"`
	Bases        int    `toml:"bases" comment:"Number of bases of the concatenated sequence"`
	Kmers        int    `toml:"kmers" comment:"Number of k-mer positions"`
	Seqs         int    `toml:"seqs" comment:"Number of sequences"`
	Checksum     string `toml:"checksum" comment:"Checksum of the offsets and positions"`
	Tool         string `toml:"tool" comment:"Building"`
	Created      string `toml:"created"`
}

func formatChecksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

func readIndexInfo(file string) (*IndexInfo, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var info IndexInfo
	err = toml.Unmarshal(data, &info)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %s", file, err)
	}
	return &info, nil
}

func writeIndexInfo(file string, info *IndexInfo) error {
	fh, err := os.Create(file)
	if err != nil {
		return err
	}

	err = toml.NewEncoder(fh).Encode(info)
	if err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
