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
	"path/filepath"
	"strings"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/kmeridx/kmeridx/index"
	"github.com/shenwei356/kmeridx/kmeridx/index/twobit"
	"github.com/spf13/cobra"
)

var subseqCmd = &cobra.Command{
	Use:   "subseq",
	Short: "Extract subsequence via sequence ID, position and strand",
	Long: `Extract subsequence via sequence ID, position and strand

Attention:
  1. The option -s/--seq-id is optional.
     1) If given, the positions are these in the original sequence.
     2) If not given, the positions are these in the concatenated sequence,
        and the region must lie in one sequence.
  2. All bases other than A, C, G and T in the input were converted to A.
     Therefore, consecutive A's in output might be N's in the input.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		// ------------------------------

		dbDir := getFlagPath(cmd, "index")
		if dbDir == "" {
			checkError(fmt.Errorf("flag -d/--index needed"))
		}

		seqid := getFlagString(cmd, "seq-id")
		concatenatedPositions := seqid == ""

		region := getFlagString(cmd, "region")
		if region == "" {
			checkError(fmt.Errorf("flag -r/--region needed"))
		}
		start, end, err := parseRegion(region)
		if err != nil {
			checkError(fmt.Errorf(`%s. type "kmeridx utils subseq -h" for help`, err))
		}
		revcom := getFlagBool(cmd, "revcom")
		lineWidth := getFlagNonNegativeInt(cmd, "line-width")
		outFile := getFlagPath(cmd, "out-file")

		// ---------------------------------------------------------------

		catalog, err := index.ReadCatalog(filepath.Join(dbDir, index.CatalogFile))
		if err != nil {
			checkError(fmt.Errorf("failed to read sequence catalog: %s", err))
		}

		var i, local int
		var ok bool
		if concatenatedPositions {
			i, local, ok = catalog.Locate(start - 1)
			if !ok {
				checkError(fmt.Errorf("start position out of range: %d, the concatenated sequence length: %d", start, catalog.Len()))
			}
			if local+end-start >= catalog.Lens[i] {
				checkError(fmt.Errorf("region %s spans more than one sequence", region))
			}
			start, end = local+1, local+end-start+1
			seqid = string(catalog.IDs[i])
		} else {
			i = catalog.Index([]byte(seqid))
			if i < 0 {
				checkError(fmt.Errorf("sequence ID not found: %s", seqid))
			}
			if end > catalog.Lens[i] {
				end = catalog.Lens[i]
			}
			if start > end {
				checkError(fmt.Errorf("start position out of range: %d, the sequence length: %d", start, catalog.Lens[i]))
			}
		}

		rdr, err := twobit.NewReader(filepath.Join(dbDir, index.TwoBitFile))
		if err != nil {
			checkError(fmt.Errorf("failed to read 2bit sequence file: %s", err))
		}
		if rdr.NumSeqs() != catalog.NumSeqs() {
			checkError(fmt.Errorf("the number of sequences in 2bit file (%d) does not match that of the catalog (%d)",
				rdr.NumSeqs(), catalog.NumSeqs()))
		}

		tSeq, err := rdr.SubSeq(i, start-1, end-1)
		if err != nil {
			checkError(fmt.Errorf("failed to read subsequence: %s", err))
		}
		checkError(rdr.Close())

		// output file handler
		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		s, err := seq.NewSeq(seq.DNAredundant, tSeq)
		checkError(err)
		if revcom {
			s.RevComInplace()
		}

		if revcom {
			fmt.Fprintf(outfh, ">%s:%d-%d:-\n", seqid, start, end)
		} else {
			fmt.Fprintf(outfh, ">%s:%d-%d\n", seqid, start, end)
		}
		outfh.Write(s.FormatSeq(lineWidth))
		outfh.WriteByte('\n')
	},
}

func init() {
	utilsCmd.AddCommand(subseqCmd)

	subseqCmd.Flags().StringP("index", "d", "",
		formatFlagUsage(`Index directory created by "kmeridx build".`))

	subseqCmd.Flags().StringP("seq-id", "s", "",
		formatFlagUsage(`Sequence ID. If the value is empty, the positions in the region are treated as that in the concatenated sequence.`))

	subseqCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))

	subseqCmd.Flags().StringP("region", "r", "",
		formatFlagUsage(`Region of the subsequence (1-based), e.g., 101:200.`))

	subseqCmd.Flags().BoolP("revcom", "R", false,
		formatFlagUsage("Extract subsequence on the negative strand."))

	subseqCmd.Flags().IntP("line-width", "w", 60,
		formatFlagUsage("Line width of sequence (0 for no wrap)."))

	subseqCmd.SetUsageTemplate(usageTemplate("-d <index path> [-s <seq id>] -r <region>"))
}
