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
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/kmeridx/kmeridx/index"
	"github.com/shenwei356/kmeridx/kmeridx/util"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search k-mers in an index",
	Long: `Search k-mers in an index

Input:
  K-mers can be given via positional arguments or a file (-f/--kmer-file, one k-mer per line).
  The size of k-mers must be the same as that of the index. Duplicated k-mers are removed.

Output format:
  Tab-delimited format with 4 columns:

    1. kmer,   the query k-mer.
    2. seqid,  the ID of the sequence containing the k-mer.
    3. pos,    the 1-based start position in that sequence.
    4. strand, "+", or "-" for the reverse complement of the query with -b/--both-strands.

  Hits spanning the junction of two adjacent sequences are discarded,
  use --keep-junction to keep them, the positions are these in the first sequence.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}

		outputLog := opt.Verbose || opt.Log2File

		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		// ---------------------------------------------------------------

		dbDir := getFlagPath(cmd, "index")
		if dbDir == "" {
			checkError(fmt.Errorf("flag -d/--index needed"))
		}
		kmerFile := getFlagPath(cmd, "kmer-file")
		outFile := getFlagPath(cmd, "out-file")
		keepJunction := getFlagBool(cmd, "keep-junction")
		bothStrands := getFlagBool(cmd, "both-strands")
		onlyCount := getFlagBool(cmd, "count")

		queries := make([][]byte, 0, len(args))
		for _, arg := range args {
			queries = append(queries, []byte(arg))
		}
		if kmerFile != "" {
			_queries, err := readKmers(kmerFile)
			checkError(err)
			queries = append(queries, _queries...)
		}
		if len(queries) == 0 {
			checkError(fmt.Errorf("no k-mers given"))
		}

		// ---------------------------------------------------------------

		if outputLog {
			log.Infof("reading index: %s", dbDir)
		}
		timeRead := time.Now()
		idx, err := index.NewFromPath(dbDir)
		if err != nil {
			checkError(fmt.Errorf("failed to read index: %s", err))
		}
		if idx.Catalog == nil {
			checkError(fmt.Errorf("sequence catalog not found in index: %s", dbDir))
		}
		k := idx.K()
		if outputLog {
			log.Infof("  index with k=%d and %d k-mer positions read in %s", k, idx.NumKmers(), time.Since(timeRead))
		}

		codes := make([]uint64, 0, len(queries))
		for _, q := range queries {
			if len(q) != k {
				checkError(fmt.Errorf("size of k-mer %s (%d) does not match that of the index (%d)", q, len(q), k))
			}
			code, err := util.Encode(bytes.ToUpper(q))
			if err != nil {
				checkError(fmt.Errorf("invalid k-mer %s: %s", q, err))
			}
			codes = append(codes, code)
		}
		util.UniqUint64s(&codes)
		if outputLog {
			log.Infof("searching %d unique k-mers ...", len(codes))
		}

		// ---------------------------------------------------------------

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		if onlyCount {
			fmt.Fprintf(outfh, "kmer\tcount\n")
		} else {
			fmt.Fprintf(outfh, "kmer\tseqid\tpos\tstrand\n")
		}

		var nHits int
		var kmer []byte
		for _, code := range codes {
			kmer = util.MustDecode(code, k)

			n := outputHits(outfh, idx, kmer, idx.Lookup(code), '+', keepJunction, onlyCount)

			if bothStrands {
				rc := revcom(kmer)
				if !bytes.Equal(rc, kmer) {
					rcCode, _ := util.Encode(rc)
					n += outputHits(outfh, idx, kmer, idx.Lookup(rcCode), '-', keepJunction, onlyCount)
				}
			}

			if onlyCount {
				fmt.Fprintf(outfh, "%s\t%d\n", kmer, n)
			}
			nHits += n
		}

		if outputLog {
			log.Infof("  %d hits found", nHits)
		}
	},
}

// outputHits writes hits of a k-mer and returns the number of kept hits.
func outputHits(outfh *bufio.Writer, idx *index.Index, kmer []byte, positions []uint64,
	strand byte, keepJunction bool, onlyCount bool) int {
	k := idx.K()
	catalog := idx.Catalog

	var n, i, p int
	var ok bool
	for _, pos := range positions {
		if !keepJunction && !catalog.Contains(int(pos), k) {
			continue
		}
		n++
		if onlyCount {
			continue
		}

		i, p, ok = catalog.Locate(int(pos))
		if !ok {
			continue
		}
		fmt.Fprintf(outfh, "%s\t%s\t%d\t%c\n", kmer, catalog.IDs[i], p+1, strand)
	}
	return n
}

func revcom(kmer []byte) []byte {
	s, err := seq.NewSeq(seq.DNAredundant, append([]byte(nil), kmer...))
	checkError(err)
	return s.RevComInplace().Seq
}

// readKmers reads one k-mer per line, lines starting with "#" are skipped.
func readKmers(file string) ([][]byte, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	kmers := make([][]byte, 0, 1024)
	scanner := bufio.NewScanner(fh)
	var line []byte
	for scanner.Scan() {
		line = bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		kmers = append(kmers, append([]byte(nil), line...))
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	return kmers, nil
}

func init() {
	RootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringP("index", "d", "",
		formatFlagUsage(`Index directory created by "kmeridx build".`))

	queryCmd.Flags().StringP("kmer-file", "f", "",
		formatFlagUsage(`File of k-mers, one k-mer per line.`))

	queryCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))

	queryCmd.Flags().BoolP("keep-junction", "", false,
		formatFlagUsage(`Keep hits spanning the junction of two adjacent sequences.`))

	queryCmd.Flags().BoolP("both-strands", "b", false,
		formatFlagUsage(`Also search the reverse complement of k-mers.`))

	queryCmd.Flags().BoolP("count", "c", false,
		formatFlagUsage(`Only output the number of hits of each k-mer.`))

	queryCmd.SetUsageTemplate(usageTemplate("-d <index path> {<kmer> ... | -f <kmer file>} [-o out.tsv.gz]"))
}
