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
	"path/filepath"
	"strings"
	"time"

	"github.com/shenwei356/kmeridx/kmeridx/index"
	"github.com/shenwei356/kmeridx/kmeridx/util"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/twotwotwo/sorts/sortutil"
	"gonum.org/v1/gonum/stat"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Statistics of k-mer occurrences in an index",
	Long: `Statistics of k-mer occurrences in an index

Output:
  1. Summary of the index, and the mean, standard deviation and quantiles
     of the numbers of occurrences of all distinct k-mers.
  2. With -n/--top, the most frequent k-mers and their numbers of occurrences.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

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
		topN := getFlagNonNegativeInt(cmd, "top")
		outFile := getFlagPath(cmd, "out-file")

		if outputLog {
			log.Infof("reading index: %s", dbDir)
		}
		idx, err := index.NewFromPath(dbDir)
		if err != nil {
			checkError(fmt.Errorf("failed to read index: %s", err))
		}

		fileInfo := filepath.Join(dbDir, FileInfo)
		ok, err := pathutil.Exists(fileInfo)
		checkError(err)
		if ok {
			info, err := readIndexInfo(fileInfo)
			checkError(err)
			if info.Checksum != formatChecksum(idx.Checksum()) {
				checkError(fmt.Errorf("checksum mismatch: %s in %s, %s computed",
					info.Checksum, fileInfo, formatChecksum(idx.Checksum())))
			}
		} else if outputLog {
			log.Warningf("  info file not found: %s", fileInfo)
		}

		s := summarize(idx, topN)

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

		var nSeqs int
		if idx.Catalog != nil {
			nSeqs = idx.Catalog.NumSeqs()
		}

		fmt.Fprintf(outfh, "k\tseqs\tbases\tkmers\tdistinct\toccupancy\tmean\tstdev\tq1\tmedian\tq3\tq99\tmax\n")
		fmt.Fprintf(outfh, "%d\t%d\t%d\t%d\t%d\t%.6f\t%.2f\t%.2f\t%.0f\t%.0f\t%.0f\t%.0f\t%d\n",
			idx.K(), nSeqs, idx.Len(), idx.NumKmers(), s.Distinct,
			float64(s.Distinct)/float64(len(idx.Offsets)-1),
			s.Mean, s.Stdev, s.Q1, s.Median, s.Q3, s.Q99, s.Max)

		if topN > 0 {
			fmt.Fprintf(outfh, "\nkmer\tcount\n")
			for _, t := range s.Top {
				fmt.Fprintf(outfh, "%s\t%d\n", util.MustDecode(t[0], idx.K()), t[1])
			}
		}
	},
}

// KmerStats summarizes the numbers of occurrences of distinct k-mers.
type KmerStats struct {
	Distinct int

	Mean, Stdev    float64
	Q1, Median, Q3 float64
	Q99            float64
	Max            uint64

	Top [][2]uint64 // k-mer code and count, in descending order of counts
}

func summarize(idx *index.Index, topN int) *KmerStats {
	counts := make([]float64, 0, 1024)
	var top []uint64
	if topN > 0 {
		top = make([]uint64, 0, 1024)
	}

	idx.Walk(func(code uint64, positions []uint64) bool {
		counts = append(counts, float64(len(positions)))
		if topN > 0 {
			top = append(top, uint64(len(positions))<<32|code)
		}
		return false
	})

	s := &KmerStats{Distinct: len(counts)}
	if len(counts) == 0 {
		return s
	}

	s.Mean, s.Stdev = stat.MeanStdDev(counts, nil)
	sortutil.Float64s(counts)
	s.Q1 = stat.Quantile(0.25, stat.Empirical, counts, nil)
	s.Median = stat.Quantile(0.5, stat.Empirical, counts, nil)
	s.Q3 = stat.Quantile(0.75, stat.Empirical, counts, nil)
	s.Q99 = stat.Quantile(0.99, stat.Empirical, counts, nil)
	s.Max = uint64(counts[len(counts)-1])

	if topN > 0 {
		sortutil.Uint64s(top)
		if topN > len(top) {
			topN = len(top)
		}
		s.Top = make([][2]uint64, 0, topN)
		for i := len(top) - 1; i >= len(top)-topN; i-- {
			s.Top = append(s.Top, [2]uint64{top[i] & (1<<32 - 1), top[i] >> 32})
		}
	}

	return s
}

func init() {
	utilsCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringP("index", "d", "",
		formatFlagUsage(`Index directory created by "kmeridx build".`))

	statsCmd.Flags().IntP("top", "n", 0,
		formatFlagUsage(`Output the N most frequent k-mers.`))

	statsCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))

	statsCmd.SetUsageTemplate(usageTemplate("-d <index path> [-n <top N>]"))
}
