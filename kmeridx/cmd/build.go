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
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/kmeridx/kmeridx/index"
	"github.com/shenwei356/kmeridx/kmeridx/index/twobit"
	"github.com/shenwei356/util/bytesize"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"index"},
	Short:   "Build an exact k-mer position index from FASTA/Q sequences",
	Long: `Build an exact k-mer position index from FASTA/Q sequences

Input:
  1. Sequences can be given via positional arguments, a file list (-X/--infile-list),
     or a directory (-I/--in-dir). Stdin is read if none of them is given.
  2. All sequences are concatenated in order into one sequence, the name, start position
     and length of each sequence are saved in the index.
  3. Bases other than A, C, G and T (case insensitive) are treated as A.
     Therefore, consecutive A's in the index might be N's in the input.

Attention:
  1. The number of k-mer offsets is 4^k+1, k should be <= 16.
     Each offset takes 4 bytes, e.g., 16 GB for k=16, 4 MB for k=10.
  2. Each k-mer position takes 8 bytes in building.

Output files in the index directory:
  index.bin       offsets and positions of all k-mers
  seqs.tsv        names, start positions and lengths of the sequences
  seqs.2bit       2bit-packed sequences, for "kmeridx utils subseq"
  info.toml       summary

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

		var err error

		// ---------------------------------------------------------------
		// checking parameters

		k := getFlagPositiveInt(cmd, "kmer")
		if k > index.MaxK {
			checkError(fmt.Errorf("the value of flag -k/--kmer should be in range of [1, %d]", index.MaxK))
		}
		partitions := getFlagPositiveInt(cmd, "partitions")

		maxMemStr := getFlagString(cmd, "max-mem")
		var maxMem int64
		if maxMemStr != "" && maxMemStr != "0" {
			size, err := bytesize.ParseByteSize(maxMemStr)
			if err != nil {
				checkError(fmt.Errorf("invalid value of flag --max-mem: %s", maxMemStr))
			}
			maxMem = int64(size)
		}

		outDir := getFlagPath(cmd, "out-dir")
		force := getFlagBool(cmd, "force")
		if outDir == "" {
			checkError(fmt.Errorf("flag -O/--out-dir is needed"))
		}

		inDir := getFlagPath(cmd, "in-dir")
		if inDir != "" {
			if filepath.Clean(inDir) == filepath.Clean(outDir) {
				checkError(fmt.Errorf("intput and output paths should not be the same: %s", outDir))
			}
			isDir, err := pathutil.IsDir(inDir)
			if err != nil {
				checkError(errors.Wrapf(err, "checking -I/--in-dir"))
			}
			if !isDir {
				checkError(fmt.Errorf("value of -I/--in-dir should be a directory: %s", inDir))
			}
		}

		reFileStr := getFlagString(cmd, "file-regexp")
		if !reIgnoreCase.MatchString(reFileStr) {
			reFileStr = reIgnoreCaseStr + reFileStr
		}
		reFile, err := regexp.Compile(reFileStr)
		if err != nil {
			checkError(errors.Wrapf(err, "failed to parse regular expression for matching file: %s", reFileStr))
		}

		reSeqNameStrs := getFlagStringSlice(cmd, "seq-name-filter")
		reSeqNames := make([]*regexp.Regexp, 0, len(reSeqNameStrs))
		for _, kw := range reSeqNameStrs {
			if !reIgnoreCase.MatchString(kw) {
				kw = reIgnoreCaseStr + kw
			}
			re, err := regexp.Compile(kw)
			if err != nil {
				checkError(errors.Wrapf(err, "failed to parse regular expression for matching sequence header: %s", kw))
			}
			reSeqNames = append(reSeqNames, re)
		}

		// fail early before reading all the sequences
		existed, err := pathutil.DirExists(outDir)
		checkError(errors.Wrap(err, outDir))
		if existed && !force {
			empty, err := pathutil.IsEmpty(outDir)
			checkError(errors.Wrap(err, outDir))
			if !empty {
				checkError(fmt.Errorf("output directory not empty: %s, use --force to overwrite", outDir))
			}
		}

		// ---------------------------------------------------------------
		// input files

		if outputLog {
			log.Infof("kmeridx v%s", VERSION)
			log.Info("  https://github.com/shenwei356/kmeridx")
			log.Info()
			log.Info("checking input files ...")
		}

		var files []string
		if inDir != "" {
			files, err = getFileListFromDir(inDir, reFile, opt.NumCPUs)
			if err != nil {
				checkError(errors.Wrapf(err, "walking dir: %s", inDir))
			}
			if len(files) == 0 {
				log.Warningf("  no files matching regular expression: %s", reFileStr)
			}
		} else {
			files = getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
			if outputLog {
				if len(files) == 1 && isStdin(files[0]) {
					log.Info("  no files given, reading from stdin")
				}
			}
		}
		if len(files) < 1 {
			checkError(fmt.Errorf("FASTA/Q files needed"))
		} else if outputLog {
			log.Infof("  %d input file(s) given", len(files))
		}

		if outputLog {
			log.Info()
			log.Infof("-------------------- [main parameters] --------------------")
			log.Infof("  output directory: %s", outDir)
			log.Infof("  k-mer size: %d", k)
			log.Infof("  partitions of each building phase: %d", partitions)
			if maxMem > 0 {
				log.Infof("  maximum memory of buffers: %s", bytesize.ByteSize(maxMem))
			}
			log.Infof("-------------------- [main parameters] --------------------")
			log.Info()
		}

		// ---------------------------------------------------------------
		// reading sequences

		if outputLog {
			log.Info("reading sequences ...")
		}

		s, catalog, nSkipped := readSeqs(files, reSeqNames, opt.Verbose)
		if outputLog {
			log.Infof("  %d sequences with %d bases read", catalog.NumSeqs(), catalog.Len())
			if nSkipped > 0 {
				log.Infof("  %d sequences skipped (empty or filtered out)", nSkipped)
			}
		}
		if len(s) < k {
			checkError(fmt.Errorf("total sequence length (%d) < k (%d)", len(s), k))
		}

		// ---------------------------------------------------------------
		// building

		if outputLog {
			log.Info()
			log.Infof("building index with %d threads ...", opt.NumCPUs)
		}
		timeBuild := time.Now()

		idx, err := index.BuildFromSeq(s, k, &index.Options{
			Threads:    opt.NumCPUs,
			Partitions: partitions,
			Provider:   &index.HeapProvider{MaxBytes: maxMem},
		})
		if err != nil {
			checkError(fmt.Errorf("failed to build the index: %s", err))
		}
		idx.Catalog = catalog
		if outputLog {
			log.Infof("  %d k-mer positions indexed in %s", idx.NumKmers(), time.Since(timeBuild))
		}

		// ---------------------------------------------------------------
		// saving

		if outputLog {
			log.Info()
			log.Info("saving index ...")
		}

		err = idx.WriteToPath(outDir, force)
		if err != nil {
			checkError(fmt.Errorf("failed to write index: %s", err))
		}

		err = writeSeqs(filepath.Join(outDir, index.TwoBitFile), s, catalog)
		if err != nil {
			checkError(fmt.Errorf("failed to write 2bit sequences: %s", err))
		}

		err = writeIndexInfo(filepath.Join(outDir, FileInfo), &IndexInfo{
			MainVersion:  index.MainVersion,
			MinorVersion: index.MinorVersion,
			K:            k,
			Bases:        idx.Len(),
			Kmers:        idx.NumKmers(),
			Seqs:         catalog.NumSeqs(),
			Checksum:     formatChecksum(idx.Checksum()),
			Tool:         fmt.Sprintf("kmeridx v%s", VERSION),
			Created:      time.Now().Format(time.RFC3339),
		})
		if err != nil {
			checkError(fmt.Errorf("failed to write info file: %s", err))
		}

		if outputLog {
			log.Infof("kmeridx index saved: %s", outDir)
		}
	},
}

// readSeqs concatenates all sequences in upper case, and records them in a catalog.
// Empty sequences and ones matching any of the patterns are skipped.
func readSeqs(files []string, reSeqNames []*regexp.Regexp, verbose bool) ([]byte, *index.Catalog, int) {
	var pbs *mpb.Progress
	var bar *mpb.Bar
	if verbose {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(len(files)),
			mpb.PrependDecorators(
				decor.Name("processed files: ", decor.WC{W: len("processed files: "), C: decor.DindentRight}),
				decor.Name("", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
				decor.EwmaETA(decor.ET_STYLE_GO, 10),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)
	}

	s := make([]byte, 0, 1<<20)
	catalog := index.NewCatalog()
	var nSkipped int
	var ignore bool
	var t time.Time

	for _, file := range files {
		t = time.Now()

		fastxReader, err := fastx.NewReader(nil, file, "")
		checkError(errors.Wrap(err, file))

		var record *fastx.Record
		for {
			record, err = fastxReader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				checkError(errors.Wrap(err, file))
				break
			}

			if len(record.Seq.Seq) == 0 {
				nSkipped++
				continue
			}

			ignore = false
			for _, re := range reSeqNames {
				if re.Match(record.Name) {
					ignore = true
					break
				}
			}
			if ignore {
				nSkipped++
				continue
			}

			checkError(catalog.Add(record.ID, len(record.Seq.Seq)))
			s = append(s, bytes.ToUpper(record.Seq.Seq)...)
		}
		fastxReader.Close()

		if verbose {
			bar.EwmaIncrBy(1, time.Since(t))
		}
	}

	if verbose {
		pbs.Wait()
	}

	return s, catalog, nSkipped
}

// writeSeqs saves each sequence of the catalog in 2bit format.
func writeSeqs(file string, s []byte, catalog *index.Catalog) error {
	w, err := twobit.NewWriter(file)
	if err != nil {
		return err
	}
	var start int
	for i, length := range catalog.Lens {
		start = catalog.Starts[i]
		err = w.WriteSeq(s[start : start+length])
		if err != nil {
			return err
		}
	}
	return w.Close()
}

var reIgnoreCaseStr = "(?i)"
var reIgnoreCase = regexp.MustCompile(`\(\?i\)`)

func init() {
	RootCmd.AddCommand(buildCmd)

	// -----------------------------  input  -----------------------------

	buildCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage(`Directory containing FASTA/Q files. Directory symlinks are followed.`))

	buildCmd.Flags().StringP("file-regexp", "r", `\.(f[aq](st[aq])?|fna)(.gz)?$`,
		formatFlagUsage(`Regular expression for matching sequence files in -I/--in-dir, case ignored.`))

	buildCmd.Flags().StringSliceP("seq-name-filter", "B", []string{},
		formatFlagUsage(`List of regular expressions for filtering out sequences by header/name, case ignored.`))

	// -----------------------------  output  -----------------------------

	buildCmd.Flags().StringP("out-dir", "O", "",
		formatFlagUsage(`Output directory.`))

	buildCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite existed output directory.`))

	// -----------------------------  index  -----------------------------

	buildCmd.Flags().IntP("kmer", "k", 12,
		formatFlagUsage(fmt.Sprintf(`K-mer size. K needs to be <= %d.`, index.MaxK)))

	buildCmd.Flags().IntP("partitions", "p", index.DefaultPartitions,
		formatFlagUsage(`Number of contiguous ranges each building phase is split into.`))

	buildCmd.Flags().StringP("max-mem", "M", "",
		formatFlagUsage(`Maximum memory of buffers for building, e.g., 4G, 500M. Empty or 0 for no limit.`))

	buildCmd.SetUsageTemplate(usageTemplate("[-k <k>] {[-I <seqs dir>] | <seq files> | -X <file list>} -O <out dir>"))
}
