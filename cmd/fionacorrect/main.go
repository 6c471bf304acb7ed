// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

/*
fionacorrect is a parallel, suffix-tree-guided read error corrector. It
reads FASTA or FASTQ reads (gzip optional), runs the round loop described
in package corrector, and writes the corrected reads in the same format.
*/

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/fionacorrect/corrector"
	"github.com/grailbio/fionacorrect/internal/fastxio"
)

var (
	genomeLength        = flag.Float64("genome-length", 0, "Estimated donor genome length in bases; 0 disables genome-size-dependent statistics")
	errorRate           = flag.Float64("error-rate", corrector.DefaultOpts.ErrorRate, "Expected per-base sequencing error rate")
	overlapErrorRate    = flag.Float64("overlap-error-rate", 0, "Overlap-extension error rate; 0 derives it as 2*error-rate")
	strictness          = flag.Float64("strictness", corrector.DefaultOpts.Strictness, "Method-dependent cutoff-selection scalar")
	method              = flag.String("method", corrector.DefaultOpts.Method.String(), "Cutoff method: classifier, control_fp, control_fn, expected, count")
	fromLevel           = flag.Int("from-level", 0, "Minimum suffix-tree traversal depth; 0 selects automatic detection")
	toLevel             = flag.Int("to-level", 0, "Maximum suffix-tree traversal depth; 0 selects automatic detection")
	depthSampleRate     = flag.Int("depth-sample-rate", corrector.DefaultOpts.DepthSampleRate, "Sub-sample traversal depths within a round (>=1)")
	kmerAbundanceCutoff = flag.Float64("kmer-abundance-cutoff", corrector.DefaultOpts.KmerAbundanceCutoff, "Fraction of the most abundant q-gram buckets to mask as repeats")
	maxIndelLen         = flag.Int("max-indel-length", corrector.DefaultOpts.MaxIndelLen, "Maximum |indel length| considered during overlap extension (0..4)")
	cycles              = flag.Int("cycles", corrector.DefaultOpts.Cycles, "Fixed number of rounds; 0 selects the automatic regression-based stopping rule")
	relativeErrors      = flag.Float64("relative-errors-to-correct", corrector.DefaultOpts.RelativeErrorsToCorrect, "Per-read correction budget as a fraction of read length")
	wovsum              = flag.Float64("wovsum", corrector.DefaultOpts.Wovsum, "Overlap-sum cutoff table correct/random mixing weight")
	packagesPerThread   = flag.Int("packages-per-thread", corrector.DefaultOpts.PackagesPerThread, "Scheduling grain: work packages per worker thread")
	numThreads          = flag.Int("threads", corrector.DefaultOpts.NumThreads, "Number of parallel correction workers")
	matchN              = flag.Bool("match-n", corrector.DefaultOpts.MatchN, "Treat N as matching any base during overlap extension")
	trimNs              = flag.Bool("trim-ns", corrector.DefaultOpts.TrimNsOnOutput, "Trim leading/trailing N runs from corrected reads")
	limitCorrPerRound   = flag.Bool("limit-corrections-per-round", corrector.DefaultOpts.LimitCorrPerRound, "Enforce the per-read correction budget")
	appendCorrectionInfo = flag.Bool("append-correction-info", corrector.DefaultOpts.AppendCorrectionInfo, "Append a textual correction tag to each corrected read's id")
	dedupPositions      = flag.Bool("dedup-positions", corrector.DefaultOpts.DedupPositions, "Keep only the highest-ranked correction per position")
	overlapEditDistance = flag.Bool("overlap-edit-distance", corrector.DefaultOpts.OverlapEditDistance, "Use banded edit distance instead of Hamming distance during overlap extension")
	givenOdds           = flag.Float64("given-odds", corrector.DefaultOpts.GivenOdds, "Posterior-odds threshold for repeat cutoffs")
	superPackages       = flag.Int("super-packages", corrector.DefaultOpts.SuperPackages, "Number of disjoint passes over the bucket list (accepted but unused: the index is always processed in one pass)")
	traceReadID         = flag.Int("trace-read-id", corrector.DefaultOpts.TraceReadID, "Log this read id's remaining correction budget at the start of each round; -1 disables tracing")
	earlyStop           = flag.Bool("early-stop", corrector.DefaultOpts.EarlyStop, "Stop once adjusted R^2 falls to or below 0.95, rather than waiting for the best-fit round")
	outPath             = flag.String("out", "", "Output path; required")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] reads.fa[.gz]|reads.fastq[.gz]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 || *outPath == "" {
		log.Fatalf("exactly one input path and -out are required; check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	inPath := flag.Arg(0)

	opts := corrector.DefaultOpts
	opts.GenomeLength = *genomeLength
	opts.ErrorRate = *errorRate
	opts.OverlapErrorRate = *overlapErrorRate
	opts.Strictness = *strictness
	opts.Method = corrector.MethodForName(*method)
	opts.FromLevel = *fromLevel
	opts.ToLevel = *toLevel
	opts.DepthSampleRate = *depthSampleRate
	opts.KmerAbundanceCutoff = *kmerAbundanceCutoff
	opts.MaxIndelLen = *maxIndelLen
	opts.Cycles = *cycles
	opts.RelativeErrorsToCorrect = *relativeErrors
	opts.Wovsum = *wovsum
	opts.PackagesPerThread = *packagesPerThread
	opts.NumThreads = *numThreads
	opts.MatchN = *matchN
	opts.TrimNsOnOutput = *trimNs
	opts.LimitCorrPerRound = *limitCorrPerRound
	opts.AppendCorrectionInfo = *appendCorrectionInfo
	opts.DedupPositions = *dedupPositions
	opts.OverlapEditDistance = *overlapEditDistance
	opts.GivenOdds = *givenOdds
	opts.SuperPackages = *superPackages
	opts.TraceReadID = *traceReadID
	opts.EarlyStop = *earlyStop

	ctx := context.Background()
	records, isFASTQ, err := readRecords(ctx, inPath)
	if err != nil {
		log.Panicf("%v", err)
	}

	names := make([]string, len(records))
	seqs := make([]string, len(records))
	var quals []string
	if isFASTQ {
		quals = make([]string, len(records))
	}
	for i, r := range records {
		names[i] = r.ID
		seqs[i] = r.Seq
		if isFASTQ {
			quals[i] = r.Qual
		}
	}

	result, err := corrector.Correct(names, seqs, quals, opts)
	if err != nil {
		log.Panicf("%v", err)
	}
	for i, r := range result.Rounds {
		log.Printf("round %d: found=%d accepted=%d adjR2=%.4f", i+1, r.CorrectionsFound, r.Accepted, r.AdjR2)
	}

	out, err := os.Create(*outPath)
	if err != nil {
		log.Panicf("create %v: %v", *outPath, err)
	}
	defer out.Close()
	w := fastxio.NewWriter(out)
	for i, seq := range result.Sequences {
		rec := fastxio.Record{ID: result.Names[i], Seq: string(seq)}
		if i < len(result.Quality) {
			rec.Qual = string(result.Quality[i])
		}
		if err := w.Write(rec); err != nil {
			log.Panicf("write %v: %v", *outPath, err)
		}
	}
	log.Debug.Printf("exiting")
}

func readRecords(ctx context.Context, path string) ([]fastxio.Record, bool, error) {
	lower := strings.ToLower(path)
	stripped := strings.TrimSuffix(lower, ".gz")
	switch {
	case strings.HasSuffix(stripped, ".fastq") || strings.HasSuffix(stripped, ".fq"):
		recs, err := fastxio.ReadFASTQ(ctx, path)
		return recs, true, err
	default:
		recs, err := fastxio.ReadFASTA(ctx, path)
		return recs, false, err
	}
}
