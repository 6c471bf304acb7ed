package corrector

import (
	"github.com/pkg/errors"
)

// FionaMethod selects the statistical procedure C2 uses to derive the
// erroneous-node cutoff table from the expected-coverage table.
type FionaMethod int

const (
	// MethodClassifier compares a Poisson(expected) model of correct reads
	// against a two-error Poisson mixture model of erroneous reads, weighted
	// by the erroneous/correct prior odds. This is the default.
	MethodClassifier FionaMethod = iota
	// MethodControlFP picks the smallest cutoff whose Poisson CDF exceeds
	// Strictness (bounds the false-positive rate).
	MethodControlFP
	// MethodControlFN picks a cutoff from the two-error mixture CDF (bounds
	// the false-negative rate).
	MethodControlFN
	// MethodExpected uses the floor of the expected coverage directly.
	MethodExpected
	// MethodCount uses a constant cutoff equal to Strictness.
	MethodCount
)

// String returns the flag-compatible name of the method, mirroring
// methodName() in the original fiona.cpp.
func (m FionaMethod) String() string {
	switch m {
	case MethodClassifier:
		return "classifier"
	case MethodControlFP:
		return "control_fp"
	case MethodControlFN:
		return "control_fn"
	case MethodExpected:
		return "expected"
	case MethodCount:
		return "count"
	default:
		return "unknown"
	}
}

// MethodForName parses the CLI-visible method name, matching
// methodForName() in fiona.cpp. Unknown names fall back to MethodClassifier.
func MethodForName(name string) FionaMethod {
	switch name {
	case "control_fp":
		return MethodControlFP
	case "control_fn":
		return MethodControlFN
	case "expected":
		return MethodExpected
	case "count":
		return MethodCount
	default:
		return MethodClassifier
	}
}

// MaxIndelLength is the hard limit (Δ) on |indel_len| in a correction
// record, called MAX_INDEL_LENGTH in the original source.
const MaxIndelLength = 4

// MaxRounds is the hard cap on the number of correction rounds, called
// MAX_NUM_ROUND in the original source.
const MaxRounds = 6

// QGramLength is the fixed q-gram length (q) used to build the C3 index.
const QGramLength = 10

// Opts holds every tunable recognized by the corrector (spec §6).
type Opts struct {
	// GenomeLength is the estimated donor genome length in bases, used by C2
	// to derive expected per-position k-mer coverage.
	GenomeLength float64
	// ErrorRate is the expected per-base sequencing error rate.
	ErrorRate float64
	// OverlapErrorRate is the error rate used by the overlap-extension
	// acceptance test in C5. Zero means "derive from ErrorRate" (2*ErrorRate).
	OverlapErrorRate float64
	// Strictness is a method-dependent scalar fed into C2's cutoff
	// selection.
	Strictness float64
	// Method selects the C2 cutoff procedure.
	Method FionaMethod
	// FromLevel, ToLevel are kmin, kmax. Zero for either enables auto level
	// detection.
	FromLevel, ToLevel int
	// DepthSampleRate subsamples traversal depths within a round to bound
	// total work; 1 disables subsampling.
	DepthSampleRate int
	// KmerAbundanceCutoff is the fraction (in [0,1]) of the most abundant
	// q-gram buckets that C3 disables as likely repeats.
	KmerAbundanceCutoff float64
	// MaxIndelLen bounds |indel_len| considered by C5; must be in [0,4].
	MaxIndelLen int
	// Cycles is the fixed number of rounds to run; 0 selects the C8
	// regression-based automatic stopping rule.
	Cycles int
	// RelativeErrorsToCorrect sets each read's correction budget to
	// max(2, ceil(RelativeErrorsToCorrect*readLen)).
	RelativeErrorsToCorrect float64
	// Wovsum is the overlap-sum cutoff table's correct/random mixing
	// weight, in [0,1].
	Wovsum float64
	// PackagesPerThread controls the C9 scheduling grain.
	PackagesPerThread int
	// NumThreads is the number of parallel workers C9 spawns; must be >= 1.
	NumThreads int
	// MatchN, when true, makes N match any base during overlap extension
	// (FIONA_MATCH_N in the original).
	MatchN bool
	// TrimNsOnOutput trims leading/trailing N runs from corrected reads.
	TrimNsOnOutput bool
	// LimitCorrPerRound enforces the per-read AllowedCorrections budget.
	LimitCorrPerRound bool
	// AppendCorrectionInfo appends a textual correction tag to each
	// corrected read's id.
	AppendCorrectionInfo bool
	// DedupPositions keeps only the highest-ranked record per position
	// during C7 step 3.
	DedupPositions bool
	// OverlapEditDistance selects banded edit distance instead of bounded
	// Hamming distance for the C5 overlap extension
	// (FIONA_OVERLAP_WITH_EDIT_DISTANCE in the original).
	OverlapEditDistance bool
	// GivenOdds is the posterior-odds threshold C2 uses to compute
	// RepeatCutoffs.
	GivenOdds float64
	// SuperPackages is the number of disjoint passes over the bucket list
	// (0 = automatic). Correct does not read it: every round builds and
	// traverses the whole index in a single pass.
	SuperPackages int
	// TraceReadID, when >= 0, makes Correct log, at the start of each
	// round, that read id and its remaining correction budget. Individual
	// proposals and accept/reject decisions are not logged.
	TraceReadID int
	// EarlyStop selects the "stop once adjR² <= 0.95" termination rule of
	// §4.8; otherwise the "best-fit" rule (stop after round 3 once adjR²
	// stops improving) is used.
	EarlyStop bool
}

// DefaultOpts mirrors the Illumina-mode defaults of the original fiona.cpp
// (FionaOptions' constructor, #ifdef FIONA_ILLUMINA branch).
var DefaultOpts = Opts{
	GenomeLength:            0,
	ErrorRate:               0.01,
	OverlapErrorRate:        0,
	Strictness:              0.0001,
	Method:                  MethodClassifier,
	FromLevel:               0,
	ToLevel:                 0,
	DepthSampleRate:         1,
	KmerAbundanceCutoff:     0.01,
	MaxIndelLen:             1,
	Cycles:                  0,
	RelativeErrorsToCorrect: 0.5,
	Wovsum:                  0.5,
	PackagesPerThread:       4,
	NumThreads:              1,
	MatchN:                  true,
	TrimNsOnOutput:          true,
	LimitCorrPerRound:       true,
	AppendCorrectionInfo:    false,
	DedupPositions:          true,
	OverlapEditDistance:     false,
	GivenOdds:               3,
	SuperPackages:           0,
	TraceReadID:             -1,
	EarlyStop:               true,
}

// overlapErrorRate returns the effective overlap error rate, applying the
// "2*ErrorRate" default from spec §6.
func (o Opts) overlapErrorRate() float64 {
	if o.OverlapErrorRate > 0 {
		return o.OverlapErrorRate
	}
	return 2 * o.ErrorRate
}

// Validate checks Opts for the configuration errors classified in spec §7.
// It is called before round 1; a non-nil error must stop the run cleanly.
func (o Opts) Validate() error {
	if o.Cycles < 0 {
		return errors.Errorf("corrector: Cycles must be >= 0, got %d", o.Cycles)
	}
	if o.MaxIndelLen < 0 || o.MaxIndelLen > MaxIndelLength {
		return errors.Errorf("corrector: MaxIndelLen must be in [0,%d], got %d", MaxIndelLength, o.MaxIndelLen)
	}
	if o.FromLevel != 0 && o.ToLevel != 0 && o.FromLevel > o.ToLevel {
		return errors.Errorf("corrector: FromLevel (%d) > ToLevel (%d)", o.FromLevel, o.ToLevel)
	}
	if o.ErrorRate < 0 || o.ErrorRate > 1 {
		return errors.Errorf("corrector: ErrorRate must be in [0,1], got %v", o.ErrorRate)
	}
	if o.RelativeErrorsToCorrect < 0 || o.RelativeErrorsToCorrect > 1 {
		return errors.Errorf("corrector: RelativeErrorsToCorrect must be in [0,1], got %v", o.RelativeErrorsToCorrect)
	}
	if o.NumThreads < 1 {
		return errors.Errorf("corrector: NumThreads must be >= 1, got %d", o.NumThreads)
	}
	if o.DepthSampleRate < 1 {
		return errors.Errorf("corrector: DepthSampleRate must be >= 1, got %d", o.DepthSampleRate)
	}
	if o.KmerAbundanceCutoff < 0 || o.KmerAbundanceCutoff > 1 {
		return errors.Errorf("corrector: KmerAbundanceCutoff must be in [0,1], got %v", o.KmerAbundanceCutoff)
	}
	if o.Wovsum < 0 || o.Wovsum > 1 {
		return errors.Errorf("corrector: Wovsum must be in [0,1], got %v", o.Wovsum)
	}
	return nil
}
