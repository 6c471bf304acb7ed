package corrector

import (
	"github.com/grailbio/base/log"
)

// ReadID addresses one strand of one read. Ids in [0, store.NumOriginal())
// denote forward reads; id+NumOriginal() denotes the reverse complement of
// read id, per spec §3/§4.1.
type ReadID int32

// ReadStore owns read sequences and their reverse complements as one
// addressable collection (C1). It is created once and persists across
// rounds; its bases are mutated only by the apply phase (C7), and only when
// no workers are traversing.
type ReadStore struct {
	names         []string // opaque to the core; carried through for output.
	bases         [][]byte // mutable forward sequences, len == numOriginal.
	revComp       [][]byte // cache of reverse complements, rebuilt per round.
	quality       [][]byte // optional per-base quality, preserved verbatim.
	allowedCorr   []uint32 // per (forward) read, persists & decreases across rounds.
	correctionTag [][]byte // accumulated appendCorrectionInfo suffixes.
}

// NewReadStore builds a read store from a set of input reads. names and
// quality may be nil if not tracked by the caller; quality, if non-nil, must
// have the same length as seqs and is preserved verbatim (it never
// influences the core, per spec §6).
func NewReadStore(names []string, seqs []string, quality []string, opts Opts) *ReadStore {
	n := len(seqs)
	rs := &ReadStore{
		names:         make([]string, n),
		bases:         make([][]byte, n),
		revComp:       make([][]byte, n),
		allowedCorr:   make([]uint32, n),
		correctionTag: make([][]byte, n),
	}
	if quality != nil {
		rs.quality = make([][]byte, n)
	}
	for i := 0; i < n; i++ {
		if names != nil {
			rs.names[i] = names[i]
		}
		b := []byte(seqs[i])
		rs.bases[i] = b
		rs.revComp[i] = reverseComplement(b)
		rs.allowedCorr[i] = correctionBudget(len(b), opts.RelativeErrorsToCorrect)
		if quality != nil {
			rs.quality[i] = []byte(quality[i])
		}
	}
	return rs
}

// correctionBudget implements the "Allowed-corrections budget" formula of
// spec §3: max(2, ceil(relative_errors * read_length)).
func correctionBudget(readLen int, relativeErrors float64) uint32 {
	b := int(relativeErrors * float64(readLen))
	if float64(b) < relativeErrors*float64(readLen) {
		b++
	}
	if b < 2 {
		b = 2
	}
	return uint32(b)
}

// NumOriginal returns R, the number of input reads.
func (rs *ReadStore) NumOriginal() int { return len(rs.bases) }

// NumStrands returns 2R, the number of addressable (id, strand) pairs.
func (rs *ReadStore) NumStrands() int { return 2 * len(rs.bases) }

func (rs *ReadStore) checkID(id ReadID) int {
	n := len(rs.bases)
	i := int(id)
	if i < 0 || i >= 2*n {
		log.Panicf("corrector: read id %d out of range [0,%d)", id, 2*n)
	}
	return i
}

// IsReverse reports whether id refers to a reverse-complement strand.
func (rs *ReadStore) IsReverse(id ReadID) bool {
	i := rs.checkID(id)
	return i >= len(rs.bases)
}

// ForwardID maps id to its forward-strand id (id itself if already forward).
func (rs *ReadStore) ForwardID(id ReadID) ReadID {
	i := rs.checkID(id)
	n := len(rs.bases)
	if i >= n {
		return ReadID(i - n)
	}
	return id
}

// SwitchStrand maps id to the id of the opposite strand of the same read.
func (rs *ReadStore) SwitchStrand(id ReadID) ReadID {
	i := rs.checkID(id)
	n := len(rs.bases)
	if i >= n {
		return ReadID(i - n)
	}
	return ReadID(i + n)
}

// Bases returns the current (possibly corrected) byte sequence addressed by
// id, read-only. The returned slice must not be mutated by callers.
func (rs *ReadStore) Bases(id ReadID) []byte {
	i := rs.checkID(id)
	n := len(rs.bases)
	if i >= n {
		return rs.revComp[i-n]
	}
	return rs.bases[i]
}

// Len returns the length of the sequence addressed by id.
func (rs *ReadStore) Len(id ReadID) int { return len(rs.Bases(id)) }

// Name returns the input record's opaque id string, for the forward strand
// of a read.
func (rs *ReadStore) Name(id ReadID) string {
	return rs.names[rs.ForwardID(id)]
}

// AllowedCorrections returns the remaining per-read correction budget for
// the forward read addressed by id (forward or reverse; the budget is
// shared across strands of the same read).
func (rs *ReadStore) AllowedCorrections(id ReadID) uint32 {
	return rs.allowedCorr[rs.ForwardID(id)]
}

// MirrorPosition maps a position observed on one strand to the
// corresponding position on the opposite strand, per spec §4.1:
//
//	p' = length(read) - p - |indel_len| - (indel_len == 0 ? 1 : 0)
func MirrorPosition(readLen, p, indelLen int) int {
	extra := absInt(indelLen)
	if indelLen == 0 {
		extra++
	}
	return readLen - p - extra
}

// RebuildReverseComplements recomputes the reverse-complement cache after
// C7 mutates the forward sequences. Called once at the start of each round
// (after round 1) before C2/C3 rebuild their tables.
func (rs *ReadStore) RebuildReverseComplements() {
	for i, b := range rs.bases {
		rs.revComp[i] = reverseComplement(b)
	}
}

// setBases overwrites the forward sequence for a read. Exclusive to the
// apply phase (C7); callers must guarantee no worker is traversing.
func (rs *ReadStore) setBases(id ReadID, b []byte) {
	i := int(rs.ForwardID(id))
	rs.bases[i] = b
}

// decrementAllowed reduces the remaining budget for a read by n, floored at
// zero. Exclusive to the apply phase.
func (rs *ReadStore) decrementAllowed(id ReadID, n uint32) {
	i := int(rs.ForwardID(id))
	if n >= rs.allowedCorr[i] {
		rs.allowedCorr[i] = 0
	} else {
		rs.allowedCorr[i] -= n
	}
}

// appendCorrectionTag appends a correction-info tag to a read's accumulated
// suffix, per spec §6. The first append to a read is prefixed with
// " corrected:\t".
func (rs *ReadStore) appendCorrectionTag(id ReadID, tag string) {
	i := int(rs.ForwardID(id))
	if len(rs.correctionTag[i]) == 0 {
		rs.correctionTag[i] = append(rs.correctionTag[i], " corrected:\t"...)
	} else {
		rs.correctionTag[i] = append(rs.correctionTag[i], ' ')
	}
	rs.correctionTag[i] = append(rs.correctionTag[i], tag...)
}

// FinalSequence returns the final (possibly corrected, possibly
// N-trimmed) sequence and id for read i in [0, NumOriginal()).
func (rs *ReadStore) FinalSequence(i int, trimNs bool) (id string, seq []byte) {
	b := rs.bases[i]
	if trimNs {
		start, end := 0, len(b)
		for start < end && isN(b[start]) {
			start++
		}
		for end > start && isN(b[end-1]) {
			end--
		}
		b = b[start:end]
	}
	name := rs.names[i]
	if len(rs.correctionTag[i]) > 0 {
		name = name + string(rs.correctionTag[i])
	}
	return name, b
}

// Quality returns the verbatim per-base quality for the forward read i, or
// nil if quality tracking is disabled.
func (rs *ReadStore) Quality(i int) []byte {
	if rs.quality == nil {
		return nil
	}
	return rs.quality[i]
}

// SumAllowedCorrections returns the sum of all per-read budgets, used by
// the round-monotonicity testable property (spec §8.6).
func (rs *ReadStore) SumAllowedCorrections() uint64 {
	var s uint64
	for _, v := range rs.allowedCorr {
		s += uint64(v)
	}
	return s
}
