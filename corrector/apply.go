package corrector

import (
	"sort"
	"strconv"
)

// tagFor formats the correction-info suffix of spec §6:
// "position(round, overlapSum, donorReadId):op".
func tagFor(pos, round, overlapSum int, donor ReadID, op string) string {
	return strconv.Itoa(pos) + "(" + strconv.Itoa(round) + "," + strconv.Itoa(overlapSum) + "," + strconv.Itoa(int(donor)) + "):" + op
}

// acceptedRecord augments a Record with its combined overlap, computed once
// at the start of Apply, and a working copy of its read position.
type acceptedRecord struct {
	Record
	overlapCombined int
	errorPos        int // mutated as preceding indels on the same read shift it
}

// ApplyResult summarizes one read's apply pass, for C8's round accounting
// and the correction-info tag (spec §6).
type ApplyResult struct {
	Accepted int
	Tags     []string
}

// combinedOverlap implements the "max, not sum" choice recorded in
// SPEC_FULL.md for spec §4.7 step 1.
func combinedOverlap(r Record) int {
	return maxInt(int(r.OverlapFwd), int(r.OverlapRev))
}

// Apply runs C7 for a single read: candidates are considered for acceptance
// in overlap-descending order (so a scarce per-round budget favors the
// best-supported edits first), then the accepted set is applied to rs in
// position-descending order so each edit's index is still valid when it's
// applied. It returns the number of edits applied and, if
// opts.AppendCorrectionInfo is set, their correction-info tags.
func Apply(rs *ReadStore, opts Opts, model *StatsModel, list *CorrectionList, forwardID ReadID, round int) ApplyResult {
	raw := list.Records(forwardID)
	if len(raw) == 0 {
		return ApplyResult{}
	}

	recs := make([]acceptedRecord, len(raw))
	for i, r := range raw {
		recs[i] = acceptedRecord{Record: r, overlapCombined: combinedOverlap(r), errorPos: int(r.Pos)}
	}

	sortRecordsByPosition(recs)
	if opts.DedupPositions {
		recs = dedupByPosition(recs)
	}
	sortRecordsByOverlap(recs)

	readLen := rs.Len(forwardID)
	budget := rs.AllowedCorrections(forwardID)
	if !opts.LimitCorrPerRound {
		budget = ^uint32(0)
	}

	var accepted []acceptedRecord
	var acceptedPositions []int
	for _, r := range recs {
		if len(accepted) >= int(budget) {
			break
		}
		seq := rs.Bases(forwardID)
		isNBase := r.errorPos >= 0 && r.errorPos < len(seq) && isN(seq[r.errorPos])
		if !isNBase {
			cutoff := model.OverlapSumCutoff(readLen, r.errorPos)
			if float64(r.overlapCombined) <= cutoff {
				continue
			}
			if conflicts(acceptedPositions, r.errorPos, opts.FromLevel) {
				continue
			}
		}
		accepted = append(accepted, r)
		acceptedPositions = append(acceptedPositions, r.errorPos)
	}

	if len(accepted) == 0 {
		return ApplyResult{}
	}

	// Apply in position-descending order; after each indel, shift every
	// remaining (not-yet-applied) accepted record by -indel.
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].errorPos > accepted[j].errorPos })

	var tags []string
	seq := rs.Bases(forwardID)
	seq = append([]byte(nil), seq...)
	for i := 0; i < len(accepted); i++ {
		r := accepted[i]
		p := r.errorPos
		indel := int(r.Indel)
		if p < 0 || p > len(seq) {
			continue
		}
		switch {
		case indel == 0:
			if p < len(seq) && len(r.Replacement) == 1 {
				if opts.AppendCorrectionInfo {
					op := string(seq[p]) + "→" + string(r.Replacement[0])
					tags = append(tags, tagFor(p, round, r.overlapCombined, r.DonorRead, op))
				}
				seq[p] = r.Replacement[0]
			}
		case indel > 0:
			end := minInt(p+indel, len(seq))
			if opts.AppendCorrectionInfo {
				tags = append(tags, tagFor(p, round, r.overlapCombined, r.DonorRead, "-"+string(seq[p:end])))
			}
			seq = append(seq[:p], seq[end:]...)
		default:
			if opts.AppendCorrectionInfo {
				tags = append(tags, tagFor(p, round, r.overlapCombined, r.DonorRead, "+"+string(r.Replacement)))
			}
			tail := append([]byte(nil), seq[p:]...)
			seq = append(seq[:p], append(append([]byte(nil), r.Replacement...), tail...)...)
		}
		for j := i + 1; j < len(accepted); j++ {
			accepted[j].errorPos -= indel
		}
	}

	rs.setBases(forwardID, seq)
	rs.decrementAllowed(forwardID, uint32(len(accepted)))
	for _, t := range tags {
		rs.appendCorrectionTag(forwardID, t)
	}
	return ApplyResult{Accepted: len(accepted), Tags: tags}
}

// sortRecordsByPosition implements spec §4.7 step 2: position descending,
// then overlap-combined descending, tie-breaking toward mismatch (indel==0)
// then larger positive indel.
func sortRecordsByPosition(recs []acceptedRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.errorPos != b.errorPos {
			return a.errorPos > b.errorPos
		}
		return lessOverlapTieBreak(a, b)
	})
}

// sortRecordsByOverlap implements spec §4.7 step 4's re-sort: overlap-
// combined descending only, with the same mismatch/indel tie-breaks and no
// position key at all, so the budget-limited acceptance loop picks
// candidates in overlap-priority (not position-priority) order.
func sortRecordsByOverlap(recs []acceptedRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return lessOverlapTieBreak(recs[i], recs[j])
	})
}

// lessOverlapTieBreak orders by overlap-combined descending, then mismatch
// (indel==0) before indel, then larger positive indel, shared by both sorts.
func lessOverlapTieBreak(a, b acceptedRecord) bool {
	if a.overlapCombined != b.overlapCombined {
		return a.overlapCombined > b.overlapCombined
	}
	aMismatch, bMismatch := a.Indel == 0, b.Indel == 0
	if aMismatch != bMismatch {
		return aMismatch
	}
	return a.Indel > b.Indel
}

// dedupByPosition keeps only the first (highest-ranked, given recs is
// already sorted) record per position, per spec §4.7 step 3.
func dedupByPosition(recs []acceptedRecord) []acceptedRecord {
	seen := make(map[int]bool, len(recs))
	out := make([]acceptedRecord, 0, len(recs))
	for _, r := range recs {
		if seen[r.errorPos] {
			continue
		}
		seen[r.errorPos] = true
		out = append(out, r)
	}
	return out
}

// conflicts reports whether pos lies within fromLevel of any already
// accepted position on the same read (spec §4.7 step 5's distance-based
// conflict mode). fromLevel <= 0 disables the check.
func conflicts(accepted []int, pos, fromLevel int) bool {
	if fromLevel <= 0 {
		return false
	}
	for _, p := range accepted {
		if absInt(p-pos) < fromLevel {
			return true
		}
	}
	return false
}
