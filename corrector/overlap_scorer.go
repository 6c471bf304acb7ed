package corrector

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// candidateOutcome is the per-candidate, per-indel result of the right
// overlap extension (spec §4.5, step 3b/3c), kept around long enough to pick
// the winning indel kind by support and, for indel <= 0, to build the
// consensus column.
type candidateOutcome struct {
	read        ReadID
	correctPos  int // p_c + L, the position the consensus/replacement reads from
	errorsRight int
	overlapLeft int
	overlapRight int
	rightLen    int // number of matched/considered bases past the cursor
}

// maxAcceptedMismatches returns max(2, ceil(quantile(Binomial(readLen,
// errorRate), 0.95))), the global per-read mismatch budget of spec §4.5's
// numeric notes.
func maxAcceptedMismatches(readLen int, errorRate float64) int {
	if readLen <= 0 {
		return 2
	}
	b := distuv.Binomial{N: float64(readLen), P: errorRate}
	q := int(math.Ceil(b.Quantile(0.95)))
	if q < 2 {
		q = 2
	}
	return q
}

// hammingCount counts mismatches between a and b (equal-length slices),
// stopping early once it exceeds cap; it reports the count actually found
// (capped at cap+1 to signal overflow to the caller).
func hammingCount(a, b []byte, matchN bool, cap int) int {
	n := minInt(len(a), len(b))
	errs := 0
	for i := 0; i < n; i++ {
		if !baseMatch(a[i], b[i], matchN) {
			errs++
			if errs > cap {
				return errs
			}
		}
	}
	return errs
}

// bandedEditDistance computes a cap-bounded Levenshtein distance between a
// and b, restricted to the diagonal band |i-j| <= cap, using the same
// row-by-row matrix recurrence as util.Levenshtein (diagonal/down/right
// traversal) but rolled into two vectors and capped rather than extended
// with downstream flanking bytes. Lengths differing by more than cap cannot
// possibly score within cap and short-circuit to cap+1, the same overflow
// sentinel hammingCount uses.
func bandedEditDistance(a, b []byte, matchN bool, cap int) int {
	n, m := len(a), len(b)
	if absInt(n-m) > cap {
		return cap + 1
	}
	const inf = 1 << 30
	prev := make([]int, m+1)
	for j := 0; j <= m; j++ {
		if j <= cap {
			prev[j] = j
		} else {
			prev[j] = inf
		}
	}
	cur := make([]int, m+1)
	for i := 1; i <= n; i++ {
		for j := range cur {
			cur[j] = inf
		}
		lo := maxInt(1, i-cap)
		hi := minInt(m, i+cap)
		if i <= cap {
			cur[0] = i
		}
		for j := lo; j <= hi; j++ {
			cost := 0
			if !baseMatch(a[i-1], b[j-1], matchN) {
				cost = 1
			}
			best := prev[j-1] + cost
			if del := prev[j] + 1; del < best {
				best = del
			}
			if ins := cur[j-1] + 1; ins < best {
				best = ins
			}
			cur[j] = best
		}
		prev, cur = cur, prev
	}
	result := prev[m]
	if result > cap {
		return cap + 1
	}
	return result
}

// overlapDistance dispatches between bounded Hamming distance and banded
// edit distance per Opts.OverlapEditDistance (spec §4.5a/b's "compile-time
// choice"), sharing the same cap-plus-one overflow contract either way.
func overlapDistance(a, b []byte, matchN bool, cap int, useEditDistance bool) int {
	if useEditDistance {
		return bandedEditDistance(a, b, matchN, cap)
	}
	return hammingCount(a, b, matchN, cap)
}

// extendMatches counts how many leading bases of a and b agree (using
// baseMatch), for the "count matching extension" step of §4.5.3b.
func extendMatches(a, b []byte, matchN bool) int {
	n := minInt(len(a), len(b))
	i := 0
	for i < n && baseMatch(a[i], b[i], matchN) {
		i++
	}
	return i
}

// reversed returns a new slice with b's bytes in reverse order, used to walk
// the left flank outward from the q-gram boundary.
func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// ScoreNode implements C5 for one walker node: it evaluates every
// (errorCandidate, correctCandidate) pair, selects the best-supported indel
// kind, and appends accepted corrections directly to list.
func ScoreNode(rs *ReadStore, opts Opts, model *StatsModel, node WalkNode, round int, list *CorrectionList) {
	delta := minInt(opts.MaxIndelLen, MaxIndelLength)
	overlapRate := opts.overlapErrorRate()
	matchN := opts.MatchN

	for _, errRef := range node.ErrorCandidates {
		rE := errRef.Read
		if opts.LimitCorrPerRound && rs.AllowedCorrections(rE) == 0 {
			continue
		}
		pE := int(errRef.Pos)
		pErr := pE + node.L
		strand := rs.IsReverse(rE)
		seqE := rs.Bases(rE)
		maxMis := maxAcceptedMismatches(len(seqE), opts.ErrorRate)

		kinds := make([]int, 0, 2*delta+1)
		for indel := -delta; indel <= delta; indel++ {
			kinds = append(kinds, indel)
		}
		overlapSum := make(map[int]int, len(kinds))
		outcomes := make(map[int][]candidateOutcome, len(kinds))
		// perKindErrors[indel][i] holds the errorsRight of the i-th
		// candidate in candidateOrder under that indel kind (maxMis+1 when
		// the kind failed for it), so support can be computed below.
		var candidateOrder []struct {
			read       ReadID
			correctPos int
			strandOK   bool
		}
		perKindErrors := make(map[int][]int)

		for _, group := range node.CorrectCandidates {
			for _, corRef := range group {
				rC := corRef.Read
				if rs.IsReverse(rC) != strand {
					// spec's strand mapping ties the error candidate's
					// strand to p_err; mixing strands within one
					// candidate pair would require an extra mirror step
					// that this walker does not perform, so such pairs
					// are skipped.
					continue
				}
				pC := int(corRef.Pos)
				seqC := rs.Bases(rC)

				leftLen := minInt(pE, pC)
				leftCap := maxInt(2, int(overlapRate*float64(leftLen)))
				leftE := reversed(seqE[pE-leftLen : pE])
				leftC := reversed(seqC[pC-leftLen : pC])
				acceptedLeft := overlapDistance(leftE, leftC, matchN, leftCap, opts.OverlapEditDistance)
				if acceptedLeft > leftCap {
					continue
				}
				rightCap := maxInt(0, maxMis-acceptedLeft)

				candidateOrder = append(candidateOrder, struct {
					read       ReadID
					correctPos int
					strandOK   bool
				}{rC, pC + node.L, true})
				ci := len(candidateOrder) - 1

				for _, indel := range kinds {
					eCursor := pErr
					if indel == 0 {
						eCursor++
					} else if indel > 0 {
						eCursor += indel
					}
					cCursor := pC + node.L - indel
					if indel <= 0 {
						cCursor++
					}
					if eCursor < 0 || eCursor > len(seqE) || cCursor < 0 || cCursor > len(seqC) {
						perKindErrors[indel] = append(perKindErrors[indel], maxMis+1)
						continue
					}
					eTail := seqE[eCursor:]
					cTail := seqC[cCursor:]
					matched := extendMatches(eTail, cTail, matchN)
					errorsRight := overlapDistance(eTail[matched:], cTail[matched:], matchN, rightCap, opts.OverlapEditDistance)
					if errorsRight > rightCap {
						perKindErrors[indel] = append(perKindErrors[indel], maxMis+1)
						continue
					}
					remainingE := len(seqE) - eCursor
					remainingC := len(seqC) - cCursor
					overlapLeft := clampInt(pErr-(maxMis-acceptedLeft), 0, 1<<30)
					extra := 0
					if indel == 0 {
						extra = 1
					}
					overlapRight := minInt(remainingE, remainingC) + extra + minInt(indel, 0) - errorsRight

					overlapSum[indel] = saturatingAddInt(overlapSum[indel], overlapLeft+overlapRight)
					outcomes[indel] = append(outcomes[indel], candidateOutcome{
						read:         rC,
						correctPos:   pC + node.L,
						errorsRight:  errorsRight,
						overlapLeft:  overlapLeft,
						overlapRight: overlapRight,
						rightLen:     matched,
					})
					perKindErrors[indel] = append(perKindErrors[indel], errorsRight)
				}
				_ = ci
			}
		}

		if len(candidateOrder) == 0 {
			continue
		}

		// Support: for each candidate index, find its minimum errorsRight
		// across kinds, then count how many candidates hit that minimum
		// for each kind.
		support := make(map[int]int, len(kinds))
		for ci := range candidateOrder {
			best := maxMis + 1
			for _, indel := range kinds {
				errs := perKindErrors[indel]
				if ci < len(errs) && errs[ci] < best {
					best = errs[ci]
				}
			}
			for _, indel := range kinds {
				errs := perKindErrors[indel]
				if ci < len(errs) && errs[ci] == best {
					support[indel]++
				}
			}
		}

		bestIndel, bestSupport := 0, 0
		for _, indel := range kinds {
			if support[indel] > bestSupport {
				bestSupport = support[indel]
				bestIndel = indel
			}
		}
		if bestSupport == 0 {
			continue
		}

		sum := overlapSum[bestIndel]
		if sum <= 0 {
			continue
		}

		replacement := buildReplacement(outcomes[bestIndel], bestIndel, rs)
		if replacement == nil && bestIndel == 0 {
			continue
		}
		forwardID := rs.ForwardID(rE)
		errPosForward := pErr
		if strand {
			errPosForward = MirrorPosition(rs.Len(rE), pErr, bestIndel)
		}
		donor := outcomes[bestIndel][0].read
		list.Add(forwardID, errPosForward, strand, bestIndel, replacement, sum, donor)

		if bestIndel <= 0 {
			emitConsensusMismatches(rs, opts, list, rE, pErr, strand, bestIndel, sum, outcomes[bestIndel])
		}
	}
}

// buildReplacement derives the replacement bases for the winning indel kind
// from the first contributing outcome's donor read, per spec §4.5 step 5.
func buildReplacement(outcomes []candidateOutcome, indel int, rs *ReadStore) []byte {
	if len(outcomes) == 0 {
		return nil
	}
	o := outcomes[0]
	if indel > 0 {
		return []byte{} // deletion: no replacement bases.
	}
	n := 1
	if indel < 0 {
		n = -indel
	}
	seq := rs.Bases(o.read)
	if o.correctPos+n > len(seq) {
		return nil
	}
	out := make([]byte, n)
	copy(out, seq[o.correctPos:o.correctPos+n])
	return out
}

// emitConsensusMismatches implements spec §4.5 step 6: for indel <= 0, walk
// the right extension's consensus column and emit extra mismatch
// corrections where the majority base disagrees with the erroneous read.
func emitConsensusMismatches(rs *ReadStore, opts Opts, list *CorrectionList, rE ReadID, pErr int, strand bool, indel int, baseOverlap int, outcomes []candidateOutcome) {
	if len(outcomes) == 0 {
		return
	}
	seqE := rs.Bases(rE)
	start := pErr + 1
	maxOffset := 0
	for _, o := range outcomes {
		if o.rightLen > maxOffset {
			maxOffset = o.rightLen
		}
	}
	for off := 0; off < maxOffset; off++ {
		pos := start + off
		if pos >= len(seqE) {
			break
		}
		var counts [5]int
		for _, o := range outcomes {
			seqC := rs.Bases(o.read)
			cp := o.correctPos + off
			if indel != 0 {
				cp -= indel
			}
			if cp < 0 || cp >= len(seqC) {
				continue
			}
			counts[baseCode[seqC[cp]]]++
		}
		total, majorityBase, majorityCount := 0, -1, 0
		for b, c := range counts[:4] {
			total += c
			if c > majorityCount {
				majorityCount, majorityBase = c, b
			}
		}
		if majorityCount < 2 || majorityBase < 0 || total == 0 {
			continue
		}
		var letters = [4]byte{'A', 'C', 'G', 'T'}
		replacementBase := letters[majorityBase]
		if baseCode[seqE[pos]] == uint8(majorityBase) {
			continue
		}
		consensusOverlap := maxInt(1, majorityCount*baseOverlap/total-1)
		forwardID := rs.ForwardID(rE)
		errPos := pos
		if strand {
			errPos = MirrorPosition(rs.Len(rE), pos, 0)
		}
		list.Add(forwardID, errPos, strand, 0, []byte{replacementBase}, consensusOverlap, outcomes[0].read)
	}
}

func saturatingAddInt(v, delta int) int {
	sum := v + delta
	if sum > 0xffff {
		return 0xffff
	}
	if sum < 0 {
		return 0
	}
	return sum
}
