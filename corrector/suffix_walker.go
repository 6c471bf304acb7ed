package corrector

import (
	"sort"

	"blainsmith.com/go/seahash"
)

// WalkNode is one erroneous-emit-eligible node handed off to C5: the set of
// occurrences under the node ("errorCandidates") and the sibling child
// groups of its parent that look like correct alternatives
// ("correctCandidates"), per spec §4.4.
type WalkNode struct {
	L                 int // parentRepLength: the node's own string depth.
	ErrorCandidates   []SuffixRef
	CorrectCandidates [][]SuffixRef
}

// explicit-stack DFS frame: a contiguous, already-grouped range of suffixes
// that all share the same depth-`depth` path-label prefix.
type walkFrame struct {
	refs  []SuffixRef
	depth int
}

// childGroup is one partition of a frame's refs by the character at
// position `depth`, i.e. a candidate node at depth+1.
type childGroup struct {
	char byte
	refs []SuffixRef
}

// WalkBuckets runs C4 over the bucket range [lo,hi) of idx: an explicit-stack
// (never recursive) depth-first, pre-order traversal of the virtual suffix
// tree refined one character at a time from depth q up to kmax. Every node
// found eligible for emission (see the skip rules below) is passed to emit.
func WalkBuckets(idx *QGramIndex, lo, hi int, rs *ReadStore, opts Opts, model *StatsModel, round int, emit func(WalkNode)) {
	var stack []walkFrame
	for bi := lo; bi < hi; bi++ {
		b := idx.Buckets[bi]
		if b.Disabled || b.Count == 0 {
			continue
		}
		stack = append(stack, walkFrame{
			refs:  idx.Refs[b.Start : b.Start+b.Count],
			depth: QGramLength,
		})
	}

	for len(stack) > 0 {
		n := len(stack) - 1
		frame := stack[n]
		stack = stack[:n]

		groups := partitionByChar(frame.refs, rs, frame.depth)
		solo := len(groups) == 1
		for gi, g := range groups {
			L := frame.depth + 1
			if solo || !nodeDescendable(g, rs, L, round, opts, model) {
				continue
			}
			stack = append(stack, walkFrame{refs: g.refs, depth: L})

			if !nodeEmittable(g, L, model) {
				continue
			}
			correct := gatherCorrectCandidates(groups, gi, L, model)
			if len(correct) == 0 {
				continue
			}
			emit(WalkNode{L: L, ErrorCandidates: g.refs, CorrectCandidates: correct})
		}
	}
}

// partitionByChar groups refs by the byte at position `depth` in their
// strand's current sequence. Suffixes that end before `depth` are leaves:
// they terminate here and are excluded from further partitioning.
func partitionByChar(refs []SuffixRef, rs *ReadStore, depth int) []childGroup {
	byChar := make(map[byte][]SuffixRef)
	var order []byte
	for _, r := range refs {
		seq := rs.Bases(r.Read)
		p := int(r.Pos) + depth
		if p >= len(seq) {
			continue
		}
		ch := seq[p]
		if _, ok := byChar[ch]; !ok {
			order = append(order, ch)
		}
		byChar[ch] = append(byChar[ch], r)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	groups := make([]childGroup, len(order))
	for i, ch := range order {
		groups[i] = childGroup{char: ch, refs: byChar[ch]}
	}
	return groups
}

// nodeDescendable implements the shared skip rules of spec §4.4 that block
// further descent. L < kmin is deliberately NOT included here: kmin is
// frequently well past q, so a branch must be allowed to grow past kmin
// before emission becomes possible (see DESIGN.md's Open Question
// resolution). Every other bullet blocks descent.
func nodeDescendable(g childGroup, rs *ReadStore, L, round int, opts Opts, model *StatsModel) bool {
	if L > model.Kmax {
		return false
	}
	if opts.DepthSampleRate > 1 {
		if mod(L+round-model.Kmin, opts.DepthSampleRate) != 0 {
			return false
		}
	}
	if isN(g.char) {
		return false
	}
	if len(g.refs) < 3 {
		return false
	}
	if isSelfRepetitive(g.refs[0], rs, L) {
		return false
	}
	return true
}

// nodeEmittable applies the emit-only condition (count >= errorCutoffs[L+1])
// on top of the shared descend rules, plus the L < kmin bound which only
// blocks emission.
func nodeEmittable(g childGroup, L int, model *StatsModel) bool {
	if L < model.Kmin {
		return false
	}
	if L+1 < len(model.ErrorCutoffs) && len(g.refs) >= model.ErrorCutoffs[L+1] {
		return false
	}
	return true
}

// gatherCorrectCandidates collects sibling child groups (of the same parent
// as the erroneous group at index errIdx) whose own count lies strictly
// between the error cutoff and the repeat cutoff, both read at index L+1 as
// in nodeEmittable. If none qualify, the single thickest other sibling (if
// any) is used instead.
func gatherCorrectCandidates(groups []childGroup, errIdx, L int, model *StatsModel) [][]SuffixRef {
	var lowCutoff, highCutoff int
	if L+1 < len(model.ErrorCutoffs) {
		lowCutoff = model.ErrorCutoffs[L+1]
	}
	if L+1 < len(model.RepeatCutoffs) {
		highCutoff = model.RepeatCutoffs[L+1]
	} else {
		highCutoff = int(^uint(0) >> 1)
	}

	var out [][]SuffixRef
	thickestIdx := -1
	for i, sib := range groups {
		if i == errIdx {
			continue
		}
		n := len(sib.refs)
		if thickestIdx == -1 || n > len(groups[thickestIdx].refs) {
			thickestIdx = i
		}
		if n > lowCutoff && n < highCutoff {
			out = append(out, sib.refs)
		}
	}
	if len(out) == 0 && thickestIdx != -1 {
		out = append(out, groups[thickestIdx].refs)
	}
	return out
}

// isSelfRepetitive reports whether the node's path-label (the first L bases
// of the representative occurrence rep) has a period p <= 6 covering at
// least half its length, per spec §4.4. For each candidate period it first
// tries a seahash fast path: tile the candidate unit out to L bases and
// compare its digest against the span's own digest, catching the common
// exactly-periodic case (pure homopolymer runs excepted, which are masked
// earlier in C3) without the byte-by-byte scan; a hash mismatch falls back
// to the approximate majority-match count below.
func isSelfRepetitive(rep SuffixRef, rs *ReadStore, L int) bool {
	seq := rs.Bases(rep.Read)
	start := int(rep.Pos)
	if start+L > len(seq) {
		return false
	}
	s := seq[start : start+L]
	spanHash := seahash.Sum64(s)
	tiled := make([]byte, L)
	for p := 1; p <= 6 && p < L; p++ {
		unit := s[:p]
		for i := 0; i < L; i++ {
			tiled[i] = unit[i%p]
		}
		if seahash.Sum64(tiled) == spanHash {
			return true
		}
		matches := 0
		total := L - p
		for i := 0; i < total; i++ {
			if s[i] == s[i+p] {
				matches++
			}
		}
		if total > 0 && matches*2 >= total {
			return true
		}
	}
	return false
}

// mod is Euclidean modulo: Go's % can return negative results for negative
// left operands, but the depth-sampling rule needs a result in [0, m).
func mod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
