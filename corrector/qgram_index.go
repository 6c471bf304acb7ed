package corrector

import (
	"sort"

	farm "github.com/dgryski/go-farm"
)

// SuffixRef addresses one suffix: strand id and the 0-based start position of
// the suffix within that strand's current sequence.
type SuffixRef struct {
	Read ReadID
	Pos  int32
}

// Bucket is a contiguous range of suffix-array entries sharing one q-gram
// prefix (spec §4.2's "Bucket"); it is the unit of parallel work handed to
// C9/C4.
type Bucket struct {
	Key      [QGramLength]byte
	Start    int // offset into QGramIndex.Refs
	Count    int
	Disabled bool
	hash     uint64 // farm hash of Key; set at build time, not read by the scheduler
}

// QGramIndex is C3: a two-pass q-gram suffix array plus the masks applied
// between the count and scatter passes.
type QGramIndex struct {
	Buckets []Bucket
	Refs    []SuffixRef

	release func()
}

// Release returns any huge-page-backed memory allocRefs obtained for Refs.
// It is a no-op for small indexes built on the plain heap. Safe to call
// once any caller is done reading idx.Refs.
func (idx *QGramIndex) Release() {
	if idx.release != nil {
		idx.release()
		idx.release = nil
	}
}

// bucketKey copies the first q bytes of seq starting at pos into a fixed-size
// array, or reports ok=false if the window runs off the end of seq or
// contains N (spec: "all buckets whose q-gram would contain N" are never
// built, which is equivalent to disabling them between the two passes).
func bucketKey(seq []byte, pos int) (key [QGramLength]byte, ok bool) {
	if pos+QGramLength > len(seq) {
		return key, false
	}
	for i := 0; i < QGramLength; i++ {
		b := seq[pos+i]
		if isN(b) {
			return key, false
		}
		key[i] = b
	}
	return key, true
}

// isHomopolymer reports whether a q-gram key is a run of one repeated
// letter, per spec §4.3 ("one rule per alphabet letter").
func isHomopolymer(key [QGramLength]byte) bool {
	for i := 1; i < QGramLength; i++ {
		if key[i] != key[0] {
			return false
		}
	}
	return true
}

func lessKey(a, b [QGramLength]byte) bool {
	for i := 0; i < QGramLength; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// BuildQGramIndex runs C3's two passes (count, then scatter) over every
// strand of rs, and applies the homopolymer/kmerAbundanceCutoff masks.
// N-containing windows are excluded during counting, which is equivalent to
// disabling those buckets between the passes.
func BuildQGramIndex(rs *ReadStore, opts Opts) *QGramIndex {
	counts := make(map[[QGramLength]byte]int)

	// Pass 1: count.
	numStrands := rs.NumStrands()
	for s := 0; s < numStrands; s++ {
		id := ReadID(s)
		seq := rs.Bases(id)
		for p := 0; p+QGramLength <= len(seq); p++ {
			if key, ok := bucketKey(seq, p); ok {
				counts[key]++
			}
		}
	}

	keys := make([][QGramLength]byte, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })

	idx := &QGramIndex{
		Buckets: make([]Bucket, len(keys)),
	}
	offset := 0
	for i, k := range keys {
		n := counts[k]
		idx.Buckets[i] = Bucket{
			Key:      k,
			Start:    offset,
			Count:    n,
			Disabled: isHomopolymer(k),
			hash:     farm.Hash64(k[:]),
		}
		offset += n
	}
	idx.Refs, idx.release = allocRefs(offset)

	// Pass 2: scatter. fill tracks how many refs have been placed per
	// bucket so far; bucketOf resolves a key to its bucket index.
	bucketOf := make(map[[QGramLength]byte]int, len(keys))
	for i, k := range keys {
		bucketOf[k] = i
	}
	fill := make([]int, len(idx.Buckets))
	for s := 0; s < numStrands; s++ {
		id := ReadID(s)
		seq := rs.Bases(id)
		for p := 0; p+QGramLength <= len(seq); p++ {
			key, ok := bucketKey(seq, p)
			if !ok {
				continue
			}
			bi := bucketOf[key]
			b := &idx.Buckets[bi]
			idx.Refs[b.Start+fill[bi]] = SuffixRef{Read: id, Pos: int32(p)}
			fill[bi]++
		}
	}

	idx.maskAbundant(opts.KmerAbundanceCutoff)
	return idx
}

// maskAbundant disables the largest buckets (by suffix count, excluding
// already-disabled homopolymer buckets) until their cumulative size reaches
// cutoff * totalSuffixes, per spec §4.3.
func (idx *QGramIndex) maskAbundant(cutoff float64) {
	if cutoff <= 0 {
		return
	}
	order := make([]int, 0, len(idx.Buckets))
	total := 0
	for i, b := range idx.Buckets {
		if b.Disabled {
			continue
		}
		order = append(order, i)
		total += b.Count
	}
	if total == 0 {
		return
	}
	sort.Slice(order, func(i, j int) bool {
		bi, bj := idx.Buckets[order[i]], idx.Buckets[order[j]]
		if bi.Count != bj.Count {
			return bi.Count > bj.Count
		}
		return lessKey(bi.Key, bj.Key)
	})
	target := cutoff * float64(total)
	disabled := 0.0
	for _, i := range order {
		if disabled >= target {
			break
		}
		idx.Buckets[i].Disabled = true
		disabled += float64(idx.Buckets[i].Count)
	}
}

// NumSuffixes returns the total number of suffix-array entries, enabled or
// not (used to size C9's work packages).
func (idx *QGramIndex) NumSuffixes() int { return len(idx.Refs) }

// WorkPackages splits the enabled buckets into contiguous work packages
// sized to approximately numSuffixes/(packagesPerThread*numThreads), per
// spec §4.3's traversal handoff, returning bucket-index ranges [start,end).
// Disabled buckets are omitted entirely: they carry no traversal work.
func (idx *QGramIndex) WorkPackages(packagesPerThread, numThreads int) [][2]int {
	enabled := make([]int, 0, len(idx.Buckets))
	total := 0
	for i, b := range idx.Buckets {
		if b.Disabled || b.Count == 0 {
			continue
		}
		enabled = append(enabled, i)
		total += b.Count
	}
	if len(enabled) == 0 {
		return nil
	}
	grain := maxInt(1, packagesPerThread*numThreads)
	target := maxInt(1, total/grain)

	var packages [][2]int
	start := 0
	acc := 0
	for i, bi := range enabled {
		acc += idx.Buckets[bi].Count
		atEnd := i == len(enabled)-1
		if acc >= target || atEnd {
			packages = append(packages, [2]int{enabled[start], bi + 1})
			start = i + 1
			acc = 0
		}
	}
	return packages
}

// SplitSuperPackages partitions the bucket-id space [0, len(Buckets)) into n
// disjoint, contiguous ranges, for peak-memory-capped index construction
// (spec §4.3's "super-packages"); semantics of traversal are unaffected by
// how many super-packages the caller chooses. n <= 0 selects a single range.
func (idx *QGramIndex) SplitSuperPackages(n int) [][2]int {
	total := len(idx.Buckets)
	if n <= 0 || n >= total {
		if total == 0 {
			return nil
		}
		n = maxInt(1, minInt(n, total))
		if n <= 0 {
			n = 1
		}
	}
	var ranges [][2]int
	base := total / n
	rem := total % n
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		if size == 0 {
			continue
		}
		ranges = append(ranges, [2]int{start, start + size})
		start += size
	}
	return ranges
}
