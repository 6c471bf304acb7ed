package corrector

import (
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/fionacorrect/biosimd"
)

// baseCode maps A,C,G,T to {0,1,2,3} and everything else (N and any other
// byte) to 4, the "unknown" slot. Mirrors fusion.acgtnIndex.
var baseCode [256]uint8

// complementByte maps a base to its Watson-Crick complement; N maps to N.
var complementByte [256]byte

func init() {
	for i := range baseCode {
		baseCode[i] = 4
		complementByte[i] = 'N'
	}
	baseCode['a'], baseCode['A'] = 0, 0
	baseCode['c'], baseCode['C'] = 1, 1
	baseCode['g'], baseCode['G'] = 2, 2
	baseCode['t'], baseCode['T'] = 3, 3

	complementByte['a'], complementByte['A'] = 'T', 'T'
	complementByte['c'], complementByte['C'] = 'G', 'G'
	complementByte['g'], complementByte['G'] = 'C', 'C'
	complementByte['t'], complementByte['T'] = 'A', 'A'
}

// isN reports whether b is the "unknown base" letter.
func isN(b byte) bool { return baseCode[b] == 4 }

// baseMatch reports whether two bases should be treated as matching during
// overlap extension, honoring Opts.MatchN (FIONA_MATCH_N).
func baseMatch(a, b byte, matchN bool) bool {
	if a == b {
		return true
	}
	if matchN && (isN(a) || isN(b)) {
		return true
	}
	return false
}

// reverseComplement returns the reverse complement of seq, using the same
// SIMD-friendly helper the teacher's kmerizer uses for extending kmers.
func reverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	biosimd.ReverseComp8NoValidate(out, seq)
	return out
}

// reverseComplementString is the string-typed convenience wrapper used by
// the CLI and tests, mirroring fusion.reverseComplement.
func reverseComplementString(seq string) string {
	buf := make([]byte, len(seq))
	biosimd.ReverseComp8NoValidate(buf, gunsafe.StringToBytes(seq))
	return gunsafe.BytesToString(buf)
}

// countACGTN tallies base composition, reusing the fusion package's
// technique for low-complexity detection style counting.
func countACGTN(seq []byte) [5]int {
	var counts [5]int
	for _, ch := range seq {
		counts[baseCode[ch]]++
	}
	return counts
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// saturateU16 adds delta to v, clamping at 65535 per spec §3's saturation
// rule for overlap_fwd/overlap_rev.
func saturateU16(v uint16, delta int) uint16 {
	sum := int(v) + delta
	if sum > 0xffff {
		return 0xffff
	}
	if sum < 0 {
		return 0
	}
	return uint16(sum)
}
