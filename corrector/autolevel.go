package corrector

import "math"

// combinatoricsNoSeedCounts returns, for a read of length lread and a
// window size k, ways[e] = the number of ways to place e errors among the
// lread positions such that every length-k window contains at least one
// error, for e in [0, maxErr]. This implements CombinatoricsNoSeed via a
// position/run-length/error-count dynamic program (the original computes
// the same count through an equivalent recurrence over gap compositions).
func combinatoricsNoSeedCounts(lread, k, maxErr int) []float64 {
	if lread <= 0 || k <= 0 {
		return make([]float64, maxErr+1)
	}
	// dp[run][e] = # of ways to fill the processed prefix, ending in a run
	// of `run` consecutive error-free positions, using e errors so far.
	dp := make([][]float64, k)
	for r := range dp {
		dp[r] = make([]float64, maxErr+1)
	}
	dp[0][0] = 1
	for pos := 0; pos < lread; pos++ {
		next := make([][]float64, k)
		for r := range next {
			next[r] = make([]float64, maxErr+1)
		}
		for run := 0; run < k; run++ {
			for e := 0; e <= maxErr; e++ {
				ways := dp[run][e]
				if ways == 0 {
					continue
				}
				// Place an error at pos: run resets to 0.
				if e+1 <= maxErr {
					next[0][e+1] += ways
				}
				// Leave pos error-free: run grows, but must stay < k (a
				// run reaching k means a whole error-free window, which is
				// forbidden and simply dropped from the count).
				if run+1 < k {
					next[run+1][e] += ways
				}
			}
		}
		dp = next
	}
	counts := make([]float64, maxErr+1)
	for run := 0; run < k; run++ {
		for e := 0; e <= maxErr; e++ {
			counts[e] += dp[run][e]
		}
	}
	return counts
}

// uncorrectableExpectedBases implements UncorrectableExpectedBases: for
// each candidate anchor depth k, the expected number of error-bases that
// land in a read so densely packed that no length-k window is error-free
// (so the corrector has no clean anchor to extend from).
func uncorrectableExpectedBases(kmin, kmax int, hist []int, errorRate float64) []float64 {
	out := make([]float64, kmax+1)
	for k := kmin; k <= kmax; k++ {
		var total float64
		for readLen, numReads := range hist {
			if numReads == 0 || readLen == 0 {
				continue
			}
			maxErr := minInt(k, readLen)
			ways := combinatoricsNoSeedCounts(readLen, k, maxErr)
			for nerr := 1; nerr < k && nerr < len(ways); nerr++ {
				pk := math.Pow(errorRate, float64(nerr)) * math.Pow(1-errorRate, float64(readLen-nerr))
				total += ways[nerr] * pk * float64(numReads) * float64(readLen)
			}
		}
		out[k] = total
	}
	return out
}

// destructibleExpectedBases implements DestructibleExpectedBases: the
// expected number of bases in reads whose correct k-window collides with an
// unrelated genome location (a destructive false anchor).
func destructibleExpectedBases(kmin, kmax int, hist []int, errorRate, genomeLength float64) []float64 {
	out := make([]float64, kmax+1)
	for k := kmin; k <= kmax; k++ {
		muw := math.Pow(4, float64(k))
		qw := (1 - math.Pow(1-errorRate, float64(k))) * (1 - errorRate) * (1 - math.Pow(1-1.0/muw, genomeLength)) * 0.75
		var total float64
		for readLen, numReads := range hist {
			if numReads == 0 || readLen <= k {
				continue
			}
			total += (1 - math.Pow(1-qw, float64(readLen-k))) * math.Pow(1-errorRate, float64(readLen)) * float64(numReads)
		}
		out[k] = total
	}
	return out
}

// ResolveLevels returns the (kmin, kmax) traversal depth bounds to use for a
// round: the caller's explicit Opts.FromLevel/ToLevel if both are set, and
// AutoLevel's recommendation otherwise (spec §4.2's "Auto level detection").
func ResolveLevels(rs *ReadStore, opts Opts) (kmin, kmax int) {
	if opts.FromLevel > 0 && opts.ToLevel > 0 {
		return opts.FromLevel, opts.ToLevel
	}
	hist := readLengthHistogram(rs)
	kmin, kmax = AutoLevel(hist, opts.ErrorRate, opts.GenomeLength)
	if opts.FromLevel > 0 {
		kmin = opts.FromLevel
	}
	if opts.ToLevel > 0 {
		kmax = opts.ToLevel
	}
	return kmin, kmax
}

// AutoLevel picks kmin to minimize the sum of expected uncorrectable and
// destructible bases (spec §4.2's "Auto level detection"), bounded below by
// log_4(200*genomeLength), and sets kmax = kmin+10 capped by the longest
// read.
func AutoLevel(hist []int, errorRate, genomeLength float64) (kmin, kmax int) {
	maxLen := len(hist) - 1
	lowerBound := 1
	if genomeLength > 0 {
		lowerBound = int(math.Ceil(math.Log(200*genomeLength) / math.Log(4)))
	}
	if lowerBound < 1 {
		lowerBound = 1
	}
	upperBound := minInt(maxLen, lowerBound+20)
	if upperBound < lowerBound {
		upperBound = lowerBound
	}
	uncorr := uncorrectableExpectedBases(lowerBound, upperBound, hist, errorRate)
	var destr []float64
	if genomeLength > 0 {
		destr = destructibleExpectedBases(lowerBound, upperBound, hist, errorRate, genomeLength)
	} else {
		destr = make([]float64, upperBound+1)
	}
	best := lowerBound
	bestVal := math.Inf(1)
	for k := lowerBound; k <= upperBound; k++ {
		v := uncorr[k] + destr[k]
		if v < bestVal {
			bestVal = v
			best = k
		}
	}
	kmin = best
	kmax = minInt(kmin+10, maxLen)
	if kmax < kmin {
		kmax = kmin
	}
	return kmin, kmax
}
