package corrector

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// StatsModel holds C2's purely-functional statistical tables: per-depth
// erroneous-count cutoffs, per-k repeat cutoffs, and the 2-D overlap-sum
// cutoff table. It is rebuilt every round because the read collection is
// mutated by C7 (spec §3's Lifecycle note).
type StatsModel struct {
	Kmin, Kmax int
	// Expected[k] is the expected k-mer coverage at depth k.
	Expected []float64
	// ErrorCutoffs[k] is the observed-count threshold below which a node of
	// depth k-1 (i.e. parentRepLength == k-1) is "erroneous".
	ErrorCutoffs []int
	// RepeatCutoffs[k] is the observed-count threshold above which a node
	// is skipped as repetitive.
	RepeatCutoffs []int
	// overlapSum[readLen] is indexed by error position, giving the minimum
	// combined overlap required to accept a correction.
	overlapSum map[int][]float64

	// ExpectedErrorReads is the expected count of erroneous reads.
	ExpectedErrorReads float64
	// OddsErrorReads is the erroneous/correct odds ratio used by the
	// classifier method's prior.
	OddsErrorReads float64
}

// readLengthHistogram returns hist[L] = number of (forward) reads of length
// L, matching fiona.cpp's readLenHist.
func readLengthHistogram(rs *ReadStore) []int {
	maxLen := 0
	n := rs.NumOriginal()
	for i := 0; i < n; i++ {
		if l := rs.Len(ReadID(i)); l > maxLen {
			maxLen = l
		}
	}
	hist := make([]int, maxLen+1)
	for i := 0; i < n; i++ {
		hist[rs.Len(ReadID(i))]++
	}
	return hist
}

// noErrorProb returns (1-errorRate)^k, called probabilityNoError in the
// original source.
func noErrorProb(errorRate float64, k int) float64 {
	return math.Pow(1-errorRate, float64(k))
}

// expectedCoverage implements expectedValueTheoretical: for each suffix
// length L the expected number of reads' suffixes of that length overlapping
// a given genome position, plus the expected count of reads containing at
// least one error.
func expectedCoverage(hist []int, genomeLength, errorRate float64) (expected []float64, expectedErrorReads float64) {
	expected = make([]float64, len(hist))
	if genomeLength <= 0 {
		return expected, 0
	}
	for readLen, numReads := range hist {
		if numReads == 0 {
			continue
		}
		if errorRate != 0 {
			expectedErrorReads += float64(numReads) * (1 - noErrorProb(errorRate, readLen))
		}
		for suffixLen := 0; suffixLen <= readLen; suffixLen++ {
			a := float64(readLen-suffixLen + 1)
			expected[suffixLen] += a * float64(numReads) / genomeLength
		}
	}
	return expected, expectedErrorReads
}

// poissonMixtureError returns the two-component "two-error mixture" used
// throughout fiona.cpp's cutoff selection (dpoismixerror/ppoismixerror): a
// component for reads carrying exactly one error in the k-prefix and a
// component for reads carrying two or more, weighted by their relative
// prior probabilities.
type poissonMixtureError struct {
	w1, w2         float64
	lambda1, lambda2 float64
}

func newPoissonMixtureError(lambda, errorRate float64, prefixLen int) poissonMixtureError {
	noErrLM2 := math.Pow(1-errorRate, float64(prefixLen)-2.0)
	noErrLM1 := noErrLM2 * (1 - errorRate)
	lambda1 := lambda * noErrLM1 * (errorRate / 3)
	lambda2 := lambda * noErrLM2 * (errorRate / 3) * (errorRate / 3)
	w1 := float64(prefixLen) * noErrLM1 * errorRate
	w2 := float64(prefixLen) * float64(prefixLen-1) / 2 * noErrLM2 * errorRate * errorRate
	sc := w1 + w2
	if sc <= 0 {
		return poissonMixtureError{w1: 0.5, w2: 0.5, lambda1: lambda1, lambda2: lambda2}
	}
	return poissonMixtureError{w1: w1 / sc, w2: w2 / sc, lambda1: lambda1, lambda2: lambda2}
}

// cdf returns P(X <= k) under the mixture.
func (m poissonMixtureError) cdf(k int) float64 {
	p1 := distuv.Poisson{Lambda: m.lambda1}
	p2 := distuv.Poisson{Lambda: m.lambda2}
	return m.w1*poissonCDFInt(p1, k) + m.w2*poissonCDFInt(p2, k)
}

// prob returns P(X = k) under the mixture.
func (m poissonMixtureError) prob(k int) float64 {
	p1 := distuv.Poisson{Lambda: m.lambda1}
	p2 := distuv.Poisson{Lambda: m.lambda2}
	return m.w1*p1.Prob(float64(k)) + m.w2*p2.Prob(float64(k))
}

// poissonCDFInt returns P(X <= k) for a Poisson distribution, robust to
// lambda == 0 (gonum's CDF is well defined there: all mass at 0).
func poissonCDFInt(p distuv.Poisson, k int) float64 {
	if k < 0 {
		return 0
	}
	return p.CDF(float64(k))
}

// errorCutoffControlFP implements FionaPoisson: the smallest c such that
// P(X <= c) > strictness under Poisson(expected[k]).
func errorCutoffControlFP(expectedK, strictness float64) int {
	p := distuv.Poisson{Lambda: expectedK}
	for c := 0; c < 1<<24; c++ {
		if poissonCDFInt(p, c) > strictness {
			return c
		}
	}
	return 0
}

// errorCutoffControlFN implements FionaPoissonSens: 1 + the smallest c such
// that the two-error mixture's CDF exceeds 1-strictness.
func errorCutoffControlFN(expectedK, strictness, errorRate float64, prefixLen int) int {
	m := newPoissonMixtureError(expectedK, errorRate, prefixLen)
	target := 1 - strictness
	for c := 0; c < 1<<24; c++ {
		if m.cdf(c) > target {
			return 1 + c
		}
	}
	return 1
}

// poisClassifCutoff implements PoisClassifCutoff: the smallest k at which
// the log-odds of error vs. correct becomes non-positive, never above the
// expected correct count (kquart).
func poisClassifCutoff(prior, lambda, errorRate float64, prefixLen int) int {
	noErr := noErrorProb(errorRate, prefixLen)
	if noErr <= 0 {
		return 0
	}
	mix := newPoissonMixtureError(lambda, errorRate, prefixLen)
	correct := distuv.Poisson{Lambda: lambda * noErr}
	effectivePrior := prior
	if prior == 0 {
		effectivePrior = (1 - noErr) / noErr
	} else {
		effectivePrior = prior * (1 - noErr) / noErr
	}
	kQuart := int(math.Round(lambda * noErr))

	k := 0
	for {
		pNoErr := correct.Prob(float64(k))
		pErr := mix.prob(k)
		logOdds := math.Inf(1)
		if pNoErr > 0 && pErr > 0 {
			logOdds = math.Log(pErr / pNoErr * effectivePrior)
		} else if pErr == 0 {
			logOdds = math.Inf(-1)
		}
		if k != 0 && !(k < kQuart && logOdds > 0) {
			return k
		}
		k++
		if k > 1<<24 {
			return k
		}
	}
}

// buildErrorCutoffs implements C2's error-cutoff selection for every depth
// in [kmin, kmax+1], dispatching on Opts.Method (§4.2).
func buildErrorCutoffs(opts Opts, expected []float64, oddsErrorReads float64, kmin, kmax int) []int {
	cutoffs := make([]int, kmax+2)
	for k := kmin; k <= kmax+1; k++ {
		if k >= len(expected) {
			cutoffs[k] = 0
			continue
		}
		ek := expected[k]
		switch opts.Method {
		case MethodControlFP:
			cutoffs[k] = errorCutoffControlFP(ek, opts.Strictness)
		case MethodControlFN:
			cutoffs[k] = errorCutoffControlFN(ek, opts.Strictness, opts.ErrorRate, k)
		case MethodExpected:
			cutoffs[k] = int(ek)
		case MethodCount:
			cutoffs[k] = int(opts.Strictness)
		default: // MethodClassifier
			cutoffs[k] = poisClassifCutoff(oddsErrorReads, ek, opts.ErrorRate, k)
		}
	}
	return cutoffs
}

// oddsRepeatCutoff implements OddsRepeatCutoff: the smallest observed count
// c at which P(more than one genome copy)/P(exactly one copy) >= odds, using
// a 10-component Poisson-mixture genome model (§4.2).
func oddsRepeatCutoff(odds, lambda, errorRate float64, prefixLen int, genomeLength float64) int {
	const nrMax = 10
	pWord := 1.0 / math.Pow(4, float64(prefixLen))
	pNoErr := noErrorProb(errorRate, prefixLen)
	prepeat := make([]float64, nrMax+1)
	for i := 0; i <= nrMax; i++ {
		prepeat[i] = distuv.Poisson{Lambda: pWord * genomeLength}.Prob(float64(i))
	}
	post1occ := func(c int) float64 {
		posteriors := make([]float64, nrMax+1)
		sum := 0.0
		for nr := 1; nr <= nrMax; nr++ {
			mix := newPoissonMixtureError(lambda*float64(nr), errorRate, prefixLen)
			correct := distuv.Poisson{Lambda: lambda * float64(nr) * pNoErr}
			posteriors[nr] = (pNoErr*poissonCDFInt(correct, c) + (1-pNoErr)*mix.cdf(c)) * prepeat[nr]
			sum += posteriors[nr]
		}
		if sum == 0 || posteriors[1] == 0 {
			return math.Inf(1)
		}
		for nr := 1; nr <= nrMax; nr++ {
			posteriors[nr] /= sum
		}
		return (1 - posteriors[1]) / posteriors[1]
	}
	c := 0
	if odds >= 1 {
		c = int(lambda * pNoErr)
	}
	cmax := int(100 * lambda * pNoErr)
	if cmax <= c {
		cmax = c + 1
	}
	for c < cmax {
		if post1occ(c) >= odds {
			return c
		}
		c++
	}
	return 0
}

func buildRepeatCutoffs(expected []float64, errorRate, genomeLength, givenOdds float64, kmin, kmax int) []int {
	cutoffs := make([]int, kmax+2)
	for i := range cutoffs {
		cutoffs[i] = math.MaxInt32
	}
	if genomeLength <= 0 {
		return cutoffs
	}
	for k := kmin; k <= kmax+1; k++ {
		if k >= len(expected) {
			continue
		}
		cutoffs[k] = oddsRepeatCutoff(givenOdds, expected[k], errorRate, k, genomeLength)
	}
	return cutoffs
}

// overlapCombinatorics precomputes, for each non-seed overlap length n, the
// expected overlap-score contribution for a correct pairing and for a
// random (false-positive) pairing, implementing
// precomputeOverlapCombinatorics.
func overlapCombinatorics(maxNonSeedOverlap, k int, errorRate, overlapErrorRate float64) (correct, random []float64) {
	correct = make([]float64, maxNonSeedOverlap+1)
	random = make([]float64, maxNonSeedOverlap+1)
	for n := 0; n <= maxNonSeedOverlap; n++ {
		zErr := distuv.Binomial{N: float64(n), P: errorRate}
		zOther := distuv.Binomial{N: float64(n), P: (1 + errorRate) / 4}
		maxErrors := int(overlapErrorRate * float64(n+k+1))
		var t1, t2 float64
		for e := 0; e < maxErrors; e++ {
			t1 += float64(k+1+n-e) * zErr.Prob(float64(e))
			t2 += float64(k+1+e) * zOther.Prob(float64(e))
		}
		correct[n] = t1
		random[n] = t2
	}
	return correct, random
}

// overlapSumCutoff implements OddsOverlapSumCutoff for a single (read
// length, error position) pair.
func overlapSumCutoff(errPos, seedLen int, lambda float64, errorLen int, errorRate, wovsum float64, correctTab, randomTab []float64, hist []int) int {
	pNoErr := noErrorProb(errorRate, seedLen+1)
	pOtherPos := noErrorProb(errorRate, seedLen) * 0.75
	pWord := 1.0 / math.Pow(4, float64(seedLen))

	var totalCorrect, totalRandom float64
	for correctLen := 1; correctLen < len(hist); correctLen++ {
		numReads := hist[correctLen]
		if numReads == 0 {
			continue
		}
		var localCorrect, localRandom float64
		stepSize := 1 + correctLen/150

		if errPos >= seedLen {
			for j := 0; j < correctLen-seedLen; j += stepSize {
				nonSeed := minInt(errPos-seedLen, j) + minInt(errorLen-(errPos+1), correctLen-(j+seedLen+1))
				if nonSeed < 0 || nonSeed >= len(correctTab) {
					continue
				}
				localCorrect += float64(stepSize) * correctTab[nonSeed]
				localRandom += float64(stepSize) * randomTab[nonSeed]
			}
		}
		if errPos < errorLen-seedLen {
			for j := 0; j < correctLen-seedLen; j += stepSize {
				nonSeed := minInt(errPos, j) + minInt(errorLen-(errPos+seedLen+1), correctLen-(j+seedLen+1))
				if nonSeed < 0 || nonSeed >= len(correctTab) {
					continue
				}
				localCorrect += float64(stepSize) * correctTab[nonSeed]
				localRandom += float64(stepSize) * randomTab[nonSeed]
			}
		}
		totalCorrect += localCorrect * float64(numReads)
		totalRandom += localRandom * float64(numReads)
	}
	totalCorrect *= lambda * pNoErr
	totalRandom *= lambda * pOtherPos * pWord

	cutoff := int((1-wovsum)*totalCorrect + wovsum*totalRandom)
	return maxInt(cutoff, 5)
}

// OverlapSumCutoff returns the minimum combined overlap required to accept
// a correction at (readLen, errorPos), per spec §4.2/§3. It only looks up the
// per-length rows BuildStatsModel precomputed; an unknown length or
// out-of-range position yields 5.
func (m *StatsModel) OverlapSumCutoff(readLen, errorPos int) float64 {
	row, ok := m.overlapSum[readLen]
	if !ok || errorPos < 0 || errorPos >= len(row) {
		return 5
	}
	return row[errorPos]
}

// BuildStatsModel implements all of C2: expected coverage, error/repeat
// cutoffs, and the overlap-sum cutoff table.
func BuildStatsModel(rs *ReadStore, opts Opts, kmin, kmax int) *StatsModel {
	hist := readLengthHistogram(rs)
	expected, expectedErrReads := expectedCoverage(hist, opts.GenomeLength, opts.ErrorRate)

	oddsErrorReads := 0.0
	correctReads := float64(rs.NumOriginal()) - expectedErrReads
	if correctReads > 0 {
		oddsErrorReads = expectedErrReads / correctReads
	}

	// Degenerate statistics fallback (spec §7): expected[k] == 0 for all k
	// in range means genomeLength was unset or the sample is tiny; fall
	// back to method=count with the caller's strictness as a literal
	// threshold so traversal still has a usable (if permissive) cutoff.
	allZero := true
	for k := kmin; k <= kmax+1 && k < len(expected); k++ {
		if expected[k] > 0 {
			allZero = false
			break
		}
	}
	effectiveOpts := opts
	if allZero {
		effectiveOpts.Method = MethodCount
		if effectiveOpts.Strictness <= 0 {
			effectiveOpts.Strictness = 3
		}
	}

	errCutoffs := buildErrorCutoffs(effectiveOpts, expected, oddsErrorReads, kmin, kmax)
	repCutoffs := buildRepeatCutoffs(expected, opts.ErrorRate, opts.GenomeLength, opts.GivenOdds, kmin, kmax)

	m := &StatsModel{
		Kmin:               kmin,
		Kmax:               kmax,
		Expected:           expected,
		ErrorCutoffs:        errCutoffs,
		RepeatCutoffs:       repCutoffs,
		overlapSum:         map[int][]float64{},
		ExpectedErrorReads: expectedErrReads,
		OddsErrorReads:     oddsErrorReads,
	}

	// Overlap-sum cutoff table: computed per observed read length, for the
	// first half of positions then mirrored, per spec §4.2.
	if opts.GenomeLength > 0 {
		maxLen := len(hist) - 1
		correctTab, randomTab := overlapCombinatorics(maxLen, QGramLength, opts.ErrorRate, opts.overlapErrorRate())
		for readLen, numReads := range hist {
			if numReads == 0 || readLen == 0 {
				continue
			}
			row := make([]float64, readLen)
			half := (readLen + 1) / 2
			for pos := 0; pos < half; pos++ {
				row[pos] = float64(overlapSumCutoff(pos, QGramLength, expected[minInt(QGramLength, len(expected)-1)], readLen, opts.ErrorRate, opts.Wovsum, correctTab, randomTab, hist))
			}
			for pos := half; pos < readLen; pos++ {
				row[pos] = row[readLen-1-pos]
			}
			m.overlapSum[readLen] = row
		}
	}
	return m
}
