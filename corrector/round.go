package corrector

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RoundReport summarizes one round of correction, for logging and for the
// caller's end-of-run report.
type RoundReport struct {
	Round            int
	CorrectionsFound int
	Accepted         int
	AdjR2            float64
	Stopped          bool
}

// RoundController implements C8: it tracks ln(corrections+1) against the
// round index and decides when to stop.
type RoundController struct {
	opts       Opts
	logCorr    []float64
	roundIndex []float64
	bestAdjR2  float64
	haveBest   bool
}

// NewRoundController builds a controller for the given Opts.
func NewRoundController(opts Opts) *RoundController {
	return &RoundController{opts: opts}
}

// Observe records round r's correction count and returns whether the round
// loop should stop after this round, per spec §4.8.
func (c *RoundController) Observe(round, correctionsFound int) (adjR2 float64, stop bool) {
	c.logCorr = append(c.logCorr, math.Log(float64(correctionsFound)+1))
	c.roundIndex = append(c.roundIndex, float64(round))

	if c.opts.Cycles > 0 {
		return 0, round >= c.opts.Cycles
	}
	if round >= MaxRounds {
		return 0, true
	}
	if len(c.logCorr) < 2 {
		return 0, false
	}

	adjR2 = adjustedRSquared(c.roundIndex, c.logCorr)

	if c.opts.EarlyStop {
		if adjR2 <= 0.95 {
			return adjR2, true
		}
		return adjR2, false
	}

	// Best-fit mode: stop after round 3 once adjR² stops improving.
	stop = false
	if round >= 3 {
		if c.haveBest && adjR2 < c.bestAdjR2 {
			stop = true
		}
	}
	if !c.haveBest || adjR2 > c.bestAdjR2 {
		c.bestAdjR2 = adjR2
		c.haveBest = true
	}
	return adjR2, stop
}

// adjustedRSquared fits y = a + b*x by ordinary least squares and returns
// the one-predictor adjusted R² of spec §4.8.
func adjustedRSquared(x, y []float64) float64 {
	n := len(x)
	if n < 3 {
		return 0
	}
	a, b := stat.LinearRegression(x, y, nil, false)
	mean := stat.Mean(y, nil)

	var ssRes, ssTot float64
	for i := range x {
		yhat := a + b*x[i]
		ssRes += (y[i] - yhat) * (y[i] - yhat)
		ssTot += (y[i] - mean) * (y[i] - mean)
	}
	if ssTot == 0 {
		return 1
	}
	r2 := 1 - ssRes/ssTot
	return 1 - (1-r2)*float64(n-1)/float64(n-2)
}
