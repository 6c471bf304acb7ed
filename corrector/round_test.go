package corrector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundControllerFixedCycles(t *testing.T) {
	opts := DefaultOpts
	opts.Cycles = 3
	c := NewRoundController(opts)

	for r := 0; r < 3; r++ {
		_, stop := c.Observe(r, 10)
		assert.False(t, stop, "round %d should not stop before reaching Cycles", r)
	}
	_, stop := c.Observe(3, 10)
	assert.True(t, stop)
}

func TestRoundControllerHardCapAtMaxRounds(t *testing.T) {
	opts := DefaultOpts
	c := NewRoundController(opts)
	var stop bool
	for r := 0; r <= MaxRounds; r++ {
		_, stop = c.Observe(r, 1000-r*10)
	}
	assert.True(t, stop, "controller must stop at MaxRounds regardless of fit quality")
}

func TestRoundControllerNeedsTwoPointsBeforeFitting(t *testing.T) {
	opts := DefaultOpts
	c := NewRoundController(opts)
	adjR2, stop := c.Observe(0, 100)
	assert.Equal(t, 0.0, adjR2)
	assert.False(t, stop)
}

func TestRoundControllerEarlyStopsOnPoorFit(t *testing.T) {
	opts := DefaultOpts
	opts.EarlyStop = true
	c := NewRoundController(opts)
	// A noisy, non-declining series fits a line poorly, so adjR2 should drop
	// at or below the 0.95 threshold quickly.
	counts := []int{5, 50, 2, 80, 1}
	var stop bool
	for r, n := range counts {
		_, stop = c.Observe(r, n)
		if stop {
			break
		}
	}
	assert.True(t, stop)
}

func TestAdjustedRSquaredPerfectFitIsOne(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{1, 3, 5, 7} // y = 1 + 2x exactly
	assert.InDelta(t, 1.0, adjustedRSquared(x, y), 1e-9)
}

func TestAdjustedRSquaredTooFewPointsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, adjustedRSquared([]float64{0, 1}, []float64{1, 2}))
}

func TestAdjustedRSquaredConstantYIsOne(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{5, 5, 5, 5}
	assert.Equal(t, 1.0, adjustedRSquared(x, y))
}

func TestRoundControllerBestFitModeStopsAfterRoundThreeOnDecline(t *testing.T) {
	opts := DefaultOpts
	opts.EarlyStop = false
	opts.Cycles = 0
	c := NewRoundController(opts)
	counts := []int{1000, 500, 250, 125, 62, 500} // last point breaks the clean decay, worsening the fit
	var stop bool
	for r, n := range counts {
		_, stop = c.Observe(r, n)
		if stop {
			break
		}
	}
	assert.True(t, stop)
}
