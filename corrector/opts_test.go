package corrector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFionaMethodStringRoundTrip(t *testing.T) {
	methods := []FionaMethod{MethodClassifier, MethodControlFP, MethodControlFN, MethodExpected, MethodCount}
	for _, m := range methods {
		assert.Equal(t, m, MethodForName(m.String()))
	}
	assert.Equal(t, "unknown", FionaMethod(99).String())
	assert.Equal(t, MethodClassifier, MethodForName("not-a-method"))
}

func TestOptsValidateDefaults(t *testing.T) {
	require.NoError(t, DefaultOpts.Validate())
}

func TestOptsValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		mod  func(o Opts) Opts
	}{
		{"negative cycles", func(o Opts) Opts { o.Cycles = -1; return o }},
		{"indel too large", func(o Opts) Opts { o.MaxIndelLen = MaxIndelLength + 1; return o }},
		{"negative indel", func(o Opts) Opts { o.MaxIndelLen = -1; return o }},
		{"from > to", func(o Opts) Opts { o.FromLevel, o.ToLevel = 20, 10; return o }},
		{"error rate out of range", func(o Opts) Opts { o.ErrorRate = 1.5; return o }},
		{"relative errors out of range", func(o Opts) Opts { o.RelativeErrorsToCorrect = -0.1; return o }},
		{"zero threads", func(o Opts) Opts { o.NumThreads = 0; return o }},
		{"zero depth sample rate", func(o Opts) Opts { o.DepthSampleRate = 0; return o }},
		{"kmer abundance cutoff out of range", func(o Opts) Opts { o.KmerAbundanceCutoff = 1.1; return o }},
		{"wovsum out of range", func(o Opts) Opts { o.Wovsum = -0.1; return o }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.mod(DefaultOpts).Validate()
			assert.Error(t, err)
		})
	}
}

func TestOverlapErrorRateDefault(t *testing.T) {
	o := DefaultOpts
	o.ErrorRate = 0.02
	o.OverlapErrorRate = 0
	assert.InDelta(t, 0.04, o.overlapErrorRate(), 1e-9)

	o.OverlapErrorRate = 0.5
	assert.InDelta(t, 0.5, o.overlapErrorRate(), 1e-9)
}
