package corrector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrectRejectsInvalidOpts(t *testing.T) {
	opts := DefaultOpts
	opts.NumThreads = 0
	_, err := Correct([]string{"r1"}, []string{"ACGT"}, nil, opts)
	assert.Error(t, err)
}

func TestCorrectZeroReadsIsNoop(t *testing.T) {
	res, err := Correct(nil, nil, nil, DefaultOpts)
	require.NoError(t, err)
	assert.Empty(t, res.Sequences)
	assert.Empty(t, res.Rounds)
}

func TestCorrectPreservesReadCountAndOrder(t *testing.T) {
	names := []string{"r1", "r2", "r3"}
	seqs := []string{"ACGTACGTACGT", "ACGTACGTACGG", "ACGTACGTACGT"}
	opts := DefaultOpts
	opts.TrimNsOnOutput = false
	res, err := Correct(names, seqs, nil, opts)
	require.NoError(t, err)
	require.Len(t, res.Sequences, 3)
	require.Len(t, res.Names, 3)
	for i, n := range names {
		assert.Contains(t, res.Names[i], n, "output order and base name must track input order")
	}
}

func TestCorrectNoOpStabilityOnUniformReads(t *testing.T) {
	// Every read is identical: there is no branching alternative to correct
	// toward, so the very first round must find zero corrections and the
	// loop must stop immediately.
	seqs := make([]string, 6)
	for i := range seqs {
		seqs[i] = "ACGTACGTACGTACGTACGT"
	}
	res, err := Correct(nil, seqs, nil, DefaultOpts)
	require.NoError(t, err)
	require.Len(t, res.Rounds, 1)
	assert.Equal(t, 0, res.Rounds[0].CorrectionsFound)
	assert.Equal(t, 0, res.Rounds[0].Accepted)
}

func TestCorrectStopsWithinMaxRounds(t *testing.T) {
	seqs := []string{
		"ACGTACGTACGTACGTAAAA",
		"ACGTACGTACGTACGTACGT",
		"ACGTACGTACGTACGTACGT",
		"ACGTACGTACGTACGTACGT",
	}
	res, err := Correct(nil, seqs, nil, DefaultOpts)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Rounds), MaxRounds)
	assert.True(t, res.Rounds[len(res.Rounds)-1].Stopped || res.Rounds[len(res.Rounds)-1].CorrectionsFound == 0)
}

func TestCorrectFixedCyclesRunsAtMostThatManyRounds(t *testing.T) {
	seqs := []string{
		"ACGTACGTACGTACGTAAAA",
		"ACGTACGTACGTACGTACGT",
		"ACGTACGTACGTACGTACGT",
		"ACGTACGTACGTACGTACGT",
	}
	opts := DefaultOpts
	opts.Cycles = 2
	res, err := Correct(nil, seqs, nil, opts)
	require.NoError(t, err)
	// Cycles caps the round loop, but the no-op-stability early exit can
	// still fire first if corrections dry up before round 2.
	assert.LessOrEqual(t, len(res.Rounds), 2)
}

func TestCorrectQualityPreservedWhenProvided(t *testing.T) {
	names := []string{"r1", "r2"}
	seqs := []string{"ACGTACGT", "ACGTACGT"}
	quality := []string{"IIIIIIII", "JJJJJJJJ"}
	opts := DefaultOpts
	opts.TrimNsOnOutput = false
	res, err := Correct(names, seqs, quality, opts)
	require.NoError(t, err)
	require.Len(t, res.Quality, 2)
	assert.Equal(t, []byte("IIIIIIII"), res.Quality[0])
	assert.Equal(t, []byte("JJJJJJJJ"), res.Quality[1])
}

func TestCorrectBudgetNeverUnderflows(t *testing.T) {
	seqs := []string{
		"ACGTACGTACGTACGTAAAA",
		"ACGTACGTACGTACGTACGT",
		"ACGTACGTACGTACGTACGT",
		"ACGTACGTACGTACGTACGT",
		"ACGTACGTACGTACGTACGT",
	}
	opts := DefaultOpts
	opts.LimitCorrPerRound = true
	res, err := Correct(nil, seqs, nil, opts)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Sequences)
}

func TestCorrectSingleVsMultiThreadSameSequenceResult(t *testing.T) {
	seqs := []string{
		"ACGTACGTACGTACGTAAAA",
		"ACGTACGTACGTACGTACGT",
		"ACGTACGTACGTACGTACGT",
		"ACGTACGTACGTACGTACGT",
		"ACGTACGTACGTACGTACGT",
	}
	run := func(numThreads int) []string {
		opts := DefaultOpts
		opts.NumThreads = numThreads
		res, err := Correct(nil, append([]string(nil), seqs...), nil, opts)
		require.NoError(t, err)
		out := make([]string, len(res.Sequences))
		for i, s := range res.Sequences {
			out[i] = string(s)
		}
		return out
	}
	assert.Equal(t, run(1), run(4))
}

func TestCorrectTrimsLeadingAndTrailingNRuns(t *testing.T) {
	names := []string{"r1"}
	seqs := []string{"NNACGTNN"}
	opts := DefaultOpts
	opts.TrimNsOnOutput = true
	res, err := Correct(names, seqs, nil, opts)
	require.NoError(t, err)
	require.Len(t, res.Sequences, 1)
	assert.Equal(t, []byte("ACGT"), res.Sequences[0])
}

// TestGoldenScenarios keys each case to the golden small-input scenario it
// covers, so the correspondence between a case and its motivating behavior
// stays explicit instead of being re-derived from the assertions.
func TestGoldenScenarios(t *testing.T) {
	t.Run("S1_substitution_above_cutoff_is_applied", func(t *testing.T) {
		// One read carries a single substitution relative to the family
		// consensus; an overlap sum comfortably above the cutoff restores it.
		rs := newTestStore(t, []string{"ACGTACGTAC"})
		list := NewCorrectionList(rs.NumOriginal())
		list.Add(0, 5, false, 0, []byte("T"), 10, ReadID(1)) // pos5 'C'->'T', op G->T style substitution
		res := Apply(rs, DefaultOpts, blankModel(), list, 0, 1)
		assert.Equal(t, 1, res.Accepted)
		assert.Equal(t, []byte("ACGTATGTAC"), rs.Bases(0))
	})

	t.Run("S2_unrelated_populations_find_nothing", func(t *testing.T) {
		// Two populations built from distinct period-4 repeats share no
		// 10-mer q-gram (QGramLength=10), so round 1 must find nothing and
		// the adjR^2 controller must stop immediately rather than iterate.
		var seqs []string
		for i := 0; i < 8; i++ {
			seqs = append(seqs, "ACGTACGTACGTACGTACGT")
		}
		for i := 0; i < 8; i++ {
			seqs = append(seqs, "TGCATGCATGCATGCATGCA")
		}
		res, err := Correct(nil, seqs, nil, DefaultOpts)
		require.NoError(t, err)
		require.NotEmpty(t, res.Rounds)
		assert.Equal(t, 0, res.Rounds[0].CorrectionsFound)
		assert.Len(t, res.Rounds, 1, "no corrections found must stop the round loop immediately")
	})

	t.Run("S3_inserted_base_removed_with_downstream_shift", func(t *testing.T) {
		// A spurious inserted base is removed (indel>0 in this package's
		// shrink-the-sequence sense); any later correction on the same read
		// must land on the post-shrink index, not its original one.
		rs := newTestStore(t, []string{"ACGTACGTAC"})
		opts := DefaultOpts
		opts.AppendCorrectionInfo = true
		list := NewCorrectionList(rs.NumOriginal())
		list.Add(0, 2, false, 1, nil, 10, ReadID(1))          // remove the inserted base at pos 2 ('G')
		list.Add(0, 7, false, 0, []byte("A"), 10, ReadID(2)) // downstream substitution, pre-shift position 7
		res := Apply(rs, opts, blankModel(), list, 0, 1)
		assert.Equal(t, 2, res.Accepted)
		// Applied position-descending: pos7 'T'->'A' first (seq[7] becomes
		// 'A'), then the pos2 deletion removes 'G', shrinking everything
		// from index2 onward by one: "ACTACGAAC".
		assert.Equal(t, []byte("ACTACGAAC"), rs.Bases(0))
		require.Len(t, res.Tags, 2)
		assert.Contains(t, res.Tags[1], "-G", "the removed-base tag records the deleted letter, not a replacement")
	})

	t.Run("S4_deleted_base_restored_grows_sequence", func(t *testing.T) {
		// A base missing from the read (relative to the consensus) is
		// restored by insertion (indel<0 in this package's grow sense).
		rs := newTestStore(t, []string{"ACGTACGT"})
		opts := DefaultOpts
		opts.AppendCorrectionInfo = true
		list := NewCorrectionList(rs.NumOriginal())
		list.Add(0, 4, false, -1, []byte("X"), 10, ReadID(1))
		res := Apply(rs, opts, blankModel(), list, 0, 1)
		assert.Equal(t, 1, res.Accepted)
		assert.Equal(t, []byte("ACGTXACGT"), rs.Bases(0))
		require.Len(t, res.Tags, 1)
		assert.Contains(t, res.Tags[0], "+X", "the restored-base tag records the inserted letter")
	})

	t.Run("S5_all_N_read_passes_through_unchanged", func(t *testing.T) {
		// A read with no called bases anywhere carries no information to
		// correct against; Correct must leave it byte-for-byte untouched.
		names := []string{"r1", "r2", "r3"}
		seqs := []string{"NNNNNNNNNN", "NNNNNNNNNN", "NNNNNNNNNN"}
		opts := DefaultOpts
		opts.MatchN = true
		opts.TrimNsOnOutput = false
		res, err := Correct(names, seqs, nil, opts)
		require.NoError(t, err)
		require.Len(t, res.Sequences, 3)
		for i, seq := range seqs {
			assert.Equal(t, []byte(seq), res.Sequences[i], "an all-N read has no q-gram buckets at all and must be left unchanged")
		}
	})

	t.Run("S6_N_base_corrected_below_general_cutoff", func(t *testing.T) {
		// A single N in an otherwise well-supported family is substituted
		// from consensus even when its overlap sum would fail the general
		// statistical cutoff, per the N-base bypass.
		rs := newTestStore(t, []string{"ACNTACGTAC"})
		list := NewCorrectionList(rs.NumOriginal())
		list.Add(0, 2, false, 0, []byte("G"), 1, ReadID(1)) // overlap 1, far below blankModel's cutoff of 5
		res := Apply(rs, DefaultOpts, blankModel(), list, 0, 1)
		assert.Equal(t, 1, res.Accepted)
		assert.Equal(t, []byte("ACGTACGTAC"), rs.Bases(0))
	})
}
