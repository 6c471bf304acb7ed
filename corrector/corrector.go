// Package corrector implements a parallel, suffix-tree-guided, indel-aware
// read error corrector: C1-C9 of the design, wired together round by round.
package corrector

import (
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// Result is the outcome of a full Correct run.
type Result struct {
	Names     []string
	Sequences [][]byte
	Quality   [][]byte
	Rounds    []RoundReport
}

// Correct runs the full round loop (C1 -> C2 -> C3 -> (C4 || C5 || C6) -> C7
// -> C8) over the given reads, per spec §3's data flow and §4.8's
// termination rule.
func Correct(names, seqs, quality []string, opts Opts) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, errors.Wrap(err, "corrector: invalid configuration")
	}
	if len(seqs) == 0 {
		log.Printf("corrector: nothing to do, zero reads")
		return Result{Names: names}, nil
	}

	rs := NewReadStore(names, seqs, quality, opts)
	controller := NewRoundController(opts)

	var reports []RoundReport
	for round := 1; ; round++ {
		if opts.TraceReadID >= 0 {
			log.Printf("corrector: round %d: begin, trace read %d budget=%d",
				round, opts.TraceReadID, rs.AllowedCorrections(ReadID(opts.TraceReadID)))
		}

		kmin, kmax := ResolveLevels(rs, opts)
		model := BuildStatsModel(rs, opts, kmin, kmax)
		idx := BuildQGramIndex(rs, opts)

		list := NewCorrectionList(rs.NumOriginal())
		workerStats := RunRound(idx, rs, opts, model, round, list)
		idx.Release()

		accepted := 0
		for i := 0; i < rs.NumOriginal(); i++ {
			res := Apply(rs, opts, model, list, ReadID(i), round)
			accepted += res.Accepted
		}

		corrFound := list.Len()
		adjR2, stop := controller.Observe(round, corrFound)
		report := RoundReport{Round: round, CorrectionsFound: corrFound, Accepted: accepted, AdjR2: adjR2, Stopped: stop}
		reports = append(reports, report)

		log.Printf("corrector: round %d: found=%d accepted=%d adjR2=%.4f nodesVisited=%d",
			round, corrFound, accepted, adjR2, workerStats.NodesVisited)

		if corrFound == 0 {
			// No-op stability (spec §8.3): nothing changed, further rounds
			// can only repeat this outcome.
			break
		}
		if stop {
			break
		}
		rs.RebuildReverseComplements()
	}

	result := Result{Rounds: reports}
	for i := 0; i < rs.NumOriginal(); i++ {
		name, seq := rs.FinalSequence(i, opts.TrimNsOnOutput)
		result.Names = append(result.Names, name)
		result.Sequences = append(result.Sequences, seq)
		if q := rs.Quality(i); q != nil {
			result.Quality = append(result.Quality, q)
		}
	}
	return result, nil
}
