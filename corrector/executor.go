package corrector

import "sync"

// WorkerStats is the per-worker counter set C9 collects and reduces at
// join, mirroring fusion.Stats' Merge pattern.
type WorkerStats struct {
	NodesVisited     uint64
	NodesEmitted     uint64
	CorrectionsTried uint64
	CorrectionsFound uint64
}

// Merge folds o into s and returns the result, for the join-time reduction.
func (s WorkerStats) Merge(o WorkerStats) WorkerStats {
	return WorkerStats{
		NodesVisited:     s.NodesVisited + o.NodesVisited,
		NodesEmitted:     s.NodesEmitted + o.NodesEmitted,
		CorrectionsTried: s.CorrectionsTried + o.CorrectionsTried,
		CorrectionsFound: s.CorrectionsFound + o.CorrectionsFound,
	}
}

// bucketJob is one unit of work-stealing work: a contiguous bucket-index
// range produced by QGramIndex.WorkPackages.
type bucketJob struct {
	lo, hi int
}

// RunRound implements C9: it partitions idx into work packages sized per
// spec §4.3, sorts them largest-first (the stable scheduling policy of spec
// §4.9), and drains them across opts.NumThreads workers via a shared
// channel (dynamic scheduling, chunk size 1). Each worker owns a
// thread-local extension buffer implicitly (ScoreNode allocates no shared
// state) and its own WorkerStats, merged into the returned total at join.
// list is the single structure shared across workers, per §5.
func RunRound(idx *QGramIndex, rs *ReadStore, opts Opts, model *StatsModel, round int, list *CorrectionList) WorkerStats {
	packages := idx.WorkPackages(opts.PackagesPerThread, opts.NumThreads)
	jobs := make([]bucketJob, len(packages))
	for i, p := range packages {
		jobs[i] = bucketJob{lo: p[0], hi: p[1]}
	}
	sortJobsLargestFirst(idx, jobs)

	jobCh := make(chan bucketJob, len(jobs))
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	numWorkers := maxInt(1, opts.NumThreads)
	var wg sync.WaitGroup
	totals := make([]WorkerStats, numWorkers)
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var stats WorkerStats
			for job := range jobCh {
				WalkBuckets(idx, job.lo, job.hi, rs, opts, model, round, func(node WalkNode) {
					stats.NodesVisited++
					stats.NodesEmitted++
					before := list.TotalAdds()
					ScoreNode(rs, opts, model, node, round, list)
					stats.CorrectionsTried++
					stats.CorrectionsFound += list.TotalAdds() - before
				})
			}
			totals[w] = stats
		}(w)
	}
	wg.Wait()

	var merged WorkerStats
	for _, t := range totals {
		merged = merged.Merge(t)
	}
	return merged
}

func sortJobsLargestFirst(idx *QGramIndex, jobs []bucketJob) {
	size := func(j bucketJob) int {
		n := 0
		for bi := j.lo; bi < j.hi; bi++ {
			if idx.Buckets[bi].Disabled {
				continue
			}
			n += idx.Buckets[bi].Count
		}
		return n
	}
	// Simple insertion sort: job counts are typically small (tens to a few
	// hundred packages), and this keeps the scheduling step allocation-free.
	for i := 1; i < len(jobs); i++ {
		for j := i; j > 0 && size(jobs[j]) > size(jobs[j-1]); j-- {
			jobs[j], jobs[j-1] = jobs[j-1], jobs[j]
		}
	}
}
