package corrector

import (
	"runtime"
	"sync/atomic"
)

// TotalAdds returns the number of Add calls observed so far (merges and new
// records alike), for C9's lock-free progress counters.
func (cl *CorrectionList) TotalAdds() uint64 {
	return atomic.LoadUint64(&cl.totalAdds)
}

// rwSpinLock is a reader-preferring-readers, writer-preferring-admission
// spin lock: any number of readers may hold it concurrently, but once a
// writer is waiting no new reader is admitted until that writer has run and
// released it, per spec §5's exclusion discipline for C6. Spinning is
// permitted by that same section; there is no blocking syscall involved.
type rwSpinLock struct {
	readers        int32
	writersWaiting int32
	writerActive   int32
}

func (l *rwSpinLock) RLock() {
	for {
		if atomic.LoadInt32(&l.writersWaiting) == 0 {
			atomic.AddInt32(&l.readers, 1)
			if atomic.LoadInt32(&l.writersWaiting) == 0 {
				return
			}
			atomic.AddInt32(&l.readers, -1)
		}
		runtime.Gosched()
	}
}

func (l *rwSpinLock) RUnlock() {
	atomic.AddInt32(&l.readers, -1)
}

func (l *rwSpinLock) Lock() {
	atomic.AddInt32(&l.writersWaiting, 1)
	for !atomic.CompareAndSwapInt32(&l.writerActive, 0, 1) {
		runtime.Gosched()
	}
	for atomic.LoadInt32(&l.readers) > 0 {
		runtime.Gosched()
	}
}

func (l *rwSpinLock) Unlock() {
	atomic.StoreInt32(&l.writerActive, 0)
	atomic.AddInt32(&l.writersWaiting, -1)
}

// Record is one proposed correction, linked into its read's chain via next
// (sentinel -1 terminates the chain).
type Record struct {
	Pos              int32
	Indel            int8
	Replacement      []byte
	OverlapFwd       uint16
	OverlapRev       uint16
	FoundCorrections uint32
	DonorRead        ReadID // the correctCandidate strand that won this proposal, for the correction-info tag.
	next             int32
}

// CorrectionList is C6: an append-only vector of Records plus a per-forward-
// read head-pointer map, guarded by a single rwSpinLock shared by every
// worker in a round.
type CorrectionList struct {
	lock       rwSpinLock
	records    []Record
	head       []int32 // indexed by forward ReadID; -1 means empty chain.
	totalAdds  uint64  // atomic; incremented once per Add call regardless of merge/insert.
}

// NewCorrectionList allocates an empty list sized for numReads forward
// reads.
func NewCorrectionList(numReads int) *CorrectionList {
	head := make([]int32, numReads)
	for i := range head {
		head[i] = -1
	}
	return &CorrectionList{head: head}
}

// GetFound returns the count of existing proposals at position pos on the
// forward strand of read id, across all indel kinds.
func (cl *CorrectionList) GetFound(id ReadID, pos int) uint32 {
	cl.lock.RLock()
	defer cl.lock.RUnlock()
	var n uint32
	for i := cl.head[id]; i != -1; i = cl.records[i].next {
		if int(cl.records[i].Pos) == pos {
			n += cl.records[i].FoundCorrections
		}
	}
	return n
}

// Add inserts or merges a proposal for the forward read id. strand selects
// which of OverlapFwd/OverlapRev is updated; replacement is copied.
func (cl *CorrectionList) Add(id ReadID, pos int, strand bool, indel int, replacement []byte, overlapSum int, donor ReadID) {
	cl.lock.Lock()
	defer cl.lock.Unlock()
	defer atomic.AddUint64(&cl.totalAdds, 1)

	for i := cl.head[id]; i != -1; i = cl.records[i].next {
		r := &cl.records[i]
		if int(r.Pos) == pos && int(r.Indel) == indel && bytesEqual(r.Replacement, replacement) {
			r.FoundCorrections++
			if strand {
				if v := saturateU16(0, overlapSum); v > r.OverlapRev {
					r.OverlapRev = v
				}
			} else {
				if v := saturateU16(0, overlapSum); v > r.OverlapFwd {
					r.OverlapFwd = v
				}
			}
			return
		}
	}

	rec := Record{
		Pos:              int32(pos),
		Indel:            int8(indel),
		Replacement:      append([]byte(nil), replacement...),
		FoundCorrections: 1,
		DonorRead:        donor,
		next:             cl.head[id],
	}
	if strand {
		rec.OverlapRev = saturateU16(0, overlapSum)
	} else {
		rec.OverlapFwd = saturateU16(0, overlapSum)
	}
	cl.records = append(cl.records, rec)
	cl.head[id] = int32(len(cl.records) - 1)
}

// Records returns a snapshot of every record in read id's chain. Intended
// for use in the apply phase (C7), after all workers have joined and no
// writer can be running; it still takes the read lock for defense in depth.
func (cl *CorrectionList) Records(id ReadID) []Record {
	cl.lock.RLock()
	defer cl.lock.RUnlock()
	var out []Record
	for i := cl.head[id]; i != -1; i = cl.records[i].next {
		out = append(out, cl.records[i])
	}
	return out
}

// Len returns the total number of records across every read's chain, used
// by the round controller (C8) as "corrections_found" for a round.
func (cl *CorrectionList) Len() int {
	cl.lock.RLock()
	defer cl.lock.RUnlock()
	return len(cl.records)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
