package corrector

import (
	"unsafe"

	"github.com/grailbio/base/log"
	"golang.org/x/sys/unix"
)

// hugePageRefsThreshold is the suffix-array size above which
// allocRefs switches from a plain make([]SuffixRef, n) to an anonymous
// mmap backed by transparent huge pages, mirroring fusion/kmer_index.go's
// initShard. Below the threshold the extra mmap/madvise syscalls aren't
// worth it; small inputs and every test stay on the plain-slice path.
const hugePageRefsThreshold = 8 << 20 // 8M suffix entries

const hugePageSize = 2 << 20 // Linux transparent hugetlb size.

var suffixRefSize = unsafe.Sizeof(SuffixRef{})

// allocRefs returns a []SuffixRef of length n, huge-page-backed when n is
// large enough to make the TLB-miss savings worth the syscalls, and a
// release func to call once idx.Refs is no longer needed (a no-op for the
// plain-slice path). release must be called at most once.
func allocRefs(n int) (refs []SuffixRef, release func()) {
	if n < hugePageRefsThreshold {
		return make([]SuffixRef, n), func() {}
	}

	size := uintptr(n)*suffixRefSize + hugePageSize
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		log.Printf("corrector: mmap %d bytes for q-gram refs failed (%v), falling back to heap", size, err)
		return make([]SuffixRef, n), func() {}
	}
	if err := unix.Madvise(data, unix.MADV_HUGEPAGE); err != nil {
		log.Printf("corrector: madvise(MADV_HUGEPAGE) failed: %v", err)
	}

	// Round up to a hugePageSize boundary, as initShard does; at worst this
	// wastes less than one huge page.
	start := ((uintptr(unsafe.Pointer(&data[0]))-1)/hugePageSize + 1) * hugePageSize
	refs = unsafe.Slice((*SuffixRef)(unsafe.Pointer(start)), n)
	return refs, func() {
		if err := unix.Munmap(data); err != nil {
			log.Printf("corrector: munmap q-gram refs failed: %v", err)
		}
	}
}
