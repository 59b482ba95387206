//go:build linux || darwin

// Package chunk implements the native chunked plain-data component table
// from spec §4.2: a type's entire entity range is reserved as virtual
// address space up front and divided into fixed 65,536-byte chunks that
// are committed (physical pages mapped and zeroed) lazily, on first
// write. This mirrors the lazy-commit pattern described in spec §9 using
// the platform's virtual-memory primitives, grounded in the mmap/mprotect
// usage of kluzzebass-gastrolog's chunk/file package and the
// reserve-then-commit seqlock cache in other_examples' slotcache.go —
// both wrap raw mmap for a fixed-stride, page-backed record store the
// same way this table wraps it for a fixed-stride component array.
package chunk

import (
	"sync"

	"golang.org/x/sys/unix"

	"corecs/internal/errs"
)

// ChunkBytes is the fixed chunk size mandated by spec §3/§4.2.
const ChunkBytes = 65536

// region is a single reserved-but-not-necessarily-committed mmap mapping
// backing one plain-data component table.
type region struct {
	mu        sync.Mutex
	data      []byte // full reservation, length = chunkCount*ChunkBytes
	committed []bool // per-chunk commit flag
}

// reserve reserves chunkCount*ChunkBytes of address space with no
// physical backing (PROT_NONE). Returns an error if the platform mmap
// call fails (e.g. address space exhaustion).
func reserve(chunkCount int) (*region, error) {
	size := chunkCount * ChunkBytes
	if size == 0 {
		return &region{}, nil
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errs.New(errs.EntityCapacityExceeded, "failed to reserve chunk address space: "+err.Error())
	}
	return &region{
		data:      data,
		committed: make([]bool, chunkCount),
	}, nil
}

// ensureCommitted commits chunk c if it is not already committed. Commit
// is double-checked under the region lock so concurrent first-touches
// from different goroutines only mprotect once. Newly committed pages
// read as zero, satisfying spec §4.2's "zeroed on first commit".
func (r *region) ensureCommitted(c int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.committed[c] {
		return nil
	}
	off := c * ChunkBytes
	if err := unix.Mprotect(r.data[off:off+ChunkBytes], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return errs.New(errs.EntityCapacityExceeded, "failed to commit chunk: "+err.Error())
	}
	r.committed[c] = true
	return nil
}

// isCommitted reports whether chunk c currently has physical backing.
func (r *region) isCommitted(c int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed[c]
}

// decommit releases chunk c's physical pages back to the OS and marks it
// uncommitted again. Caller must have already verified population == 0.
func (r *region) decommit(c int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.committed[c] {
		return nil
	}
	off := c * ChunkBytes
	buf := r.data[off : off+ChunkBytes]
	if err := unix.Madvise(buf, unix.MADV_DONTNEED); err != nil {
		return errs.New(errs.DecommitRefused, "madvise failed: "+err.Error())
	}
	if err := unix.Mprotect(buf, unix.PROT_NONE); err != nil {
		return errs.New(errs.DecommitRefused, "mprotect failed: "+err.Error())
	}
	r.committed[c] = false
	return nil
}

// bytesOf returns the chunk's backing slice. Valid regardless of commit
// state; reading an uncommitted chunk's bytes is undefined at the OS
// level (PROT_NONE), so callers must check isCommitted first.
func (r *region) bytesOf(c int) []byte {
	off := c * ChunkBytes
	return r.data[off : off+ChunkBytes]
}

// close releases the entire reservation.
func (r *region) close() error {
	if r.data == nil {
		return nil
	}
	return unix.Munmap(r.data)
}
