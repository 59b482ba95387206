// Package refstore implements the sparse reference-component table from
// spec §4.3: storage for managed ("reference") component types, growing
// page-by-page rather than reserving the whole entity range the way
// chunk.PlainTable does, since reference types don't benefit from a flat
// byte layout and commonly only a minority of entities carry any given
// one.
package refstore

import "corecs/internal/errs"

// pageSize entries per growable page. Arbitrary relative to chunk.ChunkBytes
// since reference types have no fixed element size to divide it by.
const pageSize = 4096

type slot[T any] struct {
	present bool
	value   T
}

// RefTable is a sparse, page-growable store of reference-typed component
// values, indexed by entity index.
type RefTable[T any] struct {
	pages     []*[pageSize]slot[T]
	maxEntity int
	version   []uint32 // per-page, mirrors chunk.PlainTable's per-chunk version
}

// NewRefTable creates an empty reference table sized for up to maxEntities
// entity indices.
func NewRefTable[T any](maxEntities int) *RefTable[T] {
	pages := (maxEntities + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	return &RefTable[T]{
		pages:     make([]*[pageSize]slot[T], pages),
		maxEntity: maxEntities,
		version:   make([]uint32, pages),
	}
}

func (r *RefTable[T]) locate(index int) (page, offset int, err error) {
	if index < 0 || index >= r.maxEntity {
		return 0, 0, errs.New(errs.IndexOutOfRange, "entity index outside configured capacity")
	}
	return index / pageSize, index % pageSize, nil
}

func (r *RefTable[T]) ensurePage(p int) *[pageSize]slot[T] {
	if r.pages[p] == nil {
		r.pages[p] = &[pageSize]slot[T]{}
	}
	return r.pages[p]
}

// Set stores value at index, creating backing pages as needed, and bumps
// the owning page's version to currentTick.
func (r *RefTable[T]) Set(index int, value T, currentTick uint32) error {
	p, off, err := r.locate(index)
	if err != nil {
		return err
	}
	page := r.ensurePage(p)
	page[off] = slot[T]{present: true, value: value}
	r.version[p] = currentTick
	return nil
}

// Get returns the value stored at index, if any.
func (r *RefTable[T]) Get(index int) (T, bool) {
	var zero T
	p, off, err := r.locate(index)
	if err != nil || r.pages[p] == nil {
		return zero, false
	}
	s := r.pages[p][off]
	if !s.present {
		return zero, false
	}
	return s.value, true
}

// Has reports whether index currently holds a value.
func (r *RefTable[T]) Has(index int) bool {
	_, ok := r.Get(index)
	return ok
}

// Remove clears index, reporting whether anything was present.
func (r *RefTable[T]) Remove(index int) bool {
	p, off, err := r.locate(index)
	if err != nil || r.pages[p] == nil {
		return false
	}
	was := r.pages[p][off].present
	r.pages[p][off] = slot[T]{}
	return was
}

// Count returns the number of present entries (O(n pages)).
func (r *RefTable[T]) Count() int {
	n := 0
	for _, page := range r.pages {
		if page == nil {
			continue
		}
		for _, s := range page {
			if s.present {
				n++
			}
		}
	}
	return n
}

// PageVersion returns the version of the page containing index.
func (r *RefTable[T]) PageVersion(index int) uint32 {
	p := index / pageSize
	if p >= len(r.version) {
		return 0
	}
	return r.version[p]
}

// SyncDirtyFrom mirrors chunk.PlainTable.SyncDirtyFrom at the reference
// level (spec §4.3): pages whose version differs are copied entry by
// entry. When clone is nil, values are shared by reference (default);
// when non-nil, each value is passed through clone to produce an
// independent copy (the "clone-on-snapshot" policy, spec §3/§4.3).
func (r *RefTable[T]) SyncDirtyFrom(other *RefTable[T], clone func(T) T) error {
	if len(other.pages) != len(r.pages) {
		return errs.New(errs.SchemaMismatch, "reference table page layout mismatch during sync_from")
	}
	for p := range r.pages {
		if other.version[p] == 0 || other.version[p] == r.version[p] {
			continue
		}
		srcPage := other.pages[p]
		if srcPage == nil {
			r.pages[p] = nil
			r.version[p] = other.version[p]
			continue
		}
		dstPage := r.ensurePage(p)
		for i, s := range srcPage {
			if !s.present {
				dstPage[i] = slot[T]{}
				continue
			}
			v := s.value
			if clone != nil {
				v = clone(v)
			}
			dstPage[i] = slot[T]{present: true, value: v}
		}
		r.version[p] = other.version[p]
	}
	return nil
}

// ForEach calls fn for every present (index, value) pair in increasing
// index order.
func (r *RefTable[T]) ForEach(fn func(index int, value T)) {
	for p, page := range r.pages {
		if page == nil {
			continue
		}
		base := p * pageSize
		for off, s := range page {
			if s.present {
				fn(base+off, s.value)
			}
		}
	}
}
