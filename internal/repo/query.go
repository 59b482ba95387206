package repo

import (
	"corecs/internal/entity"
	"corecs/internal/query"
)

// versionView adapts a Repository's registered bindings to
// query.ComponentVersions, so the delta-query path can ask "has this
// component changed since tick X" per entity without the query package
// knowing anything about chunk or page storage (spec §4.5 delta queries).
type versionView struct {
	r *Repository
}

func (v versionView) VersionFor(ordinal int, entityIndex int) uint32 {
	if pb, ok := v.r.plain[ordinal]; ok {
		return pb.chunkVersion(pb.chunkOf(entityIndex))
	}
	if rb, ok := v.r.ref[ordinal]; ok {
		return rb.pageVersion(entityIndex)
	}
	return 0
}

// Query runs def against the live entity set and returns every matching
// handle, in increasing index order (spec §4.5).
func (r *Repository) Query(def query.Def) []entity.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return query.Collect(query.NewEnumerator(r.ix, def))
}

// QueryDelta runs def restricted to entities whose header or any included
// component has changed since sinceTick (spec §4.5 delta queries).
func (r *Repository) QueryDelta(def query.Def, sinceTick uint32) []entity.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return query.Collect(query.NewDeltaEnumerator(r.ix, def, sinceTick, versionView{r: r}))
}

// Enumerate returns a live enumerator over def, for callers that want to
// stream results rather than materialize a slice.
func (r *Repository) Enumerate(def query.Def) query.Enumerator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return query.NewEnumerator(r.ix, def)
}
