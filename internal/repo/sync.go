package repo

import (
	"corecs/internal/errs"
	"corecs/internal/mask"
	"corecs/internal/provider"
	"corecs/internal/registry"
)

// effectiveSyncMask resolves the set of component ordinals a sync_from call
// actually touches (spec §4.6): an all-zero explicit mask means "every
// registered type, subject to includeTransient"; a non-zero explicit mask
// is taken as given, except that Transient types are still dropped from
// it unless includeTransient is set, since a caller cannot opt a type
// back in by naming it without also saying so explicitly. includeTransient
// is resolved in both branches so that sync_from(zero_mask, true) actually
// copies Transient types rather than silently defaulting to Persistent-only.
func (r *Repository) effectiveSyncMask(explicit mask.Mask256, includeTransient bool) mask.Mask256 {
	if explicit.IsZero() {
		var m mask.Mask256
		for _, info := range r.reg.All() {
			if includeTransient || info.Policy != registry.Transient {
				m = m.Set(info.Ordinal)
			}
		}
		return m
	}
	if includeTransient {
		return explicit
	}
	m := explicit
	for _, info := range r.reg.All() {
		if info.Policy == registry.Transient {
			m = m.Clear(info.Ordinal)
		}
	}
	return m
}

// SyncFrom implements spec §4.6's sync_from: the entity index is synced
// first so that component tables never see a chunk for an index whose
// liveness hasn't been refreshed, then every table named by the effective
// mask is synced chunk/page-wise. Satisfies provider.Repository so
// persistent_replica and pooled_snapshot can drive it without importing
// this package.
func (r *Repository) SyncFrom(source provider.Repository, effectiveMask mask.Mask256, includeTransient bool) error {
	src, ok := source.(*Repository)
	if !ok {
		return errs.New(errs.SchemaMismatch, "sync_from source is not a repo.Repository")
	}
	if src == r {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireNotDisposed(); err != nil {
		return err
	}
	src.mu.RLock()
	defer src.mu.RUnlock()

	if err := r.ix.SyncFrom(src.ix); err != nil {
		return err
	}

	m := r.effectiveSyncMask(effectiveMask, includeTransient)
	if err := r.ix.RestrictComponentMasks(m, src.tick); err != nil {
		return err
	}
	for _, ordinal := range m.SetBits() {
		if pb, ok := r.plain[ordinal]; ok {
			srcPb, ok := src.plain[ordinal]
			if !ok {
				continue
			}
			if err := pb.syncFrom(srcPb); err != nil {
				return err
			}
			continue
		}
		if rb, ok := r.ref[ordinal]; ok {
			srcRb, ok := src.ref[ordinal]
			if !ok {
				continue
			}
			if err := rb.syncFrom(srcRb); err != nil {
				return err
			}
		}
	}
	r.tick = src.tick
	return nil
}
