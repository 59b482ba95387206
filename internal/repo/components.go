package repo

import (
	"unsafe"

	"github.com/vmihailenco/msgpack/v5"

	"corecs/internal/chunk"
	"corecs/internal/entity"
	"corecs/internal/errs"
	"corecs/internal/refstore"
	"corecs/internal/registry"
)

// plainBinding type-erases one registered plain-data component's table so
// sync_from, recording and command-buffer playback can operate on it
// without knowing T, while GetRO[T]/GetRW[T] (which do know T)
// type-assert straight through to the concrete *chunk.PlainTable[T].
type plainBinding struct {
	ordinal int
	table   any // *chunk.PlainTable[T]

	chunkCount       func() int
	chunkCapacity    func() int
	chunkOf          func(index int) int
	chunkVersion     func(c int) uint32
	chunkPopulation  func(c int) int32
	bumpPopulation   func(c int, delta int32)
	isCommitted      func(c int) bool
	copyChunkTo      func(c int, buf []byte) error
	restoreChunkFrom func(c int, buf []byte) error
	sanitizeChunk    func(c int, live []bool) error
	tryDecommit      func(c int) error
	syncFrom         func(other *plainBinding) error
	setErased        func(index int, tick uint32, payload any) error
	close            func() error
}

// refBinding is the reference-table analogue of plainBinding.
type refBinding struct {
	ordinal int
	table   any // *refstore.RefTable[T]

	count            func() int
	pageVersion      func(index int) uint32
	syncFrom         func(other *refBinding) error
	setErased        func(index int, tick uint32, payload any) error
	remove           func(index int) bool
	has              func(index int) bool
	encodeAll        func() ([]byte, error)
	decodeAndRestore func(data []byte, tick uint32) error
}

// RegisterPlain assigns (or retrieves) the ordinal for plain-data type T
// under name with the given snapshot policy, and builds its chunked
// storage sized to the repository's entity capacity (spec §4.6
// register_plain<T>; spec §3's Persistent/Transient/SnapshotViaClone
// policy applies to plain-data types same as reference types, except
// SnapshotViaClone which registry.RegisterPlain rejects).
func RegisterPlain[T any](r *Repository, name string, policy registry.SnapshotPolicy) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	info, err := r.reg.RegisterPlain(name, int(unsafe.Sizeof(zero)), policy)
	if err != nil {
		return 0, err
	}
	if _, exists := r.plain[info.Ordinal]; exists {
		return info.Ordinal, nil
	}

	tbl, err := chunk.NewPlainTable[T](r.ix.MaxEntities())
	if err != nil {
		return 0, err
	}
	b := &plainBinding{
		ordinal:          info.Ordinal,
		table:            tbl,
		chunkCount:       tbl.ChunkCount,
		chunkCapacity:    tbl.Capacity,
		chunkOf:          tbl.ChunkOf,
		chunkVersion:     tbl.ChunkVersion,
		chunkPopulation:  tbl.ChunkPopulation,
		bumpPopulation:   func(c int, delta int32) { tbl.SetPopulation(c, tbl.ChunkPopulation(c)+delta) },
		isCommitted:      tbl.IsCommitted,
		copyChunkTo:      tbl.CopyChunkTo,
		restoreChunkFrom: tbl.RestoreChunkFrom,
		sanitizeChunk:    tbl.SanitizeChunk,
		tryDecommit:      tbl.TryDecommit,
		close:            tbl.Close,
		setErased: func(index int, tick uint32, payload any) error {
			v, ok := payload.(T)
			if !ok {
				return errs.New(errs.SchemaMismatch, "component payload type mismatch").WithType(name)
			}
			wasCommitted := tbl.IsCommitted(tbl.ChunkOf(index))
			rw, err := tbl.GetRW(index, tick)
			if err != nil {
				return err
			}
			if !wasCommitted && r.metrics != nil {
				r.metrics.RecordChunkCommit()
			}
			*rw = v
			return nil
		},
		syncFrom: func(other *plainBinding) error {
			otherTbl, ok := other.table.(*chunk.PlainTable[T])
			if !ok {
				return errs.New(errs.SchemaMismatch, "plain table ordinal bound to mismatched types across repositories").WithType(name)
			}
			return tbl.SyncDirtyFrom(otherTbl)
		},
	}
	r.plain[info.Ordinal] = b
	return info.Ordinal, nil
}

// RegisterReference assigns the ordinal for reference type T under name
// with the given snapshot policy (spec §4.6 register_ref<T>). cloneFn is
// required when policy is registry.SnapshotViaClone and ignored otherwise.
func RegisterReference[T any](r *Repository, name string, policy registry.SnapshotPolicy, cloneFn func(T) T) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var anyClone func(any) any
	if cloneFn != nil {
		anyClone = func(v any) any { return cloneFn(v.(T)) }
	}
	info, err := r.reg.RegisterReference(name, policy, anyClone)
	if err != nil {
		return 0, err
	}
	if _, exists := r.ref[info.Ordinal]; exists {
		return info.Ordinal, nil
	}

	tbl := refstore.NewRefTable[T](r.ix.MaxEntities())
	b := &refBinding{
		ordinal: info.Ordinal,
		table:   tbl,
		count:       tbl.Count,
		pageVersion: tbl.PageVersion,
		remove:      tbl.Remove,
		has:         tbl.Has,
		setErased: func(index int, tick uint32, payload any) error {
			v, ok := payload.(T)
			if !ok {
				return errs.New(errs.SchemaMismatch, "reference component payload type mismatch").WithType(name)
			}
			return tbl.Set(index, v, tick)
		},
		encodeAll: func() ([]byte, error) {
			values := make(map[int32]T)
			tbl.ForEach(func(index int, value T) { values[int32(index)] = value })
			return msgpack.Marshal(values)
		},
		decodeAndRestore: func(data []byte, tick uint32) error {
			values := make(map[int32]T)
			if err := msgpack.Unmarshal(data, &values); err != nil {
				return err
			}
			for idx, v := range values {
				if err := tbl.Set(int(idx), v, tick); err != nil {
					return err
				}
			}
			return nil
		},
		syncFrom: func(other *refBinding) error {
			otherTbl, ok := other.table.(*refstore.RefTable[T])
			if !ok {
				return errs.New(errs.SchemaMismatch, "reference table ordinal bound to mismatched types across repositories").WithType(name)
			}
			var clone func(T) T
			if policy == registry.SnapshotViaClone {
				clone = cloneFn
			}
			return tbl.SyncDirtyFrom(otherTbl, clone)
		},
	}
	r.ref[info.Ordinal] = b
	return info.Ordinal, nil
}

// entityWritePermission resolves the active phase's write permission for a
// write touching ordinal on h, per spec §4.8's authoritative/unowned split.
func (r *Repository) entityWritePermission(h entity.Handle, ordinal int) (entity.Header, error) {
	if !r.ix.IsAlive(h) {
		return entity.Header{}, errs.New(errs.BadHandle, "entity is not alive").WithEntity(entity.Pack(h))
	}
	hdr, err := r.ix.GetHeader(h.Index)
	if err != nil {
		return entity.Header{}, err
	}
	if err := r.checkWrite(hdr.AuthorityMask.Test(ordinal)); err != nil {
		return entity.Header{}, err
	}
	return hdr, nil
}

// GetRO reads a plain or reference component's current value for a live
// entity, satisfying spec §4.6 get<T>.
func GetRO[T any](r *Repository, ordinal int, h entity.Handle) (T, error) {
	var zero T
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.requireNotDisposed(); err != nil {
		return zero, err
	}
	if !r.ix.IsAlive(h) {
		return zero, errs.New(errs.BadHandle, "entity is not alive").WithEntity(entity.Pack(h))
	}
	if pb, ok := r.plain[ordinal]; ok {
		tbl, ok := pb.table.(*chunk.PlainTable[T])
		if !ok {
			return zero, errs.New(errs.SchemaMismatch, "component type mismatch for ordinal")
		}
		v, err := tbl.GetRO(int(h.Index))
		if err != nil {
			return zero, err
		}
		return *v, nil
	}
	if rb, ok := r.ref[ordinal]; ok {
		tbl, ok := rb.table.(*refstore.RefTable[T])
		if !ok {
			return zero, errs.New(errs.SchemaMismatch, "component type mismatch for ordinal")
		}
		v, present := tbl.Get(int(h.Index))
		if !present {
			return zero, errs.New(errs.TypeNotRegistered, "component not present on entity")
		}
		return v, nil
	}
	return zero, errs.New(errs.TypeNotRegistered, "component ordinal not registered")
}

// GetRW returns a mutable pointer to a plain component's value, enforcing
// the active phase's write permission first (spec §4.6/§4.8). Only valid
// for plain-data types; reference types go through Set.
func GetRW[T any](r *Repository, ordinal int, h entity.Handle, tick uint32) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireNotDisposed(); err != nil {
		return nil, err
	}
	if _, err := r.entityWritePermission(h, ordinal); err != nil {
		return nil, err
	}
	pb, ok := r.plain[ordinal]
	if !ok {
		return nil, errs.New(errs.TypeNotRegistered, "plain component type not registered")
	}
	tbl, ok := pb.table.(*chunk.PlainTable[T])
	if !ok {
		return nil, errs.New(errs.SchemaMismatch, "component type mismatch for ordinal")
	}
	return tbl.GetRW(int(h.Index), tick)
}

// Add writes value for ordinal on h and marks the component present,
// satisfying spec §4.6 add<T>/set<T> for direct (non-command-buffer) API
// callers that know T at the call site.
func Add[T any](r *Repository, ordinal int, h entity.Handle, value T, tick uint32) error {
	return r.setComponentErased(ordinal, h, value, tick)
}

// Has reports whether h currently carries the component at ordinal.
func Has(r *Repository, ordinal int, h entity.Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hdr, err := r.ix.GetHeader(h.Index)
	if err != nil {
		return false
	}
	return hdr.ComponentMask.Test(ordinal)
}

// --- erased operations backing command.Repo playback (spec §4.8) ---

// AddComponent and SetComponent are both upserts: adding an already-present
// component overwrites its value, and setting an absent one creates it.
// The distinction only matters for population bookkeeping, handled
// internally by checking the entity's current component mask.
func (r *Repository) AddComponent(ordinal int, h entity.Handle, payload any, tick uint32) error {
	return r.setComponentErased(ordinal, h, payload, tick)
}

func (r *Repository) SetComponent(ordinal int, h entity.Handle, payload any, tick uint32) error {
	return r.setComponentErased(ordinal, h, payload, tick)
}

func (r *Repository) setComponentErased(ordinal int, h entity.Handle, payload any, tick uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireNotDisposed(); err != nil {
		return err
	}
	hdr, err := r.entityWritePermission(h, ordinal)
	if err != nil {
		return err
	}

	if pb, ok := r.plain[ordinal]; ok {
		if err := pb.setErased(int(h.Index), tick, payload); err != nil {
			return err
		}
		if !hdr.ComponentMask.Test(ordinal) {
			pb.bumpPopulation(pb.chunkOf(int(h.Index)), 1)
			return r.ix.SetComponentBit(h, ordinal, true, tick)
		}
		return nil
	}
	if rb, ok := r.ref[ordinal]; ok {
		if err := rb.setErased(int(h.Index), tick, payload); err != nil {
			return err
		}
		if !hdr.ComponentMask.Test(ordinal) {
			return r.ix.SetComponentBit(h, ordinal, true, tick)
		}
		return nil
	}
	return errs.New(errs.TypeNotRegistered, "component ordinal not registered")
}

// RemoveComponent clears ordinal from h, satisfying command.Repo and spec
// §4.6 remove<T>. Removing an absent component is a no-op.
func (r *Repository) RemoveComponent(ordinal int, h entity.Handle, tick uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireNotDisposed(); err != nil {
		return err
	}
	hdr, err := r.entityWritePermission(h, ordinal)
	if err != nil {
		return err
	}
	if !hdr.ComponentMask.Test(ordinal) {
		return nil
	}
	if pb, ok := r.plain[ordinal]; ok {
		pb.bumpPopulation(pb.chunkOf(int(h.Index)), -1)
	} else if rb, ok := r.ref[ordinal]; ok {
		rb.remove(int(h.Index))
	} else {
		return errs.New(errs.TypeNotRegistered, "component ordinal not registered")
	}
	return r.ix.SetComponentBit(h, ordinal, false, tick)
}
