// Package registry implements the process-global, append-only component
// and event type registry (spec §3 "Component type registry"). Ordinal
// assignment order must match across every process that shares
// recordings or snapshots, so registration is expected to happen once,
// deterministically, during host startup, before any Repository is
// created — mirroring the teacher's componentTypeToBitPosition map in
// query/bitset.go, generalized from a fixed built-in list to a runtime,
// append-only registration API.
package registry

import (
	"sync"

	"corecs/internal/errs"
	"corecs/internal/mask"
)

// Storage distinguishes plain-data (flat bytes, chunked) from reference
// (managed pointer/interface, sparse) component tiers.
type Storage int

const (
	StoragePlain Storage = iota
	StorageReference
)

// SnapshotPolicy governs how a reference-typed component participates in
// sync_from / recording (spec §3, §4.3).
type SnapshotPolicy int

const (
	// Persistent is copied (by reference) on every sync_from / recorded.
	Persistent SnapshotPolicy = iota
	// Transient is excluded from sync_from and recordings unless the
	// caller explicitly asks to include transient types.
	Transient
	// SnapshotViaClone requires CloneFn to produce a deep copy on sync.
	SnapshotViaClone
)

// TypeInfo is the metadata recorded for a single registered type.
type TypeInfo struct {
	Name       string
	Ordinal    int
	Storage    Storage
	ElemSize   int // byte size of one plain-data element; 0 for reference types
	Policy     SnapshotPolicy
	CloneFn    func(v any) any // required when Policy == SnapshotViaClone
}

// Registry is the append-only, process-wide type table. A Registry is
// safe for concurrent use, but registration is only ever expected during
// startup. Readers take a read lock on every lookup (RWMutex is adequate
// at this scale — registration happens a few dozen times total, never
// per-frame).
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*TypeInfo
	ordinal []*TypeInfo // index by ordinal

	eventMu      sync.RWMutex
	eventByName  map[string]*TypeInfo
	eventOrdinal []*TypeInfo
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName:      make(map[string]*TypeInfo),
		eventByName: make(map[string]*TypeInfo),
	}
}

// RegisterPlain assigns the next free ordinal to a plain-data component
// type of the given element size and snapshot policy (spec §3: snapshot
// policy is per-type metadata, not limited to the reference tier).
// SnapshotViaClone is rejected for plain types: a chunk byte-copy is
// already a deep copy, so there is nothing for a CloneFn to do.
// Re-registering the same name returns the existing TypeInfo idempotently.
func (r *Registry) RegisterPlain(name string, elemSize int, policy SnapshotPolicy) (*TypeInfo, error) {
	if policy == SnapshotViaClone {
		return nil, errs.New(errs.SchemaMismatch, "plain-data types copy by value and cannot use SnapshotViaClone").WithType(name)
	}
	return r.register(name, StoragePlain, elemSize, policy, nil)
}

// RegisterReference assigns the next free ordinal to a reference-typed
// component, with the given snapshot policy.
func (r *Registry) RegisterReference(name string, policy SnapshotPolicy, cloneFn func(v any) any) (*TypeInfo, error) {
	if policy == SnapshotViaClone && cloneFn == nil {
		return nil, errs.New(errs.TypeNotRegistered, "clone-on-snapshot type requires a CloneFn").WithType(name)
	}
	return r.register(name, StorageReference, 0, policy, cloneFn)
}

func (r *Registry) register(name string, storage Storage, elemSize int, policy SnapshotPolicy, cloneFn func(any) any) (*TypeInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		return existing, nil
	}
	if len(r.ordinal) >= mask.MaxOrdinal {
		return nil, errs.New(errs.RegistryFull, "maximum of 256 component types already registered").WithType(name)
	}
	info := &TypeInfo{
		Name:     name,
		Ordinal:  len(r.ordinal),
		Storage:  storage,
		ElemSize: elemSize,
		Policy:   policy,
		CloneFn:  cloneFn,
	}
	r.ordinal = append(r.ordinal, info)
	r.byName[name] = info
	return info, nil
}

// Lookup returns the TypeInfo for a registered name.
func (r *Registry) Lookup(name string) (*TypeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byName[name]
	if !ok {
		return nil, errs.New(errs.TypeNotRegistered, "component type accessed before registration").WithType(name)
	}
	return info, nil
}

// ByOrdinal returns the TypeInfo for a dense ordinal.
func (r *Registry) ByOrdinal(ordinal int) (*TypeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ordinal < 0 || ordinal >= len(r.ordinal) {
		return nil, errs.New(errs.TypeNotRegistered, "ordinal has no registered type")
	}
	return r.ordinal[ordinal], nil
}

// Count returns the number of registered types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordinal)
}

// All returns every registered TypeInfo, in ordinal order. The returned
// slice is a copy; mutating it does not affect the registry.
func (r *Registry) All() []*TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TypeInfo, len(r.ordinal))
	copy(out, r.ordinal)
	return out
}

// RegisterEventType assigns the next free ordinal in the event-type
// ordinal space, shared by event streams and singleton values (spec §9
// design notes: "singleton event-type ordinals" are a second process-wide
// ordinal space, confined and initialized the same way as the component
// registry but independent of the 256-slot component mask). Re-registering
// the same name returns the existing TypeInfo idempotently.
func (r *Registry) RegisterEventType(name string) (*TypeInfo, error) {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()

	if existing, ok := r.eventByName[name]; ok {
		return existing, nil
	}
	info := &TypeInfo{
		Name:    name,
		Ordinal: len(r.eventOrdinal),
	}
	r.eventOrdinal = append(r.eventOrdinal, info)
	r.eventByName[name] = info
	return info, nil
}

// EventTypeByOrdinal returns the TypeInfo for a dense event-type ordinal.
func (r *Registry) EventTypeByOrdinal(ordinal int) (*TypeInfo, error) {
	r.eventMu.RLock()
	defer r.eventMu.RUnlock()
	if ordinal < 0 || ordinal >= len(r.eventOrdinal) {
		return nil, errs.New(errs.TypeNotRegistered, "event-type ordinal has no registered type")
	}
	return r.eventOrdinal[ordinal], nil
}

// PersistentMask returns the mask of every registered type whose policy is
// not Transient — the default sync_from / recording mask (spec §4.6).
func (r *Registry) PersistentMask() mask.Mask256 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var m mask.Mask256
	for _, info := range r.ordinal {
		if info.Policy != Transient {
			m = m.Set(info.Ordinal)
		}
	}
	return m
}
