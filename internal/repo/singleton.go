package repo

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"corecs/internal/errs"
)

// singletonEntry type-erases exactly one instance of a singleton-registered
// type (spec §4.6 set_singleton<T>/get_singleton<T>/has_singleton<T>).
// Singletons are a separate namespace from entity components: they are
// addressed by Go type identity rather than by entity handle, so no
// chunk/page table is needed, just a boxed value behind a mutex the
// Repository already holds.
type singletonEntry struct {
	value   any
	ordinal int
}

// singletonCodec lets the recorder decode a persisted singleton's bytes
// back into its concrete type without this package needing to know T;
// registered the first time SetSingleton[T] runs for that type. ordinal is
// the process-stable handle the recorder addresses this singleton type by
// (registry's event-type ordinal space, shared with event streams — spec
// §9 "singleton event-type ordinals").
type singletonCodec struct {
	key     string
	ordinal int
	decode  func(data []byte) (any, error)
}

func singletonKey[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

func registerSingletonCodec[T any](r *Repository, key string) (int, error) {
	if c, ok := r.singletonCodecs[key]; ok {
		return c.ordinal, nil
	}
	info, err := r.reg.RegisterEventType(key)
	if err != nil {
		return 0, err
	}
	c := singletonCodec{
		key:     key,
		ordinal: info.Ordinal,
		decode: func(data []byte) (any, error) {
			var v T
			if err := msgpack.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
	r.singletonCodecs[key] = c
	r.singletonCodecsByOrdinal[info.Ordinal] = c
	return info.Ordinal, nil
}

// SetSingleton stores value as the repository's sole instance of T,
// overwriting any prior value (spec §4.6: "exactly one instance per
// type; set_singleton replaces the existing value if present").
func SetSingleton[T any](r *Repository, value T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireNotDisposed(); err != nil {
		return err
	}
	key := singletonKey[T]()
	ordinal, err := registerSingletonCodec[T](r, key)
	if err != nil {
		return err
	}
	r.singletons[key] = singletonEntry{value: value, ordinal: ordinal}
	return nil
}

// GetSingleton returns the repository's instance of T, or
// errs.SingletonNotSet if none has been set.
func GetSingleton[T any](r *Repository) (T, error) {
	var zero T
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.singletons[singletonKey[T]()]
	if !ok {
		return zero, errs.New(errs.SingletonNotSet, "singleton type has no value set").WithType(singletonKey[T]())
	}
	v, ok := entry.value.(T)
	if !ok {
		return zero, errs.New(errs.SchemaMismatch, "singleton stored with a mismatched type")
	}
	return v, nil
}

// HasSingleton reports whether T currently has a singleton value set.
func HasSingleton[T any](r *Repository) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.singletons[singletonKey[T]()]
	return ok
}

// ClearSingleton removes T's singleton value, if any.
func ClearSingleton[T any](r *Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.singletons, singletonKey[T]())
}
