// Package eventbus implements the double-buffered event streams of spec
// §4.7. Unlike the teacher's event_bus.go (an unimplemented pub/sub
// stub with worker pools and handler subscriptions), this bus has no
// subscribers at all: producers publish into the current frame's buffer
// and consumers drain the previous frame's buffer, so publish order
// within a frame never races against in-frame consumption.
package eventbus

import (
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"corecs/internal/errs"
	"corecs/internal/registry"
)

// Stream is one named event channel's double buffer. Publish appends to
// the write-side buffer; Swap rotates write to read and clears the new
// write-side; ConsumePrevious reads the read-side buffer (spec §4.7).
// Safe for concurrent Publish calls from multiple systems in the same
// phase; Swap must only be called by the frame driver between phases.
type Stream[T any] struct {
	mu       sync.Mutex
	current  []T
	previous []T
}

// NewStream creates an empty stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{}
}

// Publish appends value to the current frame's buffer.
func (s *Stream[T]) Publish(value T) {
	s.mu.Lock()
	s.current = append(s.current, value)
	s.mu.Unlock()
}

// PublishAll appends every value in values to the current buffer.
func (s *Stream[T]) PublishAll(values []T) {
	s.mu.Lock()
	s.current = append(s.current, values...)
	s.mu.Unlock()
}

// ConsumePrevious returns the events published during the prior frame.
// The returned slice is owned by the stream; callers must not mutate it.
func (s *Stream[T]) ConsumePrevious() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previous
}

// SnapshotCurrent copies the in-progress current buffer, for a snapshot
// provider that needs to observe this frame's events before they swap
// into the readable slot (spec §5 snapshot isolation).
func (s *Stream[T]) SnapshotCurrent() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.current))
	copy(out, s.current)
	return out
}

// ClearCurrent discards everything published so far this frame without
// swapping, used when a staged entity's events must be discarded on
// rollback.
func (s *Stream[T]) ClearCurrent() {
	s.mu.Lock()
	s.current = s.current[:0]
	s.mu.Unlock()
}

// InjectIntoCurrent appends values directly into the current buffer,
// bypassing Publish's per-call overhead; used by recorder playback to
// replay a recorded frame's events verbatim.
func (s *Stream[T]) InjectIntoCurrent(values []T) {
	s.PublishAll(values)
}

// Swap rotates the double buffer: the previous frame's buffer is
// discarded, current becomes previous, and a fresh current buffer
// starts empty (spec §4.7 end-of-frame transition).
func (s *Stream[T]) Swap() {
	s.mu.Lock()
	s.previous = s.current
	s.current = nil
	s.mu.Unlock()
}

// erased is the type-unaware handle the Bus registry stores; each
// concrete Stream[T] satisfies it via the closures captured at
// registration time.
type erased struct {
	name      string
	ordinal   int
	tier      registry.Storage
	swap      func()
	clear     func()
	publish   func(value any) error
	previous  func() any
	injectAll func(values any) error

	// encodeCurrent/decodeAndInject let the recorder persist and restore a
	// stream's events without knowing T, by keeping the msgpack
	// (de)serialization inside the closure that does know it (spec §6.1
	// event section).
	encodeCurrent   func() ([]byte, int, error)
	decodeAndInject func(data []byte) error
}

// StreamFrame is one event stream's encoded current-frame batch, tagged
// with the ordinal and storage tier the recorder addresses it by (spec
// §6.1: "per stream kind in order (plain streams, then reference
// streams)... type_ordinal: i32").
type StreamFrame struct {
	Ordinal int
	Tier    registry.Storage
	Data    []byte
}

// Bus is the process-wide registry of named event streams, mirroring the
// component registry's append-only name -> handle mapping (spec §4.7
// treats each event type as an independently swapped channel). Event
// types share the registry's second ordinal space (registry §9 "singleton
// event-type ordinals") so the recorder can address a stream by a
// process-stable i32 instead of a name string.
type Bus struct {
	mu        sync.RWMutex
	reg       *registry.Registry
	streams   map[string]erased
	byOrdinal map[int]erased
	typed     map[string]any
}

// NewBus creates an empty event bus whose streams draw ordinals from reg.
func NewBus(reg *registry.Registry) *Bus {
	return &Bus{
		reg:       reg,
		streams:   make(map[string]erased),
		byOrdinal: make(map[int]erased),
		typed:     make(map[string]any),
	}
}

// Register declares a new named event type of the given storage tier and
// returns its typed stream. Registering the same name twice with a
// different T is a programmer error and returns SchemaMismatch.
func Register[T any](b *Bus, name string, tier registry.Storage) (*Stream[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.typed[name]; ok {
		s, ok := existing.(*Stream[T])
		if !ok {
			return nil, errs.New(errs.SchemaMismatch, "event stream already registered with a different type").WithType(name)
		}
		return s, nil
	}
	info, err := b.reg.RegisterEventType(name)
	if err != nil {
		return nil, err
	}
	s := NewStream[T]()
	b.typed[name] = s
	e := erased{
		name:    name,
		ordinal: info.Ordinal,
		tier:    tier,
		swap:    s.Swap,
		clear:   s.ClearCurrent,
		publish: func(value any) error {
			v, ok := value.(T)
			if !ok {
				return errs.New(errs.SchemaMismatch, "event payload does not match the stream's registered type").WithType(name)
			}
			s.Publish(v)
			return nil
		},
		previous: func() any {
			return s.ConsumePrevious()
		},
		injectAll: func(values any) error {
			v, ok := values.([]T)
			if !ok {
				return errs.New(errs.SchemaMismatch, "event batch does not match the stream's registered type").WithType(name)
			}
			s.InjectIntoCurrent(v)
			return nil
		},
		encodeCurrent: func() ([]byte, int, error) {
			v := s.SnapshotCurrent()
			if len(v) == 0 {
				return nil, 0, nil
			}
			data, err := msgpack.Marshal(v)
			return data, len(v), err
		},
		decodeAndInject: func(data []byte) error {
			var v []T
			if err := msgpack.Unmarshal(data, &v); err != nil {
				return err
			}
			s.InjectIntoCurrent(v)
			return nil
		},
	}
	b.streams[name] = e
	b.byOrdinal[info.Ordinal] = e
	return s, nil
}

// Lookup retrieves a previously registered stream by name and type.
func Lookup[T any](b *Bus, name string) (*Stream[T], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	existing, ok := b.typed[name]
	if !ok {
		return nil, errs.New(errs.TypeNotRegistered, "event stream not registered").WithType(name)
	}
	s, ok := existing.(*Stream[T])
	if !ok {
		return nil, errs.New(errs.SchemaMismatch, "event stream registered with a different type").WithType(name)
	}
	return s, nil
}

// SwapAll rotates every registered stream's double buffer. Called once by
// the frame driver at the phase boundary named in spec §4.7.
func (b *Bus) SwapAll() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.streams {
		s.swap()
	}
}

// ClearAllCurrent discards every stream's in-progress buffer without
// swapping, used when a frame is abandoned mid-simulation.
func (b *Bus) ClearAllCurrent() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.streams {
		s.clear()
	}
}

// PublishErased publishes payload onto the named stream without the
// caller knowing the stream's element type at compile time, used by the
// command buffer's PublishEvent op and by the repository facade that
// wraps it (spec §3 command buffer "PublishEvent(type, payload)").
func (b *Bus) PublishErased(name string, payload any) error {
	b.mu.RLock()
	s, ok := b.streams[name]
	b.mu.RUnlock()
	if !ok {
		return errs.New(errs.TypeNotRegistered, "event stream not registered").WithType(name)
	}
	return s.publish(payload)
}

// CopyPreviousInto copies the named stream's previous-frame buffer from b
// into dst's current buffer for the same name, used by snapshot providers
// to preserve event-ordering guarantees across a sync (spec §4.8: "both
// providers preserve the event-ordering guarantees by calling
// clear_current then inject_into_current for each event type").
func (b *Bus) CopyPreviousInto(dst *Bus, name string) error {
	b.mu.RLock()
	src, ok := b.streams[name]
	b.mu.RUnlock()
	if !ok {
		return errs.New(errs.TypeNotRegistered, "event stream not registered on source bus").WithType(name)
	}
	dst.mu.RLock()
	target, ok := dst.streams[name]
	dst.mu.RUnlock()
	if !ok {
		return errs.New(errs.TypeNotRegistered, "event stream not registered on destination bus").WithType(name)
	}
	return target.injectAll(src.previous())
}

// EncodeCurrentFrame msgpack-encodes every stream's in-progress current
// buffer, omitting streams with nothing published this frame, and orders
// the result plain-tier streams first then reference-tier streams, each
// group ordinal-ascending (spec §6.1 event section: "per stream kind in
// order (plain streams, then reference streams)"). The recorder calls
// this at frame-close, before SwapAll, to capture the events that belong
// to the frame it is about to write.
func (b *Bus) EncodeCurrentFrame() ([]StreamFrame, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]StreamFrame, 0, len(b.streams))
	for _, s := range b.streams {
		data, n, err := s.encodeCurrent()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		out = append(out, StreamFrame{Ordinal: s.ordinal, Tier: s.tier, Data: data})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].Ordinal < out[j].Ordinal
	})
	return out, nil
}

// DecodeAndInject decodes a msgpack-encoded batch (as produced by
// EncodeCurrentFrame) and injects it into the stream addressed by
// ordinal's current buffer, used by recorder playback.
func (b *Bus) DecodeAndInject(ordinal int, data []byte) error {
	b.mu.RLock()
	s, ok := b.byOrdinal[ordinal]
	b.mu.RUnlock()
	if !ok {
		return errs.New(errs.TypeNotRegistered, "event stream ordinal not registered in this process")
	}
	return s.decodeAndInject(data)
}

// Names returns every registered stream name.
func (b *Bus) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.streams))
	for name := range b.streams {
		out = append(out, name)
	}
	return out
}
