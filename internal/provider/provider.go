// Package provider implements the snapshot provider surface of spec
// §4.8: contracts for persistent-replica and pooled-snapshot isolation
// that module hosts consume to get a consistent view of the live
// repository without touching it directly. Concrete scheduling policy
// (which provider a given module uses, pool sizing heuristics) is a
// collaborator outside the core; this package only supplies the
// mechanism.
package provider

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"corecs/internal/errs"
	"corecs/internal/mask"
)

// Repository is the subset of the repository facade a provider needs:
// enough to pull a consistent copy of another repository's state. The
// real type lives in package repo; this interface exists to avoid an
// import cycle (repo will embed providers built over itself).
type Repository interface {
	SyncFrom(source Repository, effectiveMask mask.Mask256, includeTransient bool) error
	ClearCurrentEvents()
	InjectEventsSince(source Repository, sinceTick uint32) error
	CurrentTick() uint32
}

// Factory builds a fresh, empty Repository instance; pooled_snapshot uses
// it to populate its pool, persistent_replica uses it once.
type Factory func() (Repository, error)

// View is an acquired, read-consistent repository snapshot. Release must
// be called exactly once per Acquire.
type View struct {
	Repo    Repository
	release func()
}

// Release returns the view to its provider.
func (v *View) Release() {
	if v.release != nil {
		v.release()
	}
}

// PersistentReplica owns a single long-lived replica, refreshed on
// demand via Update (spec §4.8 persistent_replica).
type PersistentReplica struct {
	mu               sync.Mutex
	source           Repository
	replica          Repository
	mask             mask.Mask256
	includeTransient bool
}

// NewPersistentReplica builds a replica over source using factory,
// restricted to effectiveMask (pass mask.Zero with includeTransient=false
// to use the repository's default persistent-types mask).
func NewPersistentReplica(source Repository, factory Factory, effectiveMask mask.Mask256, includeTransient bool) (*PersistentReplica, error) {
	replica, err := factory()
	if err != nil {
		return nil, err
	}
	return &PersistentReplica{
		source:           source,
		replica:          replica,
		mask:             effectiveMask,
		includeTransient: includeTransient,
	}, nil
}

// Update performs sync_from(source, mask) against the held replica.
func (p *PersistentReplica) Update() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.replica.SyncFrom(p.source, p.mask, p.includeTransient); err != nil {
		return err
	}
	p.replica.ClearCurrentEvents()
	return p.replica.InjectEventsSince(p.source, p.replica.CurrentTick())
}

// AcquireView returns the replica. release_view is a no-op per spec
// §4.8, since the replica is long-lived and shared across acquisitions.
func (p *PersistentReplica) AcquireView() *View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &View{Repo: p.replica, release: func() {}}
}

// PooledSnapshot maintains a pool of short-lived replicas (spec §4.8
// pooled_snapshot).
type PooledSnapshot struct {
	mu               sync.Mutex
	source           Repository
	mask             mask.Mask256
	includeTransient bool
	pool             []Repository
	lastSeenTick     map[Repository]uint32
}

// NewPooledSnapshot builds poolSize replicas via factory, warming them up
// concurrently with an errgroup since each replica's initial allocation
// is independent and I/O-free but nontrivial at large entity counts.
func NewPooledSnapshot(source Repository, factory Factory, effectiveMask mask.Mask256, includeTransient bool, poolSize int) (*PooledSnapshot, error) {
	if poolSize <= 0 {
		return nil, errs.New(errs.SchemaMismatch, "pooled snapshot requires a positive pool size")
	}
	pool := make([]Repository, poolSize)
	var g errgroup.Group
	for i := range pool {
		i := i
		g.Go(func() error {
			r, err := factory()
			if err != nil {
				return err
			}
			pool[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &PooledSnapshot{
		source:           source,
		mask:             effectiveMask,
		includeTransient: includeTransient,
		pool:             pool,
		lastSeenTick:     make(map[Repository]uint32, poolSize),
	}, nil
}

// AcquireView pops a replica from the pool, syncs it against source, and
// flushes event history since the replica's last-seen tick (spec §4.8).
// Returns a RegistryFull exhaustion error if the pool is empty;
// callers are expected to size the pool for peak concurrent acquisition.
func (p *PooledSnapshot) AcquireView() (*View, error) {
	p.mu.Lock()
	if len(p.pool) == 0 {
		p.mu.Unlock()
		return nil, errs.New(errs.RegistryFull, "pooled snapshot exhausted: no replicas available")
	}
	n := len(p.pool)
	r := p.pool[n-1]
	p.pool = p.pool[:n-1]
	p.mu.Unlock()

	if err := r.SyncFrom(p.source, p.mask, p.includeTransient); err != nil {
		return nil, err
	}
	r.ClearCurrentEvents()
	sinceTick := p.lastSeenTick[r]
	if err := r.InjectEventsSince(p.source, sinceTick); err != nil {
		return nil, err
	}

	return &View{
		Repo: r,
		release: func() {
			p.mu.Lock()
			p.lastSeenTick[r] = r.CurrentTick()
			p.pool = append(p.pool, r)
			p.mu.Unlock()
		},
	}, nil
}

// Size returns the number of replicas currently checked into the pool.
func (p *PooledSnapshot) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pool)
}
