package provider

import (
	"corecs/internal/command"
	"corecs/internal/entity"
	"corecs/internal/errs"
	"corecs/internal/mask"
	"corecs/internal/query"
	"corecs/internal/registry"
)

// ScopedConfig restricts what a ScopedView may touch, generalizing the
// teacher's mod.ModConfig (mod/interfaces.go) from a fixed allow-list of
// game component types to any registry-backed mask, and from "MOD" to
// any restricted caller (a scripting host, a remote tool, a test
// harness).
type ScopedConfig struct {
	AllowedComponents mask.Mask256
	MaxEntities       int
	MaxQueryCount     int
}

// ScopedView is a read/record-only capability surface over a repository
// view and a command buffer: it can observe entities and queue edits
// through the buffer, but can neither touch disallowed component types
// nor write the live repository directly (spec §5's single-owner rule
// for view repositories already forbids that; ScopedView adds a
// per-caller allow-list on top of it).
type ScopedView struct {
	ix       *entity.Index
	reg      *registry.Registry
	buf      *command.Buffer
	cfg      ScopedConfig
	created  int
	queryRun int
}

// NewScopedView builds a restricted view over ix, recording edits into
// buf and resolving component names via reg.
func NewScopedView(ix *entity.Index, reg *registry.Registry, buf *command.Buffer, cfg ScopedConfig) *ScopedView {
	return &ScopedView{ix: ix, reg: reg, buf: buf, cfg: cfg}
}

func (v *ScopedView) checkAllowed(ordinal int) error {
	if !v.cfg.AllowedComponents.Test(ordinal) {
		info, _ := v.reg.ByOrdinal(ordinal)
		name := "<unknown>"
		if info != nil {
			name = info.Name
		}
		return errs.New(errs.PermissionViolation, "component type not in this view's allow-list").WithType(name)
	}
	return nil
}

// CreateEntity records a creation, failing once MaxEntities scoped
// creations have already been recorded in this view's lifetime.
func (v *ScopedView) CreateEntity(lifecycle entity.Lifecycle) (command.Ref, error) {
	if v.cfg.MaxEntities > 0 && v.created >= v.cfg.MaxEntities {
		return command.Ref{}, errs.New(errs.EntityCapacityExceeded, "scoped view entity quota exhausted")
	}
	v.created++
	return v.buf.CreateEntity(lifecycle), nil
}

// AddComponent records adding ordinal to target, provided ordinal is in
// this view's allow-list.
func (v *ScopedView) AddComponent(target command.Ref, ordinal int, payload any) error {
	if err := v.checkAllowed(ordinal); err != nil {
		return err
	}
	v.buf.AddComponent(target, ordinal, payload)
	return nil
}

// SetComponent records overwriting ordinal's value on target.
func (v *ScopedView) SetComponent(target command.Ref, ordinal int, payload any) error {
	if err := v.checkAllowed(ordinal); err != nil {
		return err
	}
	v.buf.SetComponent(target, ordinal, payload)
	return nil
}

// GetComponentOrdinal resolves a registered component name, failing if it
// is outside this view's allow-list even when the type itself exists.
func (v *ScopedView) GetComponentOrdinal(name string) (int, error) {
	info, err := v.reg.Lookup(name)
	if err != nil {
		return 0, err
	}
	if err := v.checkAllowed(info.Ordinal); err != nil {
		return 0, err
	}
	return info.Ordinal, nil
}

// Query runs def against the underlying index, intersecting its include
// mask with the allow-list so a caller can never observe a disallowed
// component's presence even indirectly via a query predicate. Fails once
// MaxQueryCount queries have been run (spec-adjacent throttle mirroring
// ModContext.MaxQueryCount).
func (v *ScopedView) Query(def query.Def) ([]entity.Handle, error) {
	if v.cfg.MaxQueryCount > 0 && v.queryRun >= v.cfg.MaxQueryCount {
		return nil, errs.New(errs.PermissionViolation, "scoped view query quota exhausted")
	}
	v.queryRun++
	restricted := def
	restricted.Include = def.Include.And(v.cfg.AllowedComponents)
	restricted.Exclude = def.Exclude.And(v.cfg.AllowedComponents)
	return query.Collect(query.NewEnumerator(v.ix, restricted)), nil
}

// QueryCount returns how many queries this view has executed so far.
func (v *ScopedView) QueryCount() int { return v.queryRun }

// IsAllowed reports whether ordinal is visible to this view.
func (v *ScopedView) IsAllowed(ordinal int) bool {
	return v.cfg.AllowedComponents.Test(ordinal)
}
