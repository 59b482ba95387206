package query

import (
	"corecs/internal/errs"
	"corecs/internal/mask"
)

// Builder provides the fluent construction API for a Def (spec §4.5).
// Each method returns the receiver so calls chain; Build validates the
// accumulated constraints and produces an immutable Def.
type Builder struct {
	include mask.Mask256
	exclude mask.Mask256

	authorityInclude    mask.Mask256
	authorityExclude    mask.Mask256
	hasAuthorityInclude bool
	hasAuthorityExclude bool

	lifecycle LifecycleSet
}

// NewBuilder starts an empty query: matches every active entity regardless
// of lifecycle or authority.
func NewBuilder() *Builder {
	return &Builder{}
}

// With requires ordinal to be present.
func (b *Builder) With(ordinal int) *Builder {
	b.include = b.include.Set(ordinal)
	return b
}

// Without excludes entities carrying ordinal.
func (b *Builder) Without(ordinal int) *Builder {
	b.exclude = b.exclude.Set(ordinal)
	return b
}

// WithAll requires every given ordinal to be present.
func (b *Builder) WithAll(ordinals ...int) *Builder {
	for _, o := range ordinals {
		b.With(o)
	}
	return b
}

// WithNone excludes every given ordinal.
func (b *Builder) WithNone(ordinals ...int) *Builder {
	for _, o := range ordinals {
		b.Without(o)
	}
	return b
}

// WithAuthority requires the entity's authority mask to include bit.
func (b *Builder) WithAuthority(bit int) *Builder {
	b.authorityInclude = b.authorityInclude.Set(bit)
	b.hasAuthorityInclude = true
	return b
}

// WithoutAuthority excludes entities whose authority mask carries bit.
func (b *Builder) WithoutAuthority(bit int) *Builder {
	b.authorityExclude = b.authorityExclude.Set(bit)
	b.hasAuthorityExclude = true
	return b
}

// WithLifecycle restricts matches to the given lifecycle states. Calling
// this more than once ORs the sets together.
func (b *Builder) WithLifecycle(states ...LifecycleSet) *Builder {
	for _, s := range states {
		b.lifecycle |= s
	}
	return b
}

// IsValid reports whether the accumulated constraints are satisfiable: a
// query that both requires and excludes the same ordinal can never match
// (mirrors the teacher builder's conflicting-constraint check).
func (b *Builder) IsValid() bool {
	return b.include.And(b.exclude).IsZero() &&
		b.authorityInclude.And(b.authorityExclude).IsZero()
}

// Build produces the immutable Def. Returns SchemaMismatch if the
// constraints can never match any entity.
func (b *Builder) Build() (Def, error) {
	if !b.IsValid() {
		return Def{}, errs.New(errs.SchemaMismatch, "query requires and excludes the same bit")
	}
	return Def{
		Include:             b.include,
		Exclude:             b.exclude,
		AuthorityInclude:    b.authorityInclude,
		AuthorityExclude:    b.authorityExclude,
		HasAuthorityInclude: b.hasAuthorityInclude,
		HasAuthorityExclude: b.hasAuthorityExclude,
		Lifecycle:           b.lifecycle,
	}, nil
}

// Clone returns an independent copy of b.
func (b *Builder) Clone() *Builder {
	cp := *b
	return &cp
}
