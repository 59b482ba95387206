package repo

import (
	"corecs/internal/errs"
	"corecs/internal/provider"
)

// InjectEventsSince copies every event stream's previous-frame buffer
// from source into this repository's current buffer, satisfying
// provider.Repository for persistent_replica/pooled_snapshot sync (spec
// §4.8). Streams only retain one frame of history in this
// implementation, so sinceTick does not change which events are copied;
// it is accepted to match the provider contract and so that a future
// ring-buffered event history could use it without an API break.
func (r *Repository) InjectEventsSince(source provider.Repository, sinceTick uint32) error {
	_ = sinceTick
	src, ok := source.(*Repository)
	if !ok {
		return errs.New(errs.SchemaMismatch, "snapshot source is not a repo.Repository")
	}
	for _, name := range src.bus.Names() {
		if err := src.bus.CopyPreviousInto(r.bus, name); err != nil {
			return err
		}
	}
	return nil
}
