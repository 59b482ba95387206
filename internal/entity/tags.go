package entity

import "corecs/internal/errs"

// TagRegistry is optional, non-authoritative bookkeeping for naming
// entities and grouping them for bulk host-side operations, generalized
// from the teacher's DefaultEntityManager SetTag/CreateGroup surface
// (entity_manager.go). It carries no weight in the generation/mask
// invariants the Index enforces; a tag surviving past its entity's
// destruction is a host bug, not a core one, so callers are expected to
// clear tags on Destroy if they care.
type TagRegistry struct {
	entityTag   map[int32]string
	tagEntities map[string][]int32
	groups      map[string][]int32
	entityGroup map[int32][]string
}

// NewTagRegistry creates an empty tag/group registry.
func NewTagRegistry() *TagRegistry {
	return &TagRegistry{
		entityTag:   make(map[int32]string),
		tagEntities: make(map[string][]int32),
		groups:      make(map[string][]int32),
		entityGroup: make(map[int32][]string),
	}
}

// SetTag assigns tag to an entity index, replacing any prior tag.
func (tr *TagRegistry) SetTag(index int32, tag string) error {
	if tag == "" {
		return errs.New(errs.SchemaMismatch, "tag cannot be empty")
	}
	if old, ok := tr.entityTag[index]; ok {
		tr.removeFromTag(index, old)
	}
	tr.entityTag[index] = tag
	tr.tagEntities[tag] = append(tr.tagEntities[tag], index)
	return nil
}

// Tag returns the tag assigned to index, if any.
func (tr *TagRegistry) Tag(index int32) (string, bool) {
	t, ok := tr.entityTag[index]
	return t, ok
}

// ClearTag removes whatever tag index carries.
func (tr *TagRegistry) ClearTag(index int32) {
	if tag, ok := tr.entityTag[index]; ok {
		tr.removeFromTag(index, tag)
		delete(tr.entityTag, index)
	}
}

// FindByTag returns every entity index currently carrying tag.
func (tr *TagRegistry) FindByTag(tag string) []int32 {
	return append([]int32(nil), tr.tagEntities[tag]...)
}

func (tr *TagRegistry) removeFromTag(index int32, tag string) {
	entities := tr.tagEntities[tag]
	for i, e := range entities {
		if e == index {
			tr.tagEntities[tag] = append(entities[:i], entities[i+1:]...)
			break
		}
	}
	if len(tr.tagEntities[tag]) == 0 {
		delete(tr.tagEntities, tag)
	}
}

// CreateGroup declares an empty named group.
func (tr *TagRegistry) CreateGroup(name string) error {
	if _, exists := tr.groups[name]; exists {
		return errs.New(errs.SchemaMismatch, "group already exists").WithType(name)
	}
	tr.groups[name] = nil
	return nil
}

// AddToGroup adds index to an existing group.
func (tr *TagRegistry) AddToGroup(index int32, group string) error {
	if _, exists := tr.groups[group]; !exists {
		return errs.New(errs.TypeNotRegistered, "group does not exist").WithType(group)
	}
	tr.groups[group] = append(tr.groups[group], index)
	tr.entityGroup[index] = append(tr.entityGroup[index], group)
	return nil
}

// RemoveFromGroup removes index from group, if present.
func (tr *TagRegistry) RemoveFromGroup(index int32, group string) error {
	if _, exists := tr.groups[group]; !exists {
		return errs.New(errs.TypeNotRegistered, "group does not exist").WithType(group)
	}
	members := tr.groups[group]
	for i, e := range members {
		if e == index {
			tr.groups[group] = append(members[:i], members[i+1:]...)
			break
		}
	}
	groups := tr.entityGroup[index]
	for i, g := range groups {
		if g == group {
			tr.entityGroup[index] = append(groups[:i], groups[i+1:]...)
			break
		}
	}
	return nil
}

// Group returns every entity index currently in group.
func (tr *TagRegistry) Group(group string) []int32 {
	return append([]int32(nil), tr.groups[group]...)
}

// EntityGroups returns every group index currently belongs to.
func (tr *TagRegistry) EntityGroups(index int32) []string {
	return append([]string(nil), tr.entityGroup[index]...)
}

// DestroyGroup removes a group and every membership record pointing to it.
func (tr *TagRegistry) DestroyGroup(group string) error {
	members, exists := tr.groups[group]
	if !exists {
		return errs.New(errs.TypeNotRegistered, "group does not exist").WithType(group)
	}
	for _, index := range members {
		groups := tr.entityGroup[index]
		for i, g := range groups {
			if g == group {
				tr.entityGroup[index] = append(groups[:i], groups[i+1:]...)
				break
			}
		}
	}
	delete(tr.groups, group)
	return nil
}
