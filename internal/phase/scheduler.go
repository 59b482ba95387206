package phase

import (
	"sort"

	"corecs/internal/errs"
)

// ModuleSpec declares one scheduled unit: the phase it runs in, a stable
// name for ordering and diagnostics, and the names of modules it must
// run after within the same phase.
type ModuleSpec struct {
	Name     string
	Phase    Phase
	RunAfter []string
}

// Scheduler topologically orders a set of modules per phase (spec §2
// "Phase & Scheduler... sorts systems/modules topologically"). Modules in
// different phases never need ordering relative to each other since the
// phase sequence itself already orders them; RunAfter dependencies only
// apply within the same phase.
type Scheduler struct {
	specs []ModuleSpec
}

// NewScheduler builds a scheduler over the given module specs.
func NewScheduler(specs []ModuleSpec) *Scheduler {
	cp := make([]ModuleSpec, len(specs))
	copy(cp, specs)
	return &Scheduler{specs: cp}
}

// Order returns module names partitioned by phase, each phase's slice
// topologically sorted by RunAfter, and ties broken by name for
// determinism. Returns SchemaMismatch if a RunAfter dependency is
// missing, targets a module in a different phase, or participates in a
// cycle.
func (s *Scheduler) Order() (map[Phase][]string, error) {
	byPhase := make(map[Phase][]ModuleSpec)
	for _, spec := range s.specs {
		byPhase[spec.Phase] = append(byPhase[spec.Phase], spec)
	}

	result := make(map[Phase][]string, len(byPhase))
	for p, specs := range byPhase {
		ordered, err := topoSort(specs)
		if err != nil {
			return nil, err
		}
		result[p] = ordered
	}
	return result, nil
}

func topoSort(specs []ModuleSpec) ([]string, error) {
	byName := make(map[string]ModuleSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	names := make([]string, 0, len(specs))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(names))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errs.New(errs.SchemaMismatch, "module scheduling dependency cycle detected").WithType(name)
		}
		spec, ok := byName[name]
		if !ok {
			return errs.New(errs.SchemaMismatch, "module run-after dependency not found in this phase").WithType(name)
		}
		state[name] = visiting
		deps := append([]string(nil), spec.RunAfter...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
