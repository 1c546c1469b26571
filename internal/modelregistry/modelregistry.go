// Package modelregistry indexes framework model names to the ordered set
// of Class symbols that contribute to them (the "_inherit"-style
// accumulation pattern common to ORM frameworks built on dynamic class
// composition). Grounded on the teacher's internal/symbollinker cross-
// file name resolution shape (resolve a name across files, register a
// link, invalidate the link when the source symbol disappears), here
// specialized from "one name, one definition" to "one model name, many
// contributing classes, ordered by entry-point priority".
package modelregistry

import (
	"sort"

	"github.com/standardbeagle/corels/internal/arena"
)

// priorityFunc ranks a class symbol's owning entry point so contributions
// from the main project always beat addon contributions, matching
// spec.md §4.4's ordering rule. The Session wires this to
// entrypoint.Manager; the registry itself stays entry-point-agnostic so
// it can be unit tested without a filesystem.
type priorityFunc func(h arena.Handle) (priority int, sequence int)

// Registry maps a model name to its ordered contributor list.
type Registry struct {
	priority priorityFunc
	models   map[string][]arena.Handle
	// owner tracks, per class handle, which model names it currently
	// contributes to, so a rebuild or removal can retract exactly those
	// entries without rescanning every model.
	owner map[arena.Handle][]string
}

func New(priority priorityFunc) *Registry {
	return &Registry{
		priority: priority,
		models:   make(map[string][]arena.Handle),
		owner:    make(map[arena.Handle][]string),
	}
}

// Register records that class contributes to modelName, re-sorting that
// model's contributor list by priority then declaration order. Calling
// Register again for a class/model pair already on file is a no-op for
// that pair (idempotent re-declaration during a rebuild).
func (r *Registry) Register(modelName string, class arena.Handle) {
	for _, existing := range r.models[modelName] {
		if existing == class {
			return
		}
	}
	r.models[modelName] = append(r.models[modelName], class)
	r.owner[class] = append(r.owner[class], modelName)
	r.resort(modelName)
}

func (r *Registry) resort(modelName string) {
	list := r.models[modelName]
	sort.SliceStable(list, func(i, j int) bool {
		pi, si := r.priority(list[i])
		pj, sj := r.priority(list[j])
		if pi != pj {
			return pi < pj
		}
		return si < sj
	})
	r.models[modelName] = list
}

// Unregister retracts every model contribution previously registered by
// class, e.g. when its owning file is invalidated. Returns the set of
// model names that changed, so the Scheduler can re-enqueue Framework
// stage work for their other contributors.
func (r *Registry) Unregister(class arena.Handle) []string {
	names := r.owner[class]
	delete(r.owner, class)
	for _, name := range names {
		list := r.models[name]
		for i, h := range list {
			if h == class {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(r.models, name)
		} else {
			r.models[name] = list
		}
	}
	return names
}

// Lookup returns modelName's contributors in priority order.
func (r *Registry) Lookup(modelName string) ([]arena.Handle, bool) {
	list, ok := r.models[modelName]
	if !ok {
		return nil, false
	}
	out := make([]arena.Handle, len(list))
	copy(out, list)
	return out, true
}

// Names returns every registered model name, for completion and
// diagnostics ("did you mean" suggestions built on this list).
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
