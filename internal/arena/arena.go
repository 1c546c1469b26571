package arena

import (
	"fmt"
	"sync"

	"github.com/standardbeagle/corels/internal/types"
)

// slot is one entry in the Arena's parallel-array storage. Using a
// generation-tagged array instead of map[Handle]*Symbol mirrors the
// cache-friendly, swap-and-delete discipline of the teacher's
// internal/core/symbol_store.go, extended with the generation field
// that is this engine's stand-in for reference-counted weak pointers.
type slot struct {
	generation uint32
	alive      bool
	symbol     *Symbol
}

// Arena owns the symbol graph. The engine-level mutex (internal/session)
// is the single writer lock in production; Arena additionally guards
// itself with an RWMutex so it remains safe to unit-test in isolation
// and so read-only Feature Handlers can run concurrently with each
// other, per spec.md §5.
type Arena struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32

	rootHandle Handle

	// fileScopes indexes File/Class/Function symbols by owning file for
	// GetScopeSymbol, avoiding an O(n) walk of the whole graph per
	// lookup.
	fileScopes map[types.FileID][]Handle
}

// New creates an Arena with its synthetic Root symbol already inserted.
func New() *Arena {
	a := &Arena{
		fileScopes: make(map[types.FileID][]Handle),
	}
	// index 0 is reserved as the nil slot so the zero Handle is never valid.
	a.slots = append(a.slots, slot{})
	root := &Symbol{Kind: KindRoot, Name: "<root>", Root: &RootData{}}
	a.rootHandle = a.insert(root)
	return a
}

// Root returns the handle of the synthetic apex symbol.
func (a *Arena) Root() Handle { return a.rootHandle }

func (a *Arena) insert(sym *Symbol) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx].alive = true
		a.slots[idx].symbol = sym
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot{generation: 1, alive: true, symbol: sym})
	}
	h := Handle{index: idx, generation: a.slots[idx].generation}
	sym.Handle = h
	return h
}

// AddChild attaches symbol under parent. Child-name uniqueness within
// parent is enforced, matching spec.md §4.2.
func (a *Arena) AddChild(parent Handle, sym *Symbol) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	parentSlot, ok := a.get(parent)
	if !ok {
		return NilHandle, fmt.Errorf("arena: AddChild: parent %s is not alive", parent)
	}
	for _, c := range parentSlot.Children {
		if cs, ok := a.get(c); ok && cs.Name == sym.Name {
			return NilHandle, fmt.Errorf("arena: AddChild: %q already exists under %s", sym.Name, parent)
		}
	}
	sym.Parent = parent
	h := a.insert(sym)
	parentSlot.Children = append(parentSlot.Children, h)
	if parentSlot.Kind == KindRoot {
		parentSlot.Root.EntryPointRoots = append(parentSlot.Root.EntryPointRoots, h)
	}
	a.indexScope(h, sym)
	return h, nil
}

func (a *Arena) indexScope(h Handle, sym *Symbol) {
	switch sym.Kind {
	case KindFile, KindClass, KindFunction:
		if sym.FileID != 0 {
			a.fileScopes[sym.FileID] = append(a.fileScopes[sym.FileID], h)
		}
	}
}

func (a *Arena) deindexScope(h Handle, sym *Symbol) {
	if sym.FileID == 0 {
		return
	}
	list := a.fileScopes[sym.FileID]
	for i, c := range list {
		if c == h {
			a.fileScopes[sym.FileID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// get resolves a handle without bumping generations; caller must hold a.mu.
func (a *Arena) get(h Handle) (*Symbol, bool) {
	if h.IsNil() || int(h.index) >= len(a.slots) {
		return nil, false
	}
	s := a.slots[h.index]
	if !s.alive || s.generation != h.generation {
		return nil, false
	}
	return s.symbol, true
}

// Upgrade resolves a weak Handle to its live Symbol. Returns ok=false if
// the target has been removed (and possibly its slot reused), modeling
// the "stale handles fail upgrade" design note.
func (a *Arena) Upgrade(h Handle) (*Symbol, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.get(h)
}

// Remove detaches symbol from its parent, clears both sides of its
// dependency tables, and marks all of its dependents Invalid from the
// stage they depended on onward. Returns the set of dependent handles
// that must be re-enqueued by the Scheduler.
func (a *Arena) Remove(h Handle) []Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removeLocked(h)
}

func (a *Arena) removeLocked(h Handle) []Handle {
	sym, ok := a.get(h)
	if !ok {
		return nil
	}

	// Recursively remove owned children first so ownership never outlives
	// its parent's slot.
	var affected []Handle
	for _, c := range append([]Handle(nil), sym.Children...) {
		affected = append(affected, a.removeLocked(c)...)
	}

	if parent, ok := a.get(sym.Parent); ok {
		for i, c := range parent.Children {
			if c == h {
				parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
				break
			}
		}
		if parent.Kind == KindRoot {
			for i, c := range parent.Root.EntryPointRoots {
				if c == h {
					parent.Root.EntryPointRoots = append(parent.Root.EntryPointRoots[:i], parent.Root.EntryPointRoots[i+1:]...)
					break
				}
			}
		}
	}

	for stage := Stage(0); stage < StageCount; stage++ {
		for _, dep := range sym.Dependencies[stage] {
			if depSym, ok := a.get(dep); ok {
				depSym.Dependents[stage] = removeHandle(depSym.Dependents[stage], h)
			}
		}
		for _, dependent := range sym.Dependents[stage] {
			if depSym, ok := a.get(dependent); ok {
				for s := stage; s < StageCount; s++ {
					depSym.Status[s] = StatusInvalid
				}
				affected = append(affected, dependent)
			}
		}
	}

	a.deindexScope(h, sym)
	a.slots[h.index].alive = false
	a.slots[h.index].symbol = nil
	a.slots[h.index].generation++
	a.free = append(a.free, h.index)
	return affected
}

func removeHandle(list []Handle, h Handle) []Handle {
	for i, c := range list {
		if c == h {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Lookup walks an ownership path by name, returning the leaf or
// (NilHandle, false).
func (a *Arena) Lookup(parent Handle, names []string) (Handle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cur := parent
	for _, name := range names {
		sym, ok := a.get(cur)
		if !ok {
			return NilHandle, false
		}
		var next Handle
		found := false
		for _, c := range sym.Children {
			if cs, ok := a.get(c); ok && cs.Name == name {
				next = c
				found = true
				break
			}
		}
		if !found {
			return NilHandle, false
		}
		cur = next
	}
	return cur, true
}

// GetInParents ascends ownership edges from symbol (including symbol
// itself when includeSelf) until one of kinds is found.
func (a *Arena) GetInParents(h Handle, kinds map[Kind]bool, includeSelf bool) (Handle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cur := h
	first := true
	for {
		sym, ok := a.get(cur)
		if !ok {
			return NilHandle, false
		}
		if (!first || includeSelf) && kinds[sym.Kind] {
			return cur, true
		}
		first = false
		if sym.Parent.IsNil() {
			return NilHandle, false
		}
		cur = sym.Parent
	}
}

// GetScopeSymbol returns the innermost class/function/file symbol whose
// source range contains offset.
func (a *Arena) GetScopeSymbol(fileID types.FileID, offset int) (Handle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var best Handle
	bestSize := -1
	for _, h := range a.fileScopes[fileID] {
		sym, ok := a.get(h)
		if !ok || !sym.Bytes.Contains(offset) {
			continue
		}
		size := sym.Bytes.End - sym.Bytes.Start
		if bestSize == -1 || size < bestSize {
			best = h
			bestSize = size
		}
	}
	return best, bestSize != -1
}

// QualifiedName returns the dotted sequence of ancestor names up to (but
// excluding) Root.
func (a *Arena) QualifiedName(h Handle) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var parts []string
	cur := h
	for {
		sym, ok := a.get(cur)
		if !ok || sym.Kind == KindRoot {
			break
		}
		parts = append([]string{sym.Name}, parts...)
		cur = sym.Parent
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

// SetStatus sets symbol's status at stage.
func (a *Arena) SetStatus(h Handle, stage Stage, status Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sym, ok := a.get(h); ok {
		sym.Status[stage] = status
	}
}

// GetStatus returns symbol's status at stage.
func (a *Arena) GetStatus(h Handle, stage Stage) Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if sym, ok := a.get(h); ok {
		return sym.Status[stage]
	}
	return StatusInvalid
}

// AddDependency records that dependent's stage-`stage` result depends on
// dependency's stage-`stage` state, maintaining both sides of the table
// (spec.md §8 "Dependency symmetry").
func (a *Arena) AddDependency(dependent Handle, stage Stage, dependency Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	depSym, ok1 := a.get(dependent)
	targetSym, ok2 := a.get(dependency)
	if !ok1 || !ok2 {
		return
	}
	for _, d := range depSym.Dependencies[stage] {
		if d == dependency {
			return
		}
	}
	depSym.Dependencies[stage] = append(depSym.Dependencies[stage], dependency)
	targetSym.Dependents[stage] = append(targetSym.Dependents[stage], dependent)
}

// ClearDependencies drops symbol's recorded dependencies at stage (and
// the matching dependents entries on the other side), ahead of
// re-declaring them during a rebuild.
func (a *Arena) ClearDependencies(h Handle, stage Stage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sym, ok := a.get(h)
	if !ok {
		return
	}
	for _, dep := range sym.Dependencies[stage] {
		if depSym, ok := a.get(dep); ok {
			depSym.Dependents[stage] = removeHandle(depSym.Dependents[stage], h)
		}
	}
	sym.Dependencies[stage] = nil
}

// Dependents returns a copy of symbol's stage dependents.
func (a *Arena) Dependents(h Handle, stage Stage) []Handle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	sym, ok := a.get(h)
	if !ok {
		return nil
	}
	out := make([]Handle, len(sym.Dependents[stage]))
	copy(out, sym.Dependents[stage])
	return out
}

// Get is a convenience read used by packages (importresolver, stages)
// that need direct field access without re-threading Upgrade
// everywhere; it returns the same result as Upgrade.
func (a *Arena) Get(h Handle) (*Symbol, bool) { return a.Upgrade(h) }

// InvalidateMRO drops the cached linearization for h, e.g. when its base
// list changes during an ArchEval rebuild.
func (a *Arena) InvalidateMRO(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sym, ok := a.get(h); ok {
		sym.mroValid = false
		sym.mroCache = nil
	}
}
