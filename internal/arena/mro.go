package arena

import "fmt"

// MRO returns h's method resolution order via C3 linearization, computed
// lazily on first request and cached until InvalidateMRO drops it (an
// ArchEval rebuild that changes the class's base list does so). Grounded
// on spec.md §4.7's "MRO computation (C3 linearization, lazily cached on
// first request)"; the original Rust implementation's ClassSymbol.bases
// walk (core/symbols/class_symbol.rs) is an unordered HashSet with no
// linearization, so this is new behavior rather than a straight port.
func (a *Arena) MRO(h Handle) ([]Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mroLocked(h, nil)
}

func (a *Arena) mroLocked(h Handle, visiting []Handle) ([]Handle, error) {
	sym, ok := a.get(h)
	if !ok || sym.Kind != KindClass {
		return nil, fmt.Errorf("arena: MRO: %s is not a class", h)
	}
	if sym.mroValid {
		return sym.mroCache, nil
	}
	for _, v := range visiting {
		if v == h {
			return nil, fmt.Errorf("arena: MRO: inheritance cycle involving %s", h)
		}
	}
	visiting = append(visiting, h)

	var sequences [][]Handle
	for _, base := range sym.Class.Bases {
		baseSym, ok := a.get(base)
		if !ok || baseSym.Kind != KindClass {
			continue // unresolved or non-class base: omit, don't fail the whole MRO
		}
		baseMRO, err := a.mroLocked(base, visiting)
		if err != nil {
			return nil, err
		}
		sequences = append(sequences, append([]Handle(nil), baseMRO...))
	}
	if len(sym.Class.Bases) > 0 {
		tail := make([]Handle, 0, len(sym.Class.Bases))
		for _, base := range sym.Class.Bases {
			if baseSym, ok := a.get(base); ok && baseSym.Kind == KindClass {
				tail = append(tail, base)
			}
		}
		sequences = append(sequences, tail)
	}

	merged, err := c3Merge(sequences)
	if err != nil {
		return nil, fmt.Errorf("arena: MRO: %s: %w", sym.Name, err)
	}
	result := append([]Handle{h}, merged...)
	sym.mroCache = result
	sym.mroValid = true
	return result, nil
}

// c3Merge implements the C3 linearization merge step: repeatedly take
// the head of the first sequence that does not appear in the tail of any
// other sequence, append it, and strip it from every sequence.
func c3Merge(sequences [][]Handle) ([]Handle, error) {
	var result []Handle
	for {
		sequences = dropEmpty(sequences)
		if len(sequences) == 0 {
			return result, nil
		}
		var candidate Handle
		found := false
		for _, seq := range sequences {
			head := seq[0]
			if !inAnyTail(sequences, head) {
				candidate = head
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("inconsistent base ordering")
		}
		result = append(result, candidate)
		for i, seq := range sequences {
			sequences[i] = removeFromSeq(seq, candidate)
		}
	}
}

func dropEmpty(sequences [][]Handle) [][]Handle {
	out := sequences[:0]
	for _, s := range sequences {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func inAnyTail(sequences [][]Handle, h Handle) bool {
	for _, seq := range sequences {
		for _, c := range seq[1:] {
			if c == h {
				return true
			}
		}
	}
	return false
}

func removeFromSeq(seq []Handle, h Handle) []Handle {
	if len(seq) > 0 && seq[0] == h {
		return seq[1:]
	}
	out := seq[:0]
	for _, c := range seq {
		if c != h {
			out = append(out, c)
		}
	}
	return out
}
