// Package entrypoint manages the ordered list of workspace roots the
// engine indexes from: the main project root, addon search paths, and
// ad-hoc custom roots added at runtime. Grounded on the teacher's
// internal/config.Project/Index shape (root path, include/exclude globs)
// and internal/config/build_artifact_detector.go's directory
// classification (there: Cargo.toml/pyproject.toml/go.mod sniffing;
// here: an __init__-equivalent marker file deciding Package vs. DiskDir).
package entrypoint

import (
	"os"
	"path/filepath"

	"github.com/standardbeagle/corels/internal/arena"
)

// Kind orders entry points by resolution priority: Main beats Addon
// beats Custom when the same dotted name is reachable from more than
// one root (spec.md §4.3).
type Kind int

const (
	KindMain Kind = iota
	KindAddon
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindAddon:
		return "addon"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// packageMarkers lists the file names that, if present in a directory,
// promote it from a plain DiskDir to a Package entry point root.
var packageMarkers = []string{"__init__.py", "__manifest__.py"}

// Entry is one configured root.
type Entry struct {
	Kind Kind
	Path string

	// handle is filled in lazily the first time the root is actually
	// walked; spec.md §4.3 requires entry points be registered without
	// forcing a filesystem walk up front.
	handle  arena.Handle
	resolved bool
}

// Manager holds the ordered entry point list and the symbol each one
// materializes to once resolved.
type Manager struct {
	entries []*Entry
}

func New() *Manager {
	return &Manager{}
}

// Add registers a root at the end of its kind's priority band: all Main
// entries precede all Addon entries, which precede all Custom entries,
// preserving relative order of addition within a band.
func (m *Manager) Add(kind Kind, path string) *Entry {
	e := &Entry{Kind: kind, Path: filepath.Clean(path)}
	insertAt := len(m.entries)
	for i, existing := range m.entries {
		if existing.Kind > kind {
			insertAt = i
			break
		}
	}
	m.entries = append(m.entries, nil)
	copy(m.entries[insertAt+1:], m.entries[insertAt:])
	m.entries[insertAt] = e
	return e
}

// Remove drops a Custom entry point (the only kind removable at
// runtime per spec.md; Main/Addon roots come from configuration).
func (m *Manager) Remove(path string) bool {
	clean := filepath.Clean(path)
	for i, e := range m.entries {
		if e.Path == clean && e.Kind == KindCustom {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns the full ordered list, Main first, then Addon, then
// Custom, each band in insertion order.
func (m *Manager) Entries() []*Entry {
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Resolve materializes e's root symbol under parent in a if it hasn't
// been already, classifying the root directory as Package or DiskDir by
// marker-file presence. Resolution is idempotent: calling Resolve again
// on an already-resolved entry just returns its cached handle.
func (m *Manager) Resolve(a *arena.Arena, parent arena.Handle, e *Entry) (arena.Handle, error) {
	if e.resolved {
		return e.handle, nil
	}
	name := filepath.Base(e.Path)
	sym := classify(e.Path, name)
	h, err := a.AddChild(parent, sym)
	if err != nil {
		return arena.NilHandle, err
	}
	e.handle = h
	e.resolved = true
	return h, nil
}

// ClassifySymbol builds the Arena symbol for a directory at path, named
// name, applying the same Package/DiskDir marker-file rule Resolve uses
// for entry-point roots. Exported for Session's workspace walk, which
// applies the same classification recursively to every subdirectory
// below a resolved entry point.
func ClassifySymbol(path, name string) *arena.Symbol {
	return classify(path, name)
}

func classify(path, name string) *arena.Symbol {
	for _, marker := range packageMarkers {
		if fileExists(filepath.Join(path, marker)) {
			return &arena.Symbol{
				Kind:    arena.KindPackage,
				Name:    name,
				Package: &arena.PackageData{Path: path},
			}
		}
	}
	return &arena.Symbol{
		Kind:    arena.KindDiskDir,
		Name:    name,
		DiskDir: &arena.DiskDirData{Path: path},
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
