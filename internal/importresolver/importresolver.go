// Package importresolver implements the engine's import statement
// resolution: relative-level prefix ascension, from-clause dotted
// walking, per-alias lookup with a filesystem fallback, star-import
// expansion, and stub-root tie-breaking. Grounded on the teacher's
// internal/core/import_resolver.go for the ImportBinding/per-extension
// probe struct shape (its regex-heuristic body is not reused: this
// resolver must be exact, not heuristic, per spec.md §4.5), and
// resolves the two Open Questions from spec.md §9 against
// original_source/core/import_resolver.rs: stub roots are ordinary
// search roots, and the prefix-walk/per-alias-lookup phases are kept
// disjoint so a from-clause tail segment is never appended twice.
package importresolver

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/corels/internal/arena"
	"github.com/standardbeagle/corels/internal/errs"
	"github.com/standardbeagle/corels/internal/types"
)

// StubRoot is a compiled-stub search root (typeshed-style .pyi trees),
// wired in by the Session from config.FeatureFlags (session.go's
// stubRootsFromConfig) rather than by internal/entrypoint, which is a
// pure root-classification package with no notion of stub trees.
type StubRoot struct {
	Path         string
	PreferOverFS bool
}

// ImportBinding records one resolved (or attempted) alias, the struct
// shape the teacher's import_resolver.go used for its per-file import
// graph, reused here as the resolver's return value per alias instead
// of a regex match.
type ImportBinding struct {
	Alias      string // the name bound into the importing file's scope
	Target     arena.Handle
	Unresolved bool
	Err        error
	Range      types.Range // the alias token's range, "" import's falls back to the statement Range
}

// Request describes one import statement to resolve.
type Request struct {
	FromFile   arena.Handle // File symbol that owns the import statement
	Level      int          // 0 = absolute; N = N leading dots in a from-clause
	FromModule string       // dotted module path after the leading dots, "" for plain `import x`
	Names      []AliasSpec
	Range      types.Range // the whole statement's source range, for a diagnostic that must span the from-line
}

type AliasSpec struct {
	Name  string // "*" for a wildcard import
	Alias string // "" if unaliased
	Range types.Range
}

// Resolver resolves import statements against the symbol graph,
// falling back to a filesystem probe (and registering newly discovered
// DiskDir/Package/File/Compiled symbols) when the graph doesn't yet
// have the target.
type Resolver struct {
	arena       *arena.Arena
	stubRoots   []StubRoot
	searchRoots []string // on-disk roots parallel to absolute entry points, used for "import foo" with no graph hit yet
}

func New(a *arena.Arena) *Resolver {
	return &Resolver{arena: a}
}

func (r *Resolver) SetStubRoots(roots []StubRoot) { r.stubRoots = roots }
func (r *Resolver) AddSearchRoot(path string)      { r.searchRoots = append(r.searchRoots, filepath.Clean(path)) }

// Resolve runs the full four-step algorithm and returns one binding per
// requested name (more than one for a star import).
func (r *Resolver) Resolve(req Request) []ImportBinding {
	prefix, err := r.ascendPrefix(req.FromFile, req.Level)
	if err != nil {
		return unresolvedAll(req.Names, req.Range, err)
	}

	prefix, err = r.walkFromClause(prefix, req.FromModule)
	if err != nil {
		return unresolvedAll(req.Names, req.Range, err)
	}

	var out []ImportBinding
	for _, name := range req.Names {
		if name.Name == "*" {
			out = append(out, r.expandStar(prefix)...)
			continue
		}
		out = append(out, r.resolveAlias(prefix, name, req.Range))
	}
	return out
}

func unresolvedAll(names []AliasSpec, stmtRange types.Range, err error) []ImportBinding {
	out := make([]ImportBinding, 0, len(names))
	for _, n := range names {
		bound := n.Alias
		if bound == "" {
			bound = n.Name
		}
		rng := n.Range
		if rng == (types.Range{}) {
			rng = stmtRange
		}
		out = append(out, ImportBinding{Alias: bound, Unresolved: true, Err: err, Range: rng})
	}
	return out
}

// ascendPrefix implements relative-level prefix resolution (spec.md
// §4.5 step 1). Level 0 means an absolute import: the starting prefix
// is the Arena's synthetic Root, so the from-clause's first segment is
// matched against the entry-point roots directly under it.
func (r *Resolver) ascendPrefix(fromFile arena.Handle, level int) (arena.Handle, error) {
	sym, ok := r.arena.Get(fromFile)
	if !ok {
		return arena.NilHandle, errs.NewUnresolvedError("<missing source file>", types.Range{})
	}
	if level == 0 {
		return r.arena.Root(), nil
	}

	cur := sym.Parent
	steps := level - 1
	// A file that is its package's own init file already sits at that
	// package's level; one less ascension step is consumed, mirroring
	// the original resolver's "decrement level by one if file_symbol is
	// a package" rule, adapted to this engine's separate File/Package
	// symbols.
	if parentSym, ok := r.arena.Get(cur); ok && parentSym.Kind == arena.KindPackage && parentSym.Package.InitFile == sym.FileID {
		if steps > 0 {
			steps--
		}
	}
	for steps > 0 {
		parentSym, ok := r.arena.Get(cur)
		if !ok || parentSym.Parent.IsNil() {
			return arena.NilHandle, errs.NewUnresolvedError(strings.Repeat(".", level), types.Range{})
		}
		cur = parentSym.Parent
		steps--
	}
	return cur, nil
}

// walkFromClause descends prefix by each dotted segment of module,
// probing the filesystem and registering a new DiskDir/Package/File
// symbol when the graph doesn't already have a child of that name. This
// is kept entirely separate from resolveAlias's per-alias lookup below,
// which is what prevents the from-clause tail segment from being
// appended a second time (spec.md §9, Open Question 2).
func (r *Resolver) walkFromClause(prefix arena.Handle, module string) (arena.Handle, error) {
	if module == "" {
		return prefix, nil
	}
	cur := prefix
	for _, seg := range strings.Split(module, ".") {
		if seg == "" {
			continue
		}
		next, ok := r.childNamed(cur, seg)
		if !ok {
			probed, ok := r.probe(cur, seg)
			if !ok {
				return arena.NilHandle, errs.NewUnresolvedError(module, types.Range{})
			}
			next = probed
		}
		cur = next
	}
	return cur, nil
}

// resolveAlias performs step 3: a direct child lookup, falling back to
// a filesystem probe, and finally a recorded UnresolvedError if neither
// finds a target. The binding is recorded either way so that a
// later-appearing file retroactively invalidates this import's
// dependents (spec.md §4.6 invalidation protocol).
func (r *Resolver) resolveAlias(prefix arena.Handle, name AliasSpec, stmtRange types.Range) ImportBinding {
	bound := name.Alias
	if bound == "" {
		bound = name.Name
	}
	rng := name.Range
	if rng == (types.Range{}) {
		rng = stmtRange
	}
	if target, ok := r.childNamed(prefix, name.Name); ok {
		return ImportBinding{Alias: bound, Target: target, Range: rng}
	}
	if target, ok := r.probe(prefix, name.Name); ok {
		return ImportBinding{Alias: bound, Target: target, Range: rng}
	}
	return ImportBinding{Alias: bound, Unresolved: true, Err: errs.NewUnresolvedError(name.Name, rng), Range: rng}
}

// expandStar binds every public (non-underscore-prefixed) child of
// prefix, per "from pkg import *" semantics.
func (r *Resolver) expandStar(prefix arena.Handle) []ImportBinding {
	sym, ok := r.arena.Get(prefix)
	if !ok {
		return nil
	}
	out := make([]ImportBinding, 0, len(sym.Children))
	for _, c := range sym.Children {
		cs, ok := r.arena.Get(c)
		if !ok || strings.HasPrefix(cs.Name, "_") {
			continue
		}
		out = append(out, ImportBinding{Alias: cs.Name, Target: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

func (r *Resolver) childNamed(parent arena.Handle, name string) (arena.Handle, bool) {
	if h, ok := r.arena.Lookup(parent, []string{name}); ok {
		return h, true
	}
	// A workspace scan names File symbols after the file, ".py" included.
	return r.arena.Lookup(parent, []string{name + ".py"})
}

// probe consults the filesystem under parent's on-disk path (and, with
// stub-root tie-breaking, the configured stub roots) for a child named
// name that the symbol graph hasn't registered yet, adding it as a new
// DiskDir/Package/File/Compiled symbol on success.
func (r *Resolver) probe(parent arena.Handle, name string) (arena.Handle, bool) {
	parentSym, ok := r.arena.Get(parent)
	if !ok {
		return arena.NilHandle, false
	}
	dir := dirPathOf(parentSym)

	var stubHit string
	var preferStub bool
	for _, sr := range r.stubRoots {
		candidate := filepath.Join(sr.Path, name+".pyi")
		if fileExists(candidate) {
			stubHit = candidate
			preferStub = sr.PreferOverFS
			break
		}
	}

	if dir != "" {
		if pkgDir := filepath.Join(dir, name); dirExists(pkgDir) {
			if stubHit != "" && preferStub {
				return r.registerCompiled(parent, name, stubHit)
			}
			if fileExists(filepath.Join(pkgDir, "__init__.py")) {
				return r.registerPackage(parent, name, pkgDir)
			}
			return r.registerDiskDir(parent, name, pkgDir)
		}
		if filePath := filepath.Join(dir, name+".py"); fileExists(filePath) {
			if stubHit != "" && preferStub {
				return r.registerCompiled(parent, name, stubHit)
			}
			return r.registerFile(parent, name, filePath)
		}
	}
	if stubHit != "" {
		return r.registerCompiled(parent, name, stubHit)
	}
	return arena.NilHandle, false
}

func dirPathOf(sym *arena.Symbol) string {
	switch sym.Kind {
	case arena.KindPackage:
		return sym.Package.Path
	case arena.KindDiskDir:
		return sym.DiskDir.Path
	default:
		return ""
	}
}

func (r *Resolver) registerPackage(parent arena.Handle, name, path string) (arena.Handle, bool) {
	h, err := r.arena.AddChild(parent, &arena.Symbol{Kind: arena.KindPackage, Name: name, Package: &arena.PackageData{Path: path}})
	return h, err == nil
}

func (r *Resolver) registerDiskDir(parent arena.Handle, name, path string) (arena.Handle, bool) {
	h, err := r.arena.AddChild(parent, &arena.Symbol{Kind: arena.KindDiskDir, Name: name, DiskDir: &arena.DiskDirData{Path: path}})
	return h, err == nil
}

func (r *Resolver) registerFile(parent arena.Handle, name, path string) (arena.Handle, bool) {
	h, err := r.arena.AddChild(parent, &arena.Symbol{Kind: arena.KindFile, Name: name, File: &arena.FileData{Path: path}})
	return h, err == nil
}

func (r *Resolver) registerCompiled(parent arena.Handle, name, path string) (arena.Handle, bool) {
	h, err := r.arena.AddChild(parent, &arena.Symbol{Kind: arena.KindCompiled, Name: name, Compiled: &arena.CompiledData{IsStub: true}})
	return h, err == nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
