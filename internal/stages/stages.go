// Package stages implements the four build-stage workers the Scheduler
// drives: Arch (declare symbols from the AST), ArchEval (resolve
// imports and base classes, compute MRO), Framework (assemble the Model
// Registry from class contributions), and Validation (emit
// body-level diagnostics). Grounded on the teacher's
// internal/symbollinker/*extractor.go (declaration extraction walk),
// internal/core/reference_tracker.go (cross-symbol reference linking)
// and internal/core/semantic_annotator.go (a final annotation pass over
// already-linked symbols), adapted from Go's single-language symbol
// extraction to this engine's tagged Python-like AST.
package stages

import (
	"context"
	"strings"

	"github.com/standardbeagle/corels/internal/arena"
	"github.com/standardbeagle/corels/internal/config"
	"github.com/standardbeagle/corels/internal/filemanager"
	"github.com/standardbeagle/corels/internal/importresolver"
	"github.com/standardbeagle/corels/internal/modelregistry"
	"github.com/standardbeagle/corels/internal/parser"
	"github.com/standardbeagle/corels/internal/types"
)

// Context bundles the shared collaborators every stage worker needs.
type Context struct {
	Arena     *arena.Arena
	Files     *filemanager.Manager
	Resolver  *importresolver.Resolver
	Models    *modelregistry.Registry
	ModelAttr string // the keyword-argument/assignment name that declares a model's name, e.g. "_name"

	// DiagMissingImports governs whether (and for which imports)
	// resolveImports publishes an Unresolved diagnostic, per
	// config.DiagMissingImportsMode (spec.md §4.4 step 3d, §6). The zero
	// value behaves like DiagMissingImportsNone: no diagnostics.
	DiagMissingImports config.DiagMissingImportsMode
}

func (c *Context) modelAttr() string {
	if c.ModelAttr == "" {
		return "_name"
	}
	return c.ModelAttr
}

// ArchWorker declares symbols (Class/Function/Variable, nested
// recursively) from a File's parsed AST. It operates purely on File
// handles; Arch never resolves a name across files.
func ArchWorker(c *Context) StageWorkerFunc {
	return func(ctx context.Context, h arena.Handle) ([]arena.Handle, error) {
		sym, ok := c.Arena.Get(h)
		if !ok || sym.Kind != arena.KindFile {
			return nil, nil
		}
		tree, err := c.Files.EnsureAST(sym.FileID)
		if err != nil {
			return nil, err
		}
		declareBody(c, h, tree.Root.Children)
		return nil, nil
	}
}

// StageWorkerFunc matches scheduler.StageFunc's shape without importing
// the scheduler package, keeping stages independent of how it is driven.
type StageWorkerFunc func(ctx context.Context, h arena.Handle) ([]arena.Handle, error)

func declareBody(c *Context, parent arena.Handle, nodes []*parser.Node) {
	parentSym, _ := c.Arena.Get(parent)
	fileID := types.FileID(0)
	if parentSym != nil {
		fileID = parentSym.FileID
	}
	for _, n := range nodes {
		switch n.Kind {
		case parser.KindClassDef:
			declareClass(c, parent, fileID, n)
		case parser.KindFunctionDef:
			declareFunction(c, parent, fileID, n)
		case parser.KindAssignment:
			declareAssignment(c, parent, fileID, n)
		case parser.KindImport:
			recordImport(c, parent, n)
		case parser.KindImportFrom:
			recordImportFrom(c, parent, n)
		case parser.KindOther:
			declareBody(c, parent, n.Children) // flattened if/try/with/for/while block
		}
	}
}

func declareClass(c *Context, parent arena.Handle, fileID types.FileID, n *parser.Node) {
	h, err := c.Arena.AddChild(parent, &arena.Symbol{
		Kind: arena.KindClass, Name: n.Name, FileID: fileID,
		Bytes: n.Bytes, Range: n.Range,
		Class: &arena.ClassData{BaseNames: n.Bases, Decorators: n.Decorators},
	})
	if err != nil {
		return
	}
	declareBody(c, h, n.Children)
}

func declareFunction(c *Context, parent arena.Handle, fileID types.FileID, n *parser.Node) {
	params := make([]string, 0, len(n.Params))
	for _, p := range n.Params {
		params = append(params, p.Name)
	}
	h, err := c.Arena.AddChild(parent, &arena.Symbol{
		Kind: arena.KindFunction, Name: n.Name, FileID: fileID,
		Bytes: n.Bytes, Range: n.Range,
		Function: &arena.FunctionData{Params: params, IsStatic: n.IsStatic, IsProperty: n.IsProperty, BodyRange: n.Bytes},
	})
	if err != nil {
		return
	}
	declareBody(c, h, n.Children)
}

func declareAssignment(c *Context, parent arena.Handle, fileID types.FileID, n *parser.Node) {
	eval := classifyEvaluation(n)
	if existing, ok := c.Arena.Lookup(parent, []string{n.Name}); ok {
		if sym, ok := c.Arena.Get(existing); ok && sym.Kind == arena.KindVariable {
			sym.Variable.Evaluations = append(sym.Variable.Evaluations, eval)
			return
		}
	}
	_, _ = c.Arena.AddChild(parent, &arena.Symbol{
		Kind: arena.KindVariable, Name: n.Name, FileID: fileID,
		Bytes: n.Bytes, Range: n.Range,
		Variable: &arena.VariableData{Evaluations: []arena.Evaluation{eval}},
	})
}

func classifyEvaluation(n *parser.Node) arena.Evaluation {
	switch n.ValueKind {
	case parser.ValueConstNumber:
		return arena.ConstEvaluation(arena.ConstNumber, n.ValueText)
	case parser.ValueConstString:
		return arena.ConstEvaluation(arena.ConstString, n.ValueText)
	case parser.ValueConstBool:
		return arena.ConstEvaluation(arena.ConstBool, n.ValueText)
	case parser.ValueConstNone:
		return arena.ConstEvaluation(arena.ConstNone, "")
	case parser.ValueContainer:
		return arena.Evaluation{Kind: arena.EvalContainer}
	case parser.ValueRefName:
		return arena.Evaluation{Kind: arena.EvalRef, RefName: n.ValueRef}
	default:
		return arena.Evaluation{Kind: arena.EvalRef, RefName: n.ValueRef}
	}
}

func recordImport(c *Context, fileHandle arena.Handle, n *parser.Node) {
	sym, ok := c.Arena.Get(fileHandle)
	if !ok {
		return
	}
	names := make([]arena.ImportName, 0, len(n.Aliases))
	for _, a := range n.Aliases {
		names = append(names, arena.ImportName{Name: a.Name, Alias: a.Alias, Range: a.Range})
	}
	sym.File.Imports = append(sym.File.Imports, arena.ImportDecl{Names: names, Range: n.Range})
}

func recordImportFrom(c *Context, fileHandle arena.Handle, n *parser.Node) {
	sym, ok := c.Arena.Get(fileHandle)
	if !ok {
		return
	}
	names := make([]arena.ImportName, 0, len(n.Aliases))
	for _, a := range n.Aliases {
		names = append(names, arena.ImportName{Name: a.Name, Alias: a.Alias, Range: a.Range})
	}
	sym.File.Imports = append(sym.File.Imports, arena.ImportDecl{Level: n.Level, FromModule: n.FromModule, Names: names, Range: n.Range})
}

// ArchEvalWorker resolves a File's recorded import statements into
// ImportBindings, then resolves every Class symbol declared in that
// file against those bindings and its local siblings, and finally
// triggers MRO computation so it's cached before any feature handler
// needs it.
func ArchEvalWorker(c *Context) StageWorkerFunc {
	return func(ctx context.Context, h arena.Handle) ([]arena.Handle, error) {
		sym, ok := c.Arena.Get(h)
		if !ok || sym.Kind != arena.KindFile {
			return nil, nil
		}
		resolveImports(c, h, sym)
		classes := collectClasses(c, h)
		for _, cls := range classes {
			resolveBases(c, h, cls)
		}
		for _, cls := range classes {
			c.Arena.InvalidateMRO(cls)
			_, _ = c.Arena.MRO(cls) // best-effort: an unresolvable base just omits from the chain
		}
		return nil, nil
	}
}

func resolveImports(c *Context, fileHandle arena.Handle, sym *arena.Symbol) {
	bindings := make(map[string]arena.Handle)
	var diags []types.Diagnostic
	for _, decl := range sym.File.Imports {
		names := make([]importresolver.AliasSpec, 0, len(decl.Names))
		for _, n := range decl.Names {
			names = append(names, importresolver.AliasSpec{Name: n.Name, Alias: n.Alias, Range: n.Range})
		}
		results := c.Resolver.Resolve(importresolver.Request{
			FromFile: fileHandle, Level: decl.Level, FromModule: decl.FromModule, Names: names, Range: decl.Range,
		})
		for _, res := range results {
			if !res.Unresolved {
				bindings[res.Alias] = res.Target
				continue
			}
			if severity, ok := unresolvedImportSeverity(c.DiagMissingImports, decl.Level); ok {
				diags = append(diags, types.Diagnostic{
					Range:    decl.Range,
					Severity: severity,
					Source:   "import",
					Message:  "import \"" + res.Alias + "\" could not be resolved",
				})
			}
		}
	}
	sym.File.ImportBindings = bindings
	c.Files.SetStageDiagnostics(sym.FileID, int(arena.StageArchEval), diags)
}

// unresolvedImportSeverity maps the diag-missing-imports policy to a
// diagnostic severity for one unresolved import, or reports that the
// policy suppresses it. DiagMissingImportsOnlyWorkspace only reports a
// relative import (level > 0): a bare "import x" with no leading dots
// may well name a third-party package this workspace never vendors, so
// only a statement that can only ever resolve inside this workspace's
// own package tree is reported under that narrower policy.
func unresolvedImportSeverity(policy config.DiagMissingImportsMode, level int) (types.Severity, bool) {
	switch policy {
	case config.DiagMissingImportsAll:
		return types.SeverityWarning, true
	case config.DiagMissingImportsOnlyWorkspace:
		return types.SeverityWarning, level > 0
	default:
		return 0, false
	}
}

func collectClasses(c *Context, h arena.Handle) []arena.Handle {
	var out []arena.Handle
	var walk func(arena.Handle)
	walk = func(h arena.Handle) {
		sym, ok := c.Arena.Get(h)
		if !ok {
			return
		}
		if sym.Kind == arena.KindClass {
			out = append(out, h)
		}
		for _, child := range sym.Children {
			walk(child)
		}
	}
	walk(h)
	return out
}

// resolveBases resolves each of cls's written BaseNames (possibly
// dotted) against the owning file's import bindings and local scope,
// recording whichever resolve as weak Bases references and recording an
// import dependency so a later change to the base invalidates cls.
func resolveBases(c *Context, fileHandle arena.Handle, cls arena.Handle) {
	clsSym, ok := c.Arena.Get(cls)
	if !ok {
		return
	}
	fileSym, _ := c.Arena.Get(fileHandle)
	// Bases is kept index-aligned with BaseNames (arena.NilHandle standing
	// in for an unresolved base) so Validation can report exactly which
	// written name failed to resolve.
	bases := make([]arena.Handle, len(clsSym.Class.BaseNames))
	for i, baseName := range clsSym.Class.BaseNames {
		if target, ok := resolveDottedName(c, fileSym, baseName); ok {
			bases[i] = target
			c.Arena.AddDependency(cls, arena.StageArchEval, target)
		}
	}
	clsSym.Class.Bases = bases
}

func resolveDottedName(c *Context, fileSym *arena.Symbol, dotted string) (arena.Handle, bool) {
	segs := strings.Split(dotted, ".")
	if len(segs) == 0 {
		return arena.NilHandle, false
	}
	head := segs[0]
	var cur arena.Handle
	if h, ok := c.Arena.Lookup(fileSym.Handle, []string{head}); ok {
		cur = h
	} else if h, ok := fileSym.ImportBindings[head]; ok {
		cur = h
	} else {
		return arena.NilHandle, false
	}
	if len(segs) == 1 {
		return cur, true
	}
	return c.Arena.Lookup(cur, segs[1:])
}

// FrameworkWorker assembles the Model Registry: a class contributes to
// the framework model named by its _name-style class attribute (or, if
// absent, every model its bases already contribute to, modeling the
// "_inherit" accumulation idiom).
func FrameworkWorker(c *Context) StageWorkerFunc {
	return func(ctx context.Context, h arena.Handle) ([]arena.Handle, error) {
		sym, ok := c.Arena.Get(h)
		if !ok || sym.Kind != arena.KindClass {
			return nil, nil
		}
		var modelNames []string
		if name, ok := classAttrString(c, h, c.modelAttr()); ok {
			modelNames = append(modelNames, name)
		} else {
			for _, base := range sym.Class.Bases {
				if baseSym, ok := c.Arena.Get(base); ok && baseSym.Kind == arena.KindClass {
					modelNames = append(modelNames, baseSym.Class.ModelNames...)
				}
			}
		}
		sym.Class.ModelNames = modelNames
		for _, name := range modelNames {
			c.Models.Register(name, h)
		}
		return nil, nil
	}
}

func classAttrString(c *Context, cls arena.Handle, attr string) (string, bool) {
	h, ok := c.Arena.Lookup(cls, []string{attr})
	if !ok {
		return "", false
	}
	sym, ok := c.Arena.Get(h)
	if !ok || sym.Kind != arena.KindVariable || len(sym.Variable.Evaluations) == 0 {
		return "", false
	}
	last := sym.Variable.Evaluations[len(sym.Variable.Evaluations)-1]
	if last.Kind != arena.EvalConst || last.ConstKind != arena.ConstString {
		return "", false
	}
	return strings.Trim(last.ConstText, `"'`), true
}

// ValidationWorker emits diagnostics for class base names that ArchEval
// could not resolve (model-name strings are not checked) and for
// variable assignments whose right-hand side names something nothing in
// scope defines. Both are surfaced as warnings rather than errors since
// the target addon may simply not be loaded in this workspace. The
// undefined-name pass only covers the single-name-reference assignment
// shape the AST already records as an EvalRef Evaluation (x = y, x =
// y.z) rather than arbitrary expression statements, which the parser
// does not retain past the Arch stage.
func ValidationWorker(c *Context) StageWorkerFunc {
	return func(ctx context.Context, h arena.Handle) ([]arena.Handle, error) {
		sym, ok := c.Arena.Get(h)
		if !ok || sym.Kind != arena.KindFile {
			return nil, nil
		}
		var diags []types.Diagnostic
		for _, cls := range collectClasses(c, h) {
			clsSym, _ := c.Arena.Get(cls)
			for i, baseName := range clsSym.Class.BaseNames {
				if i >= len(clsSym.Class.Bases) || clsSym.Class.Bases[i].IsNil() {
					diags = append(diags, types.Diagnostic{
						Range:    clsSym.Range,
						Severity: types.SeverityWarning,
						Source:   "import",
						Message:  "base class \"" + baseName + "\" could not be resolved",
					})
				}
			}
		}
		for _, v := range collectVariables(c, h) {
			vSym, ok := c.Arena.Get(v)
			if !ok || vSym.Variable == nil {
				continue
			}
			for _, ev := range vSym.Variable.Evaluations {
				if ev.Kind != arena.EvalRef || ev.RefName == "" {
					continue
				}
				if resolveRefName(c, sym, vSym.Parent, ev.RefName) {
					continue
				}
				diags = append(diags, types.Diagnostic{
					Range:    vSym.Range,
					Severity: types.SeverityWarning,
					Source:   "validation",
					Message:  "undefined name \"" + ev.RefName + "\"",
				})
			}
		}
		c.Files.SetStageDiagnostics(sym.FileID, int(arena.StageValidation), diags)
		return nil, nil
	}
}

func collectVariables(c *Context, h arena.Handle) []arena.Handle {
	var out []arena.Handle
	var walk func(arena.Handle)
	walk = func(h arena.Handle) {
		sym, ok := c.Arena.Get(h)
		if !ok {
			return
		}
		if sym.Kind == arena.KindVariable {
			out = append(out, h)
		}
		for _, child := range sym.Children {
			walk(child)
		}
	}
	walk(h)
	return out
}

// pythonBuiltins is a small, deliberately incomplete set of names that
// are always in scope without an import: enough to keep the
// undefined-name pass from flagging the target language's own built-ins
// as errors, not a full builtins module listing.
var pythonBuiltins = map[string]bool{
	"self": true, "cls": true, "super": true,
	"None": true, "True": true, "False": true,
	"len": true, "str": true, "int": true, "float": true, "bool": true,
	"list": true, "dict": true, "set": true, "tuple": true,
	"print": true, "range": true, "enumerate": true, "zip": true,
	"isinstance": true, "object": true, "Exception": true,
}

// resolveRefName reports whether name's first dotted segment resolves
// against fileSym's import bindings or any enclosing scope reachable by
// walking up from scope: a function's own parameters, and every
// ancestor's declared children (module top-level, enclosing class body,
// enclosing function locals).
func resolveRefName(c *Context, fileSym *arena.Symbol, scope arena.Handle, name string) bool {
	head := name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		head = name[:i]
	}
	if pythonBuiltins[head] {
		return true
	}
	if _, ok := fileSym.ImportBindings[head]; ok {
		return true
	}
	for cur := scope; !cur.IsNil(); {
		curSym, ok := c.Arena.Get(cur)
		if !ok {
			break
		}
		if curSym.Kind == arena.KindFunction && curSym.Function != nil {
			for _, p := range curSym.Function.Params {
				if p == head {
					return true
				}
			}
		}
		if _, ok := c.Arena.Lookup(cur, []string{head}); ok {
			return true
		}
		cur = curSym.Parent
	}
	return false
}
