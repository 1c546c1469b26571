// Package features implements the engine's read-only editor-facing
// operations: Definition, Hover, Completion, and Diagnostics. Each
// handler resolves the request's position to an owning scope symbol via
// Arena.GetScopeSymbol, then walks the graph the way the stage that
// produced the needed data populated it. Handlers read stage status but
// never run a stage themselves: Definition returns errs.UnresolvedError
// for a class that has not reached StageArchEval, while Hover and
// Completion answer with whatever data is already present and leave out
// the parts a later stage would add.
//
// Grounded on the teacher's internal/mcp/handlers.go request-validate-
// then-respond shape, generalized from MCP tool params to LSP-style
// position requests, and on internal/symbollinker/linker_engine.go for
// walking a resolved cross-reference back to its declaration site.
package features

import (
	"context"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/corels/internal/arena"
	"github.com/standardbeagle/corels/internal/errs"
	"github.com/standardbeagle/corels/internal/filemanager"
	"github.com/standardbeagle/corels/internal/modelregistry"
	"github.com/standardbeagle/corels/internal/types"
	"github.com/standardbeagle/corels/internal/xmlview"
)

// Handlers bundles the collaborators every feature reads. It never
// mutates the Arena; callers are expected to hold the Engine's read
// lock for the duration of a call.
type Handlers struct {
	Arena  *arena.Arena
	Files  *filemanager.Manager
	Models *modelregistry.Registry
}

// New builds a Handlers bound to the given collaborators.
func New(a *arena.Arena, files *filemanager.Manager, models *modelregistry.Registry) *Handlers {
	return &Handlers{Arena: a, Files: files, Models: models}
}

// Location identifies a symbol's declaration site for a Definition or
// Hover response.
type Location struct {
	FileID types.FileID
	Path   string
	Range  types.Range
}

// DefinitionResult is the outcome of resolving the symbol under the
// editor's cursor.
type DefinitionResult struct {
	Handle    arena.Handle
	Locations []Location
}

// Definition resolves the symbol owning fileID at offset, then reports
// where it (or, for a class, the class and every base in MRO order)
// was declared. Requires the symbol's class to have reached
// StageArchEval so Bases is populated.
func (h *Handlers) Definition(ctx context.Context, fileID types.FileID, offset int) (*DefinitionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, ok := h.Arena.GetScopeSymbol(fileID, offset)
	if !ok {
		return nil, errs.NewUnresolvedError("no symbol at offset", types.Range{})
	}
	sym, ok := h.Arena.Upgrade(target)
	if !ok {
		return nil, errs.NewUnresolvedError("symbol no longer live", types.Range{})
	}

	res := &DefinitionResult{Handle: target}
	res.Locations = append(res.Locations, locationOf(sym))

	if sym.Kind == arena.KindClass {
		if h.Arena.GetStatus(target, arena.StageArchEval) != arena.StatusDone {
			return nil, errs.NewUnresolvedError(sym.Name, sym.Range)
		}
		mro, err := h.Arena.MRO(target)
		if err != nil {
			return nil, err
		}
		for _, base := range mro[1:] {
			if baseSym, ok := h.Arena.Upgrade(base); ok {
				res.Locations = append(res.Locations, locationOf(baseSym))
			}
		}
	}
	return res, nil
}

func locationOf(sym *arena.Symbol) Location {
	return Location{FileID: sym.FileID, Range: sym.Range}
}

// HoverResult is the display text shown for the symbol under the
// cursor.
type HoverResult struct {
	QualifiedName string
	Kind          string
	ModelNames    []string
}

// Hover reports the qualified name and kind of the symbol at offset,
// plus the framework model name(s) it contributes to if it is a model
// class. Requires StageFramework to be Done for the ModelNames field
// to be populated; the base name/kind fields are available as soon as
// StageArch has declared the symbol.
func (h *Handlers) Hover(ctx context.Context, fileID types.FileID, offset int) (*HoverResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, ok := h.Arena.GetScopeSymbol(fileID, offset)
	if !ok {
		return nil, errs.NewUnresolvedError("no symbol at offset", types.Range{})
	}
	sym, ok := h.Arena.Upgrade(target)
	if !ok {
		return nil, errs.NewUnresolvedError("symbol no longer live", types.Range{})
	}
	res := &HoverResult{
		QualifiedName: h.Arena.QualifiedName(target),
		Kind:          sym.Kind.String(),
	}
	if sym.Kind == arena.KindClass && h.Arena.GetStatus(target, arena.StageFramework) == arena.StatusDone {
		res.ModelNames = append([]string(nil), sym.Class.ModelNames...)
	}
	return res, nil
}

// CompletionItem is one candidate offered at a completion position.
type CompletionItem struct {
	Label string
	Kind  string
}

// Completion lists the names visible at offset: the members of the
// owning class's MRO (if any), falling back to the enclosing file's
// top-level declarations. Candidates are listed whatever their own
// stage status; walking the MRO needs the class's own StageArchEval
// Done, and otherwise the class's own body is listed rather than
// failing the whole request.
func (h *Handlers) Completion(ctx context.Context, fileID types.FileID, offset int) ([]CompletionItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scope, ok := h.Arena.GetScopeSymbol(fileID, offset)
	if !ok {
		return nil, errs.NewUnresolvedError("no enclosing scope", types.Range{})
	}
	owner, ok := h.Arena.GetInParents(scope, map[arena.Kind]bool{arena.KindClass: true, arena.KindFile: true}, true)
	if !ok {
		return nil, errs.NewUnresolvedError("no enclosing class or file", types.Range{})
	}
	ownerSym, ok := h.Arena.Upgrade(owner)
	if !ok {
		return nil, errs.NewUnresolvedError("scope no longer live", types.Range{})
	}

	seen := make(map[string]bool)
	var items []CompletionItem

	members := []arena.Handle{owner}
	if ownerSym.Kind == arena.KindClass && h.Arena.GetStatus(owner, arena.StageArchEval) == arena.StatusDone {
		if mro, err := h.Arena.MRO(owner); err == nil {
			members = mro
		}
	}
	for _, m := range members {
		msym, ok := h.Arena.Upgrade(m)
		if !ok {
			continue
		}
		for _, c := range msym.Children {
			csym, ok := h.Arena.Upgrade(c)
			if !ok || seen[csym.Name] {
				continue
			}
			seen[csym.Name] = true
			items = append(items, CompletionItem{Label: csym.Name, Kind: csym.Kind.String()})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items, nil
}

// Diagnostics returns the union of every stage's recorded diagnostics
// for fileID without clearing the publish flag, for callers (e.g. a
// pull-diagnostics request) that want the current state without
// consuming it the way Engine.PublishDiagnostics does.
func (h *Handlers) Diagnostics(fileID types.FileID) ([]types.Diagnostic, bool) {
	rec, ok := h.Files.Get(fileID)
	if !ok {
		return nil, false
	}
	rec.RLock()
	defer rec.RUnlock()
	var out []types.Diagnostic
	for _, stageDiags := range rec.Diagnostics {
		out = append(out, stageDiags...)
	}
	return out, true
}

// ModelLookup reports every class contributing to a framework model
// name, in registration priority order, for go-to-model-definition
// style navigation (spec.md §4.4's Model Registry lookup).
func (h *Handlers) ModelLookup(modelName string) ([]Location, bool) {
	classes, ok := h.Models.Lookup(modelName)
	if !ok {
		return nil, false
	}
	var out []Location
	for _, c := range classes {
		if sym, ok := h.Arena.Upgrade(c); ok {
			out = append(out, locationOf(sym))
		}
	}
	return out, true
}

// XMLModelDefinition resolves go-to-definition for a model="..." attribute
// inside an XML view or data file's content: if offset falls within a
// <record>'s model attribute value, every class symbol contributing to
// that model name is returned, the same "every declaring class" answer
// Definition gives for a Python model reference. Grounded on
// original_source/features/xml_ast_utils.rs's visit_record, which does
// the identical offset-in-attribute-range check before resolving against
// the model index.
func (h *Handlers) XMLModelDefinition(content string, offset int) ([]Location, bool) {
	ref, ok := xmlview.ModelRefAt(content, offset)
	if !ok {
		return nil, false
	}
	return h.ModelLookup(ref.Model)
}

// fuzzyModelThreshold is the minimum Jaro-Winkler similarity a model
// name must clear to surface as a "did you mean" suggestion when query
// has no substring match at all. Grounded on the teacher's
// internal/semantic/fuzzy_matcher.go default threshold for its
// Jaro-Winkler matcher.
const fuzzyModelThreshold = 0.80

// ModelNames lists every registered framework model name that contains
// query as a substring, case-insensitively, for model-name completion. If
// query matches nothing by substring, it falls back to fuzzy (edit
// distance) suggestions, for a typo'd model name in a hover or
// completion request.
func (h *Handlers) ModelNames(query string) []string {
	names := h.Models.Names()
	if query == "" {
		sort.Strings(names)
		return names
	}
	lowerQuery := strings.ToLower(query)

	var out []string
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), lowerQuery) {
			out = append(out, name)
		}
	}
	if len(out) > 0 {
		sort.Strings(out)
		return out
	}

	for _, name := range names {
		score, err := edlib.StringsSimilarity(lowerQuery, strings.ToLower(name), edlib.JaroWinkler)
		if err == nil && score >= fuzzyModelThreshold {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
