package stages

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/corels/internal/arena"
	"github.com/standardbeagle/corels/internal/config"
	"github.com/standardbeagle/corels/internal/filemanager"
	"github.com/standardbeagle/corels/internal/importresolver"
	"github.com/standardbeagle/corels/internal/modelregistry"
	"github.com/standardbeagle/corels/internal/parser"
	"github.com/standardbeagle/corels/internal/types"
)

func newTestContext(t *testing.T) (*Context, *arena.Arena, *filemanager.Manager) {
	t.Helper()
	a := arena.New()
	fm := filemanager.New(parser.NewPythonParser())
	resolver := importresolver.New(a)
	models := modelregistry.New(func(h arena.Handle) (int, int) { return 0, 0 })
	return &Context{Arena: a, Files: fm, Resolver: resolver, Models: models}, a, fm
}

func openFile(t *testing.T, a *arena.Arena, fm *filemanager.Manager, parent arena.Handle, name, src string) arena.Handle {
	t.Helper()
	id, err := fm.Open("file:///"+name, name, 1, src)
	require.NoError(t, err)
	h, err := a.AddChild(parent, &arena.Symbol{Kind: arena.KindFile, Name: name, FileID: id, File: &arena.FileData{Path: name}})
	require.NoError(t, err)
	return h
}

func TestArchWorkerDeclaresClassAndMethod(t *testing.T) {
	c, a, fm := newTestContext(t)
	fileHandle := openFile(t, a, fm, a.Root(), "models.py", "class Partner:\n    def greet(self):\n        pass\n")

	_, err := ArchWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	cls, ok := a.Lookup(fileHandle, []string{"Partner"})
	require.True(t, ok)
	clsSym, _ := a.Upgrade(cls)
	assert.Equal(t, arena.KindClass, clsSym.Kind)

	fn, ok := a.Lookup(cls, []string{"greet"})
	require.True(t, ok)
	fnSym, _ := a.Upgrade(fn)
	assert.Equal(t, arena.KindFunction, fnSym.Kind)
	assert.Empty(t, fnSym.Function.Params, "self must be stripped from a method's recorded parameters")
}

func TestArchWorkerRecordsImports(t *testing.T) {
	c, a, fm := newTestContext(t)
	fileHandle := openFile(t, a, fm, a.Root(), "models.py", "from . import utils\n")

	_, err := ArchWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	sym, _ := a.Upgrade(fileHandle)
	require.Len(t, sym.File.Imports, 1)
	assert.Equal(t, 1, sym.File.Imports[0].Level)
	assert.Equal(t, "utils", sym.File.Imports[0].Names[0].Name)
}

func TestArchEvalResolvesLocalBaseClass(t *testing.T) {
	c, a, fm := newTestContext(t)
	fileHandle := openFile(t, a, fm, a.Root(), "models.py",
		"class Base:\n    pass\n\nclass Derived(Base):\n    pass\n")

	_, err := ArchWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ArchEvalWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	base, _ := a.Lookup(fileHandle, []string{"Base"})
	derived, _ := a.Lookup(fileHandle, []string{"Derived"})
	derivedSym, _ := a.Upgrade(derived)
	require.Len(t, derivedSym.Class.Bases, 1)
	assert.Equal(t, base, derivedSym.Class.Bases[0])

	mro, err := a.MRO(derived)
	require.NoError(t, err)
	assert.Equal(t, []arena.Handle{derived, base}, mro)
}

func TestArchEvalResolvesImportedBaseClass(t *testing.T) {
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "pkg")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "__init__.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "base.py"), nil, 0o644))

	c, a, fm := newTestContext(t)
	pkg, err := a.AddChild(a.Root(), &arena.Symbol{Kind: arena.KindPackage, Name: "pkg", Package: &arena.PackageData{Path: pkgDir}})
	require.NoError(t, err)

	baseFileHandle := openFile(t, a, fm, pkg, "base.py", "class Model:\n    pass\n")
	_, err = ArchWorker(c)(context.Background(), baseFileHandle)
	require.NoError(t, err)

	modelsHandle := openFile(t, a, fm, pkg, "models.py", "from .base import Model\n\nclass Partner(Model):\n    pass\n")
	_, err = ArchWorker(c)(context.Background(), modelsHandle)
	require.NoError(t, err)
	_, err = ArchEvalWorker(c)(context.Background(), modelsHandle)
	require.NoError(t, err)

	base, ok := a.Lookup(baseFileHandle, []string{"Model"})
	require.True(t, ok)
	partner, _ := a.Lookup(modelsHandle, []string{"Partner"})
	partnerSym, _ := a.Upgrade(partner)
	require.Len(t, partnerSym.Class.Bases, 1)
	assert.Equal(t, base, partnerSym.Class.Bases[0])
}

func TestFrameworkWorkerRegistersModelByNameAttribute(t *testing.T) {
	c, a, fm := newTestContext(t)
	fileHandle := openFile(t, a, fm, a.Root(), "models.py",
		"class Partner:\n    _name = 'res.partner'\n")

	_, err := ArchWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ArchEvalWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	cls, _ := a.Lookup(fileHandle, []string{"Partner"})
	_, err = FrameworkWorker(c)(context.Background(), cls)
	require.NoError(t, err)

	contributors, ok := c.Models.Lookup("res.partner")
	require.True(t, ok)
	assert.Equal(t, []arena.Handle{cls}, contributors)
}

func TestFrameworkWorkerInheritsModelNameFromBase(t *testing.T) {
	c, a, fm := newTestContext(t)
	fileHandle := openFile(t, a, fm, a.Root(), "models.py",
		"class Partner:\n    _name = 'res.partner'\n\nclass PartnerExt(Partner):\n    pass\n")

	_, err := ArchWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ArchEvalWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	base, _ := a.Lookup(fileHandle, []string{"Partner"})
	ext, _ := a.Lookup(fileHandle, []string{"PartnerExt"})
	_, err = FrameworkWorker(c)(context.Background(), base)
	require.NoError(t, err)
	_, err = FrameworkWorker(c)(context.Background(), ext)
	require.NoError(t, err)

	contributors, ok := c.Models.Lookup("res.partner")
	require.True(t, ok)
	assert.ElementsMatch(t, []arena.Handle{base, ext}, contributors)
}

func TestValidationWorkerFlagsUnresolvedBase(t *testing.T) {
	c, a, fm := newTestContext(t)
	fileHandle := openFile(t, a, fm, a.Root(), "models.py", "class Derived(DoesNotExist):\n    pass\n")

	_, err := ArchWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ArchEvalWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ValidationWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	sym, _ := a.Upgrade(fileHandle)
	diags, ok := fm.Publish(sym.FileID)
	require.True(t, ok)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "DoesNotExist")
}

// TestArchEvalEmitsUnresolvedImportDiagnostic checks that a relative
// import naming a module that doesn't exist, under the "all" policy,
// publishes exactly one Unresolved diagnostic spanning the from-line.
func TestArchEvalEmitsUnresolvedImportDiagnostic(t *testing.T) {
	c, a, fm := newTestContext(t)
	c.DiagMissingImports = config.DiagMissingImportsAll
	fileHandle := openFile(t, a, fm, a.Root(), "models.py", "from . import y\n")

	_, err := ArchWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ArchEvalWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	sym, _ := a.Upgrade(fileHandle)
	diags, ok := fm.Publish(sym.FileID)
	require.True(t, ok)
	require.Len(t, diags, 1)
	assert.Equal(t, sym.File.Imports[0].Range, diags[0].Range, "the diagnostic must span the whole from-line, not just the alias token")
	assert.Contains(t, diags[0].Message, "y")
}

func TestArchEvalSuppressesUnresolvedImportDiagnosticWhenPolicyNone(t *testing.T) {
	c, a, fm := newTestContext(t)
	fileHandle := openFile(t, a, fm, a.Root(), "models.py", "from . import y\n")

	_, err := ArchWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ArchEvalWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	sym, _ := a.Upgrade(fileHandle)
	diags, ok := fm.Publish(sym.FileID)
	require.True(t, ok)
	assert.Empty(t, diags, "the zero-value DiagMissingImports policy must suppress unresolved-import diagnostics")
}

func TestUnresolvedImportSeverityPolicies(t *testing.T) {
	_, ok := unresolvedImportSeverity(config.DiagMissingImportsNone, 1)
	assert.False(t, ok, "none suppresses every unresolved import regardless of level")

	_, ok = unresolvedImportSeverity(config.DiagMissingImportsOnlyWorkspace, 0)
	assert.False(t, ok, "only_workspace suppresses a non-relative (absolute) import")

	severity, ok := unresolvedImportSeverity(config.DiagMissingImportsOnlyWorkspace, 1)
	assert.True(t, ok, "only_workspace reports a relative import")
	assert.Equal(t, types.SeverityWarning, severity)

	severity, ok = unresolvedImportSeverity(config.DiagMissingImportsAll, 0)
	assert.True(t, ok, "all reports every unresolved import regardless of level")
	assert.Equal(t, types.SeverityWarning, severity)
}

func TestValidationWorkerFlagsUndefinedName(t *testing.T) {
	c, a, fm := newTestContext(t)
	fileHandle := openFile(t, a, fm, a.Root(), "models.py", "x = some_undefined_name\n")

	_, err := ArchWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ArchEvalWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ValidationWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	sym, _ := a.Upgrade(fileHandle)
	diags, ok := fm.Publish(sym.FileID)
	require.True(t, ok)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "some_undefined_name")
}

func TestValidationWorkerAllowsReferenceToSiblingAndParam(t *testing.T) {
	c, a, fm := newTestContext(t)
	fileHandle := openFile(t, a, fm, a.Root(), "models.py",
		"helper = 1\n\ndef greet(name):\n    x = name\n    y = helper\n")

	_, err := ArchWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ArchEvalWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)
	_, err = ValidationWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	sym, _ := a.Upgrade(fileHandle)
	diags, ok := fm.Publish(sym.FileID)
	require.True(t, ok)
	assert.Empty(t, diags, "a parameter reference and a module-level sibling reference must not be flagged undefined")
}
