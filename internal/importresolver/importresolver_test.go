package importresolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/corels/internal/arena"
	"github.com/standardbeagle/corels/internal/types"
)

// buildWorkspace creates:
//
//	<tmp>/pkg/__init__.py
//	<tmp>/pkg/models.py   (defines Partner, used as the "from file")
//	<tmp>/pkg/utils.py    (defines helper, _private)
//
// and registers matching symbols in a fresh arena rooted at a Package
// for <tmp>/pkg.
func buildWorkspace(t *testing.T) (*arena.Arena, arena.Handle, arena.Handle) {
	t.Helper()
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "pkg")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "__init__.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "models.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "utils.py"), nil, 0o644))

	a := arena.New()
	pkg, err := a.AddChild(a.Root(), &arena.Symbol{Kind: arena.KindPackage, Name: "pkg", Package: &arena.PackageData{Path: pkgDir}})
	require.NoError(t, err)

	modelsFile, err := a.AddChild(pkg, &arena.Symbol{Kind: arena.KindFile, Name: "models", File: &arena.FileData{Path: filepath.Join(pkgDir, "models.py")}})
	require.NoError(t, err)

	utilsFile, err := a.AddChild(pkg, &arena.Symbol{Kind: arena.KindFile, Name: "utils", File: &arena.FileData{Path: filepath.Join(pkgDir, "utils.py")}})
	require.NoError(t, err)
	_, err = a.AddChild(utilsFile, &arena.Symbol{Kind: arena.KindFunction, Name: "helper", Function: &arena.FunctionData{}})
	require.NoError(t, err)
	_, err = a.AddChild(utilsFile, &arena.Symbol{Kind: arena.KindFunction, Name: "_private", Function: &arena.FunctionData{}})
	require.NoError(t, err)

	return a, pkg, modelsFile
}

func TestResolveRelativeImportFindsSiblingModule(t *testing.T) {
	a, pkg, modelsFile := buildWorkspace(t)
	r := New(a)

	bindings := r.Resolve(Request{
		FromFile: modelsFile,
		Level:    1,
		Names:    []AliasSpec{{Name: "utils"}},
	})
	require.Len(t, bindings, 1)
	assert.False(t, bindings[0].Unresolved)

	utilsHandle, ok := a.Lookup(pkg, []string{"utils"})
	require.True(t, ok)
	assert.Equal(t, utilsHandle, bindings[0].Target)
}

func TestResolveFromClauseWalksToRegisteredModule(t *testing.T) {
	a, pkg, modelsFile := buildWorkspace(t)
	r := New(a)

	bindings := r.Resolve(Request{
		FromFile:   modelsFile,
		Level:      1,
		FromModule: "utils",
		Names:      []AliasSpec{{Name: "helper"}},
	})
	require.Len(t, bindings, 1)
	assert.False(t, bindings[0].Unresolved)

	utilsHandle, ok := a.Lookup(pkg, []string{"utils"})
	require.True(t, ok)
	helperHandle, ok := a.Lookup(utilsHandle, []string{"helper"})
	require.True(t, ok)
	assert.Equal(t, helperHandle, bindings[0].Target)
}

func TestResolveUnknownNameIsUnresolvedNotFatal(t *testing.T) {
	a, _, modelsFile := buildWorkspace(t)
	r := New(a)

	bindings := r.Resolve(Request{
		FromFile: modelsFile,
		Level:    1,
		Names:    []AliasSpec{{Name: "does_not_exist"}},
	})
	require.Len(t, bindings, 1)
	assert.True(t, bindings[0].Unresolved)
	assert.Error(t, bindings[0].Err)
}

func TestResolveUnresolvedBindingCarriesStatementRangeWhenAliasUnaliased(t *testing.T) {
	a, _, modelsFile := buildWorkspace(t)
	r := New(a)
	stmtRange := types.Range{Start: types.Position{Line: 3}, End: types.Position{Line: 3, Character: 17}}

	bindings := r.Resolve(Request{
		FromFile: modelsFile,
		Level:    1,
		Names:    []AliasSpec{{Name: "does_not_exist"}},
		Range:    stmtRange,
	})
	require.Len(t, bindings, 1)
	assert.True(t, bindings[0].Unresolved)
	assert.Equal(t, stmtRange, bindings[0].Range, "an unaliased name's binding falls back to the statement range")
}

func TestResolveUnresolvedBindingPrefersAliasRangeWhenSet(t *testing.T) {
	a, _, modelsFile := buildWorkspace(t)
	r := New(a)
	stmtRange := types.Range{Start: types.Position{Line: 3}, End: types.Position{Line: 3, Character: 17}}
	aliasRange := types.Range{Start: types.Position{Line: 3, Character: 14}, End: types.Position{Line: 3, Character: 17}}

	bindings := r.Resolve(Request{
		FromFile: modelsFile,
		Level:    1,
		Names:    []AliasSpec{{Name: "does_not_exist", Range: aliasRange}},
		Range:    stmtRange,
	})
	require.Len(t, bindings, 1)
	assert.Equal(t, aliasRange, bindings[0].Range)
}

func TestResolveStarImportSkipsPrivateNames(t *testing.T) {
	a, pkg, modelsFile := buildWorkspace(t)
	r := New(a)

	_ = r.Resolve(Request{FromFile: modelsFile, Level: 1, Names: []AliasSpec{{Name: "utils"}}})
	utilsHandle, ok := a.Lookup(pkg, []string{"utils"})
	require.True(t, ok)

	bindings := r.Resolve(Request{
		FromFile:   modelsFile,
		Level:      1,
		FromModule: "utils",
		Names:      []AliasSpec{{Name: "*"}},
	})
	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		names = append(names, b.Alias)
	}
	assert.Equal(t, []string{"helper"}, names, "star import must exclude underscore-prefixed names")
	_ = utilsHandle
}

func TestResolveIsIdempotentOnRepeatedImport(t *testing.T) {
	a, _, modelsFile := buildWorkspace(t)
	r := New(a)

	first := r.Resolve(Request{FromFile: modelsFile, Level: 1, Names: []AliasSpec{{Name: "utils"}}})
	second := r.Resolve(Request{FromFile: modelsFile, Level: 1, Names: []AliasSpec{{Name: "utils"}}})

	assert.Equal(t, first[0].Target, second[0].Target, "re-resolving the same import must not create a duplicate symbol")
}

func TestResolveAbsoluteImportStartsAtRoot(t *testing.T) {
	a, pkg, modelsFile := buildWorkspace(t)
	r := New(a)

	bindings := r.Resolve(Request{
		FromFile:   modelsFile,
		Level:      0,
		FromModule: "pkg.utils",
		Names:      []AliasSpec{{Name: "helper"}},
	})
	require.Len(t, bindings, 1)
	assert.False(t, bindings[0].Unresolved)

	utilsHandle, ok := a.Lookup(pkg, []string{"utils"})
	require.True(t, ok)
	helperHandle, ok := a.Lookup(utilsHandle, []string{"helper"})
	require.True(t, ok)
	assert.Equal(t, helperHandle, bindings[0].Target)
}
