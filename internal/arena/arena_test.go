package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileUnder(t *testing.T, a *Arena, parent Handle, name string) Handle {
	t.Helper()
	h, err := a.AddChild(parent, &Symbol{Kind: KindFile, Name: name, File: &FileData{Path: name}})
	require.NoError(t, err)
	return h
}

func newClassUnder(t *testing.T, a *Arena, parent Handle, name string, baseNames ...string) Handle {
	t.Helper()
	h, err := a.AddChild(parent, &Symbol{Kind: KindClass, Name: name, Class: &ClassData{BaseNames: baseNames}})
	require.NoError(t, err)
	return h
}

func TestAddChildOwnershipTree(t *testing.T) {
	a := New()
	file := newFileUnder(t, a, a.Root(), "models.py")
	cls := newClassUnder(t, a, file, "Partner")

	fileSym, ok := a.Upgrade(file)
	require.True(t, ok)
	assert.Contains(t, fileSym.Children, cls)

	clsSym, ok := a.Upgrade(cls)
	require.True(t, ok)
	assert.Equal(t, file, clsSym.Parent)
}

func TestAddChildDuplicateNameRejected(t *testing.T) {
	a := New()
	file := newFileUnder(t, a, a.Root(), "models.py")
	_, err := a.AddChild(file, &Symbol{Kind: KindClass, Name: "Partner", Class: &ClassData{}})
	require.NoError(t, err)
	_, err = a.AddChild(file, &Symbol{Kind: KindClass, Name: "Partner", Class: &ClassData{}})
	assert.Error(t, err)
}

func TestUpgradeFailsAfterRemove(t *testing.T) {
	a := New()
	file := newFileUnder(t, a, a.Root(), "models.py")
	cls := newClassUnder(t, a, file, "Partner")

	a.Remove(cls)

	_, ok := a.Upgrade(cls)
	assert.False(t, ok, "handle must not upgrade after its slot is removed")

	fileSym, _ := a.Upgrade(file)
	assert.NotContains(t, fileSym.Children, cls, "removed child must be unlinked from its parent")
}

func TestHandleStaleAfterSlotReuse(t *testing.T) {
	a := New()
	file := newFileUnder(t, a, a.Root(), "models.py")
	first := newClassUnder(t, a, file, "Partner")
	a.Remove(first)

	second := newClassUnder(t, a, file, "Partner")
	assert.NotEqual(t, first, second, "a reused slot must mint a new generation, not alias the old handle")

	_, ok := a.Upgrade(first)
	assert.False(t, ok, "the original handle must never resolve to the new occupant of its slot")
}

func TestDependencySymmetry(t *testing.T) {
	a := New()
	file := newFileUnder(t, a, a.Root(), "models.py")
	base := newClassUnder(t, a, file, "Base")
	derived := newClassUnder(t, a, file, "Derived")

	a.AddDependency(derived, StageArchEval, base)

	derivedSym, _ := a.Upgrade(derived)
	baseSym, _ := a.Upgrade(base)
	assert.Contains(t, derivedSym.Dependencies[StageArchEval], base)
	assert.Contains(t, baseSym.Dependents[StageArchEval], derived)
}

func TestInvalidationCompleteness(t *testing.T) {
	a := New()
	file := newFileUnder(t, a, a.Root(), "models.py")
	base := newClassUnder(t, a, file, "Base")
	derived := newClassUnder(t, a, file, "Derived")

	a.SetStatus(base, StageArch, StatusDone)
	a.SetStatus(base, StageArchEval, StatusDone)
	a.SetStatus(derived, StageArch, StatusDone)
	a.SetStatus(derived, StageArchEval, StatusDone)
	a.SetStatus(derived, StageFramework, StatusDone)
	a.AddDependency(derived, StageArchEval, base)

	affected := a.Remove(base)
	assert.Contains(t, affected, derived)

	derivedSym, _ := a.Upgrade(derived)
	assert.Equal(t, StatusInvalid, derivedSym.Status[StageArchEval], "a dependent must be invalidated from the stage it depended on")
	assert.Equal(t, StatusInvalid, derivedSym.Status[StageFramework], "invalidation must propagate to every later stage too")
	assert.Equal(t, StatusDone, derivedSym.Status[StageArch], "earlier stages than the dependency must be untouched")
}

func TestStageMonotonicityAcrossRebuild(t *testing.T) {
	a := New()
	file := newFileUnder(t, a, a.Root(), "models.py")
	cls := newClassUnder(t, a, file, "Partner")

	for stage := Stage(0); stage < StageCount; stage++ {
		assert.Equal(t, StatusPending, a.GetStatus(cls, stage))
	}
	a.SetStatus(cls, StageArch, StatusInProgress)
	a.SetStatus(cls, StageArch, StatusDone)
	assert.Equal(t, StatusDone, a.GetStatus(cls, StageArch))
}

func TestGetInParentsFindsOwningFile(t *testing.T) {
	a := New()
	file := newFileUnder(t, a, a.Root(), "models.py")
	cls := newClassUnder(t, a, file, "Partner")
	fn, err := a.AddChild(cls, &Symbol{Kind: KindFunction, Name: "create", Function: &FunctionData{}})
	require.NoError(t, err)

	found, ok := a.GetInParents(fn, map[Kind]bool{KindFile: true}, true)
	require.True(t, ok)
	assert.Equal(t, file, found)

	found, ok = a.GetInParents(fn, map[Kind]bool{KindClass: true}, false)
	require.True(t, ok)
	assert.Equal(t, cls, found, "includeSelf=false should still find a match at a strict ancestor level when nothing nearer matches")
}

func TestGetScopeSymbolPicksNarrowestRange(t *testing.T) {
	a := New()
	file, err := a.AddChild(a.Root(), &Symbol{Kind: KindFile, Name: "models.py", FileID: 1, File: &FileData{Path: "models.py"}})
	require.NoError(t, err)
	fileSym, _ := a.Upgrade(file)
	fileSym.Bytes.Start, fileSym.Bytes.End = 0, 100

	cls, err := a.AddChild(file, &Symbol{Kind: KindClass, Name: "Partner", FileID: 1, Class: &ClassData{}})
	require.NoError(t, err)
	clsSym, _ := a.Upgrade(cls)
	clsSym.Bytes.Start, clsSym.Bytes.End = 10, 90

	found, ok := a.GetScopeSymbol(1, 50)
	require.True(t, ok)
	assert.Equal(t, cls, found, "the narrowest enclosing scope must win over the outer file scope")

	found, ok = a.GetScopeSymbol(1, 5)
	require.True(t, ok)
	assert.Equal(t, file, found)
}

func TestMROLinearDiamond(t *testing.T) {
	a := New()
	file := newFileUnder(t, a, a.Root(), "models.py")
	o := newClassUnder(t, a, file, "O")
	b := newClassUnder(t, a, file, "B")
	c := newClassUnder(t, a, file, "C")
	d := newClassUnder(t, a, file, "D")

	setBases(t, a, b, o)
	setBases(t, a, c, o)
	setBases(t, a, d, b, c)

	mro, err := a.MRO(d)
	require.NoError(t, err)
	assert.Equal(t, []Handle{d, b, c, o}, mro)
}

func TestMROCycleDetected(t *testing.T) {
	a := New()
	file := newFileUnder(t, a, a.Root(), "models.py")
	x := newClassUnder(t, a, file, "X")
	y := newClassUnder(t, a, file, "Y")
	setBases(t, a, x, y)
	setBases(t, a, y, x)

	_, err := a.MRO(x)
	assert.Error(t, err)
}

func setBases(t *testing.T, a *Arena, h Handle, bases ...Handle) {
	t.Helper()
	sym, ok := a.Upgrade(h)
	require.True(t, ok)
	sym.Class.Bases = bases
	a.InvalidateMRO(h)
}
