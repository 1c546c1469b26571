package modelregistry

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/corels/internal/arena"
)

func testRegistry(priorities map[arena.Handle]int, sequences map[arena.Handle]int) *Registry {
	return New(func(h arena.Handle) (int, int) {
		return priorities[h], sequences[h]
	})
}

func handleAt(a *arena.Arena, idx int) arena.Handle {
	h, _ := a.AddChild(a.Root(), &arena.Symbol{Kind: arena.KindClass, Name: "c" + strconv.Itoa(idx), Class: &arena.ClassData{}})
	return h
}

func TestRegisterOrdersByPriorityThenSequence(t *testing.T) {
	a := arena.New()
	addon := handleAt(a, 0)
	main := handleAt(a, 1)

	r := testRegistry(
		map[arena.Handle]int{main: 0, addon: 1},
		map[arena.Handle]int{main: 5, addon: 1},
	)

	r.Register("res.partner", addon)
	r.Register("res.partner", main)

	contributors, ok := r.Lookup("res.partner")
	require.True(t, ok)
	assert.Equal(t, []arena.Handle{main, addon}, contributors, "main-project contribution must precede addon contribution regardless of registration order")
}

func TestRegisterIsIdempotent(t *testing.T) {
	a := arena.New()
	cls := handleAt(a, 0)
	r := testRegistry(nil, nil)

	r.Register("res.partner", cls)
	r.Register("res.partner", cls)

	contributors, _ := r.Lookup("res.partner")
	assert.Len(t, contributors, 1)
}

func TestUnregisterRetractsAllContributions(t *testing.T) {
	a := arena.New()
	cls := handleAt(a, 0)
	r := testRegistry(nil, nil)

	r.Register("res.partner", cls)
	r.Register("res.users", cls)

	changed := r.Unregister(cls)
	assert.ElementsMatch(t, []string{"res.partner", "res.users"}, changed)

	_, ok := r.Lookup("res.partner")
	assert.False(t, ok)
	_, ok = r.Lookup("res.users")
	assert.False(t, ok)
}

func TestUnregisterLeavesOtherContributorsInPlace(t *testing.T) {
	a := arena.New()
	c1 := handleAt(a, 0)
	c2 := handleAt(a, 1)
	r := testRegistry(map[arena.Handle]int{c1: 0, c2: 0}, map[arena.Handle]int{c1: 0, c2: 1})

	r.Register("res.partner", c1)
	r.Register("res.partner", c2)
	r.Unregister(c1)

	contributors, ok := r.Lookup("res.partner")
	require.True(t, ok)
	assert.Equal(t, []arena.Handle{c2}, contributors)
}
