package filemanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/corels/internal/errs"
	"github.com/standardbeagle/corels/internal/parser"
)

type stubParser struct {
	calls int
}

func (s *stubParser) Parse(path string, content []byte) (*parser.Tree, error) {
	s.calls++
	return &parser.Tree{Root: &parser.Node{Kind: parser.KindModule}}, nil
}

func TestOpenAndGet(t *testing.T) {
	m := New(&stubParser{})
	id, err := m.Open("file:///models.py", "/models.py", 1, "class Partner:\n    pass\n")
	require.NoError(t, err)

	rec, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, 1, rec.Version)
	assert.Contains(t, rec.Text.Text(), "class Partner")
}

func TestUpdateRejectsStaleVersion(t *testing.T) {
	m := New(&stubParser{})
	id, err := m.Open("file:///models.py", "/models.py", 5, "x = 1\n")
	require.NoError(t, err)

	err = m.Update(id, 5, -1, -1, "x = 2\n")
	require.Error(t, err)
	var stale *errs.StaleError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, 5, stale.RequestedVers)
	assert.Equal(t, 5, stale.CurrentVers)
}

func TestUpdateAcceptsNewerVersionAndInvalidatesAST(t *testing.T) {
	sp := &stubParser{}
	m := New(sp)
	id, _ := m.Open("file:///models.py", "/models.py", 1, "x = 1\n")
	_, err := m.EnsureAST(id)
	require.NoError(t, err)
	assert.Equal(t, 1, sp.calls)

	err = m.Update(id, 2, -1, -1, "x = 2\n")
	require.NoError(t, err)

	rec, _ := m.Get(id)
	assert.Nil(t, rec.AST, "Update must drop the cached AST so EnsureAST reparses")

	_, err = m.EnsureAST(id)
	require.NoError(t, err)
	assert.Equal(t, 2, sp.calls)
}

func TestUpdateRangeEdit(t *testing.T) {
	m := New(&stubParser{})
	id, _ := m.Open("file:///models.py", "/models.py", 1, "x = 1\n")
	rec, _ := m.Get(id)
	offset := len(rec.Text.Text()) - len("1\n")

	err := m.Update(id, 2, offset, offset+1, "42")
	require.NoError(t, err)

	rec, _ = m.Get(id)
	assert.Equal(t, "x = 42\n", rec.Text.Text())
}

func TestCloseRemovesPathLookup(t *testing.T) {
	m := New(&stubParser{})
	id, _ := m.Open("file:///models.py", "/models.py", 1, "x = 1\n")
	m.Close(id)

	_, ok := m.Get(id)
	assert.False(t, ok)
	_, ok = m.GetByPath("/models.py")
	assert.False(t, ok)
}

func TestPublishReturnsUnionAndClearsFlag(t *testing.T) {
	m := New(&stubParser{})
	id, _ := m.Open("file:///models.py", "/models.py", 1, "x = 1\n")

	diags, ok := m.Publish(id)
	require.True(t, ok)
	assert.Empty(t, diags)

	_, ok = m.Publish(id)
	assert.False(t, ok, "Publish must not re-report once NeedPublish is cleared")
}

func TestUpdateSameContentSkipsASTInvalidation(t *testing.T) {
	sp := &stubParser{}
	m := New(sp)
	id, _ := m.Open("file:///models.py", "/models.py", 1, "x = 1\n")
	_, err := m.EnsureAST(id)
	require.NoError(t, err)
	assert.Equal(t, 1, sp.calls)

	_, ok := m.Publish(id)
	require.True(t, ok, "precondition: clear the flag Open set before the no-op edit")

	err = m.Update(id, 2, -1, -1, "x = 1\n")
	require.NoError(t, err)

	rec, _ := m.Get(id)
	assert.Equal(t, 2, rec.Version, "version must still advance even when content is unchanged")
	assert.NotNil(t, rec.AST, "identical content must not drop the cached AST")

	diags, ok := m.Publish(id)
	assert.False(t, ok, "a no-op edit must not mark the file for republish")
	assert.Empty(t, diags)
}

func TestAllListsEveryTrackedFile(t *testing.T) {
	m := New(&stubParser{})
	id1, _ := m.Open("file:///a.py", "/a.py", 1, "x = 1\n")
	id2, _ := m.Open("file:///b.py", "/b.py", 1, "y = 2\n")

	all := m.All()
	assert.Len(t, all, 2)
	assert.Equal(t, "/a.py", all[id1])
	assert.Equal(t, "/b.py", all[id2])

	m.Close(id1)
	assert.Len(t, m.All(), 1)
}

func TestReopenResetsVersionAndText(t *testing.T) {
	m := New(&stubParser{})
	id1, _ := m.Open("file:///models.py", "/models.py", 1, "x = 1\n")
	id2, _ := m.Open("file:///models.py", "/models.py", 1, "x = 2\n")

	assert.Equal(t, id1, id2, "re-opening a known path must reuse its FileID")
	rec, _ := m.Get(id2)
	assert.Equal(t, "x = 2\n", rec.Text.Text())
}
