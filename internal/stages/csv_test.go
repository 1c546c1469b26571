package stages

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/corels/internal/arena"
)

func TestCsvWorkerDeclaresRowsByID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,model,name\npartner_1,res.partner,Alice\npartner_2,res.partner,Bob\n"), 0o644))

	c, a, _ := newTestContext(t)
	fileHandle, err := a.AddChild(a.Root(), &arena.Symbol{Kind: arena.KindFile, Name: "data.csv", File: &arena.FileData{Path: path}})
	require.NoError(t, err)

	_, err = CsvWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	_, ok := a.Lookup(fileHandle, []string{"partner_1"})
	assert.True(t, ok)
	_, ok = a.Lookup(fileHandle, []string{"partner_2"})
	assert.True(t, ok)
}

func TestCsvWorkerIgnoresNonCsvFiles(t *testing.T) {
	c, a, _ := newTestContext(t)
	fileHandle, err := a.AddChild(a.Root(), &arena.Symbol{Kind: arena.KindFile, Name: "models.py", File: &arena.FileData{Path: "/x/models.py"}})
	require.NoError(t, err)

	_, err = CsvWorker(c)(context.Background(), fileHandle)
	require.NoError(t, err)

	sym, _ := a.Upgrade(fileHandle)
	assert.Empty(t, sym.Children)
}
