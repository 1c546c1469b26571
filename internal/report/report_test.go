package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/corels/internal/config"
	"github.com/standardbeagle/corels/internal/entrypoint"
	"github.com/standardbeagle/corels/internal/session"
)

func TestBuildListsScannedFilesSorted(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.py"), []byte("class B: pass"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("class A: pass"), 0o644))

	cfg := config.Default()
	cfg.Project.Root = root
	e := session.New(cfg)
	e.Entries.Add(entrypoint.KindMain, root)
	require.NoError(t, e.ScanWorkspace(context.Background()))
	require.NoError(t, e.RunAllStages(context.Background()))

	rep := Build(e)
	require.Len(t, rep.Files, 2)
	assert.Equal(t, filepath.Join(root, "a.py"), rep.Files[0].Path)
	assert.Equal(t, filepath.Join(root, "b.py"), rep.Files[1].Path)

	data, err := rep.MarshalIndent()
	require.NoError(t, err)
	var roundTrip map[string]any
	require.NoError(t, json.Unmarshal(data, &roundTrip))
	assert.Contains(t, roundTrip, "files")
	assert.Contains(t, roundTrip, "models")
}

func TestSchemaDescribesTopLevelFields(t *testing.T) {
	schema := Schema()
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Properties, "files")
	assert.Contains(t, schema.Properties, "models")
	assert.ElementsMatch(t, []string{"files", "models"}, schema.Required)
}
