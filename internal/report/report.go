// Package report assembles the parse-only CLI's output.json: one
// snapshot of every file's diagnostics plus the Model Registry's final
// state, after a full four-stage run. Grounded on the teacher's
// internal/git/results.go AnalysisReport shape (a flat struct tree
// marshaled with json.MarshalIndent, no custom encoder).
package report

import (
	"encoding/json"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/standardbeagle/corels/internal/session"
	"github.com/standardbeagle/corels/internal/types"
)

// FileReport is one indexed file's outcome.
type FileReport struct {
	Path        string              `json:"path"`
	Diagnostics []types.Diagnostic  `json:"diagnostics,omitempty"`
}

// Report is the full parse-only run's result.
type Report struct {
	Files  []FileReport `json:"files"`
	Models []string     `json:"models"`
}

// Build snapshots e's current state under its read lock. Callers run
// this after Engine.RunAllStages has drained every stage.
func Build(e *session.Engine) *Report {
	e.RLock()
	defer e.RUnlock()

	r := &Report{}
	for id, path := range e.Files.All() {
		fr := FileReport{Path: path}
		if rec, ok := e.Files.Get(id); ok {
			rec.RLock()
			for _, stageDiags := range rec.Diagnostics {
				fr.Diagnostics = append(fr.Diagnostics, stageDiags...)
			}
			rec.RUnlock()
		}
		r.Files = append(r.Files, fr)
	}
	sort.Slice(r.Files, func(i, j int) bool { return r.Files[i].Path < r.Files[j].Path })

	r.Models = append(r.Models, e.Models.Names()...)
	sort.Strings(r.Models)
	return r
}

// MarshalIndent renders r the way output.json is written: two-space
// indent, matching the rest of the corpus's JSON reports.
func (r *Report) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Schema describes output.json's shape as a JSON Schema document, for
// tooling that consumes the report (an editor extension, a CI check)
// without depending on this Go package's types directly. Grounded on
// the teacher's internal/mcp/server.go tool-registration schemas, which
// build *jsonschema.Schema literals by hand rather than deriving them
// by reflection.
func Schema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"files": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"path":        {Type: "string"},
						"diagnostics": {Type: "array"},
					},
					Required: []string{"path"},
				},
			},
			"models": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
		},
		Required: []string{"files", "models"},
	}
}
