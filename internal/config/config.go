// Package config loads and validates engine configuration from a
// .corels.kdl file, with CLI flags overriding file values. Grounded on
// the teacher's internal/config/config.go (Config/Project/Index/
// Performance struct shape and loadConfigWithOverrides merge pattern)
// and internal/config/kdl_config.go for using github.com/sblinch/kdl-go
// as the file format; the refresh-mode and missing-import-diagnostic
// options are grounded on original_source/core/config.rs's RefreshMode
// and DiagMissingImportsMode enums (there FromStr'd from a clap flag;
// here parsed from KDL node values).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
	toml "github.com/pelletier/go-toml/v2"
)

// RefreshMode controls when the engine re-runs the build pipeline after
// an edit. Grounded on original_source/core/config.rs's RefreshMode.
type RefreshMode string

const (
	RefreshAfterDelay RefreshMode = "after_delay"
	RefreshOnSave     RefreshMode = "on_save"
	RefreshOff        RefreshMode = "off"
)

func ParseRefreshMode(s string) (RefreshMode, error) {
	switch RefreshMode(s) {
	case RefreshAfterDelay, RefreshOnSave, RefreshOff:
		return RefreshMode(s), nil
	default:
		return "", fmt.Errorf("config: unknown refresh_mode %q", s)
	}
}

// DiagMissingImportsMode controls how aggressively unresolved imports
// are reported. Grounded on original_source/core/config.rs's
// DiagMissingImportsMode.
type DiagMissingImportsMode string

const (
	DiagMissingImportsNone          DiagMissingImportsMode = "none"
	DiagMissingImportsOnlyWorkspace DiagMissingImportsMode = "only_workspace"
	DiagMissingImportsAll           DiagMissingImportsMode = "all"
)

func ParseDiagMissingImportsMode(s string) (DiagMissingImportsMode, error) {
	switch DiagMissingImportsMode(s) {
	case DiagMissingImportsNone, DiagMissingImportsOnlyWorkspace, DiagMissingImportsAll:
		return DiagMissingImportsMode(s), nil
	default:
		return "", fmt.Errorf("config: unknown diag_missing_imports %q", s)
	}
}

// Project describes the workspace's main root.
type Project struct {
	Root string
	Name string
}

// Index mirrors the teacher's Index section: scan limits and watch
// behavior.
type Index struct {
	MaxFileSize      int64
	MaxTotalSizeMB   int
	MaxFileCount     int
	FollowSymlinks   bool
	RespectGitignore bool
	WatchMode        bool
	WatchDebounceMs  int
}

// Performance mirrors the teacher's Performance section.
type Performance struct {
	MaxMemoryMB          int
	MaxGoroutines        int
	ParallelFileWorkers  int
	IndexingTimeoutSec   int
	AutoSaveDelayMs      int // the editor's own debounce; the Scheduler's ScheduleInvalidation mirrors it per spec.md §4.6
}

// FeatureFlags toggles optional analyses.
type FeatureFlags struct {
	NoTypeshed bool
	// Stdlib overrides the stub search's stdlib location (spec.md §6
	// "override for stdlib stub location"); empty means no stdlib stub
	// root is added, since introspecting python_path's interpreter for
	// its real stdlib path requires shelling out to it, out of scope
	// here (see DESIGN.md).
	Stdlib          string
	AdditionalStubs []string
}

// Config is the full engine configuration, loaded from .corels.kdl and
// overridable by CLI flags.
type Config struct {
	Version     string
	Project     Project
	Index       Index
	Performance Performance
	Features    FeatureFlags

	RefreshMode           RefreshMode
	DiagMissingImports    DiagMissingImportsMode
	Addons                []string
	PythonPath             string
	OdooPath              string

	Include []string
	Exclude []string
}

// Default returns a Config with the teacher's defaults, generalized to
// this engine's option set.
func Default() *Config {
	return &Config{
		Version: "1",
		Index: Index{
			MaxFileSize:      5 * 1024 * 1024,
			MaxTotalSizeMB:   500,
			MaxFileCount:     50000,
			RespectGitignore: true,
			WatchMode:        true,
			WatchDebounceMs:  300,
		},
		Performance: Performance{
			MaxMemoryMB:         2048,
			MaxGoroutines:       runtime.NumCPU() * 2,
			ParallelFileWorkers: runtime.NumCPU(),
			IndexingTimeoutSec:  120,
			AutoSaveDelayMs:     500,
		},
		RefreshMode:        RefreshAfterDelay,
		DiagMissingImports: DiagMissingImportsOnlyWorkspace,
		Exclude:            []string{".git", "__pycache__", "*.pyc"},
	}
}

// DebounceDelay converts AutoSaveDelayMs to a time.Duration for the
// Scheduler's ScheduleInvalidation, so a burst of edits collapses
// exactly on the cadence the editor itself debounces saves at (spec.md
// §4.6, §9 Open Question 1).
func (c *Config) DebounceDelay() time.Duration {
	if c.RefreshMode == RefreshOff {
		return 0
	}
	return time.Duration(c.Performance.AutoSaveDelayMs) * time.Millisecond
}

// tomlOverlay mirrors the subset of Config a legacy .corels.toml file
// may set, struct-tag unmarshalled via pelletier/go-toml/v2 (unlike
// kdl-go, it supports reflection-based unmarshalling directly).
// Grounded on the teacher's build_artifact_detector.go use of
// toml.Unmarshal against a small anonymous probe struct.
type tomlOverlay struct {
	Project struct {
		Root string `toml:"root"`
		Name string `toml:"name"`
	} `toml:"project"`
	Addons      []string `toml:"addons"`
	RefreshMode string   `toml:"refresh_mode"`
}

func loadTOMLFallback(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var overlay tomlOverlay
	if err := toml.Unmarshal(content, &overlay); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg := Default()
	cfg.Project.Root = overlay.Project.Root
	cfg.Project.Name = overlay.Project.Name
	if len(overlay.Addons) > 0 {
		cfg.Addons = overlay.Addons
	}
	if overlay.RefreshMode != "" {
		if mode, err := ParseRefreshMode(overlay.RefreshMode); err == nil {
			cfg.RefreshMode = mode
		}
	}
	return cfg, nil
}

// Load reads a .corels.kdl file at path and overlays it onto Default().
// Grounded on the teacher's LoadKDL/parseKDL: kdl-go exposes a document
// tree rather than struct-tag unmarshalling, so nodes are walked by
// name the same way. If path doesn't exist but a same-named .toml file
// does, that legacy format is tried instead before falling back to
// Default() — a project migrating its config format shouldn't lose its
// settings mid-transition.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		tomlPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".toml"
		if _, err := os.Stat(tomlPath); err == nil {
			return loadTOMLFallback(tomlPath)
		}
		return Default(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg := Default()
	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "root":
					if s, ok := firstStringArg(cn); ok {
						cfg.Project.Root = s
					}
				case "name":
					if s, ok := firstStringArg(cn); ok {
						cfg.Project.Name = s
					}
				}
			}
		case "addons":
			cfg.Addons = collectStringArgs(n)
		case "python_path":
			if s, ok := firstStringArg(n); ok {
				cfg.PythonPath = s
			}
		case "odoo_path":
			if s, ok := firstStringArg(n); ok {
				cfg.OdooPath = s
			}
		case "refresh_mode":
			if s, ok := firstStringArg(n); ok {
				if mode, err := ParseRefreshMode(s); err == nil {
					cfg.RefreshMode = mode
				}
			}
		case "diag_missing_imports":
			if s, ok := firstStringArg(n); ok {
				if mode, err := ParseDiagMissingImportsMode(s); err == nil {
					cfg.DiagMissingImports = mode
				}
			}
		case "no_typeshed":
			if b, ok := firstBoolArg(n); ok {
				cfg.Features.NoTypeshed = b
			}
		case "stdlib":
			if s, ok := firstStringArg(n); ok {
				cfg.Features.Stdlib = s
			}
		case "additional_stubs":
			cfg.Features.AdditionalStubs = collectStringArgs(n)
		case "performance":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "auto_save_delay":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.AutoSaveDelayMs = v
					}
				case "parallel_file_workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.ParallelFileWorkers = v
					}
				case "max_memory_mb":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.MaxMemoryMB = v
					}
				case "indexing_timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.IndexingTimeoutSec = v
					}
				}
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_count":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileCount = v
					}
				case "watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.WatchMode = b
					}
				case "watch_debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.WatchDebounceMs = v
					}
				}
			}
		case "include":
			cfg.Include = collectStringArgs(n)
		case "exclude":
			cfg.Exclude = collectStringArgs(n)
		}
	}
	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	b, ok := n.Arguments[0].Value.(bool)
	return b, ok
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// Overrides holds CLI-flag values that, when set, take precedence over
// whatever .corels.kdl specified — mirroring the teacher's
// loadConfigWithOverrides.
type Overrides struct {
	Root            string
	Addons          []string
	PythonPath      string
	NoTypeshed      *bool
	Stdlib          *string
	AdditionalStubs []string
	Workers         int
}

func ApplyOverrides(cfg *Config, o Overrides) {
	if o.Root != "" {
		cfg.Project.Root = o.Root
	}
	if len(o.Addons) > 0 {
		cfg.Addons = append(append([]string{}, cfg.Addons...), o.Addons...)
	}
	if o.PythonPath != "" {
		cfg.PythonPath = o.PythonPath
	}
	if o.NoTypeshed != nil {
		cfg.Features.NoTypeshed = *o.NoTypeshed
	}
	if o.Stdlib != nil {
		cfg.Features.Stdlib = *o.Stdlib
	}
	if len(o.AdditionalStubs) > 0 {
		cfg.Features.AdditionalStubs = append(append([]string{}, cfg.Features.AdditionalStubs...), o.AdditionalStubs...)
	}
	if o.Workers > 0 {
		cfg.Performance.ParallelFileWorkers = o.Workers
	}
}
