// Command lci-ls is the engine's CLI entry point. Its only mode today
// is --parse: load configuration, resolve every configured entry point,
// run the four build stages once to completion, write output.json, and
// exit non-zero if any entry point failed to resolve. Grounded on the
// teacher's cmd/lci/main.go App/Before-hook/loadConfigWithOverrides
// shape, scoped down to the single operation spec.md §6 names (no
// search/grep/tree/git-analyze subcommands: those have no equivalent in
// this engine's external interface).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/corels/internal/config"
	"github.com/standardbeagle/corels/internal/debug"
	"github.com/standardbeagle/corels/internal/entrypoint"
	"github.com/standardbeagle/corels/internal/report"
	"github.com/standardbeagle/corels/internal/session"
)

// loadConfigWithOverrides loads .corels.kdl and applies CLI flag
// overrides, mirroring the teacher's function of the same name.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	configPath := c.String("config")
	if rootFlag := c.String("root"); rootFlag != "" && configPath == ".corels.kdl" {
		configPath = filepath.Join(rootFlag, ".corels.kdl")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	var noTypeshed *bool
	if c.IsSet("no-typeshed") {
		v := c.Bool("no-typeshed")
		noTypeshed = &v
	}
	var stdlib *string
	if c.IsSet("stdlib") {
		v := c.String("stdlib")
		stdlib = &v
	}
	root := c.String("root")
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		root = abs
	}
	config.ApplyOverrides(cfg, config.Overrides{
		Root:            root,
		Addons:          c.StringSlice("addon"),
		PythonPath:      c.String("python-path"),
		NoTypeshed:      noTypeshed,
		Stdlib:          stdlib,
		AdditionalStubs: c.StringSlice("stubs"),
		Workers:         c.Int("workers"),
	})
	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:  "lci-ls",
		Usage: "incremental symbol-graph engine for dynamically-typed ORM frameworks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: ".corels.kdl", Usage: "config file path"},
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "project root (overrides config)"},
			&cli.StringSliceFlag{Name: "addon", Usage: "additional addon search root, repeatable"},
			&cli.StringFlag{Name: "python-path", Usage: "interpreter used to locate stdlib/site-packages"},
			&cli.BoolFlag{Name: "no-typeshed", Usage: "disable typeshed-style stub search (stdlib stubs still apply)"},
			&cli.StringFlag{Name: "stdlib", Usage: "override path to the interpreter stdlib stub directory"},
			&cli.StringSliceFlag{Name: "stubs", Usage: "additional compiled-stub search root, repeatable"},
			&cli.IntFlag{Name: "workers", Usage: "parallel stage workers (overrides config)"},
			&cli.BoolFlag{Name: "debug", Usage: "emit debug-level logs to stderr"},
			&cli.StringFlag{Name: "output", Value: "output.json", Usage: "where to write the parse report"},
			&cli.BoolFlag{Name: "parse", Usage: "run once and exit (the only supported mode)", Value: true},
		},
		Action: runParse,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "lci-ls:", err)
		os.Exit(1)
	}
}

func runParse(c *cli.Context) error {
	if c.Bool("debug") {
		debug.SetOutput(os.Stderr)
		debug.SetMinLevel(debug.LevelDebug)
	}

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	if cfg.Project.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cfg.Project.Root = wd
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	e := session.New(cfg)
	e.Entries.Add(entrypoint.KindMain, cfg.Project.Root)
	for _, addon := range cfg.Addons {
		e.Entries.Add(entrypoint.KindAddon, addon)
	}

	if err := e.ScanWorkspace(ctx); err != nil {
		return fmt.Errorf("failed to scan workspace: %w", err)
	}
	if err := e.RunAllStages(ctx); err != nil {
		return fmt.Errorf("build stages failed: %w", err)
	}

	rep := report.Build(e)
	data, err := rep.MarshalIndent()
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(c.String("output"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.String("output"), err)
	}
	debug.Info("cli", "wrote %s (%d files, %d models)", c.String("output"), len(rep.Files), len(rep.Models))
	return nil
}
