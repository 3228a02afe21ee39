package main

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/untoldecay/bones/internal/bonerr"
	"github.com/untoldecay/bones/internal/config"
	"github.com/untoldecay/bones/internal/engine"
)

// wantJSON reports whether output should be machine-readable: the --json
// flag always wins; absent that, a non-interactive stdout (piped, a file,
// or a CI runner) defaults to JSON the way scripts expect.
func wantJSON() bool {
	if flagJSON {
		return true
	}
	return !term.IsTerminal(int(os.Stdout.Fd()))
}

// emit writes v as pretty JSON when wantJSON(), otherwise calls human to
// render the text form.
func emit(v any, human func()) {
	if wantJSON() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fail(err)
		}
		return
	}
	human()
}

// fail prints err and exits with a status derived from its bonerr.Code, so
// scripts can branch on exit status without parsing stderr.
func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	switch bonerr.CodeOf(err) {
	case bonerr.NotAProject:
		os.Exit(2)
	case bonerr.LockTimeout:
		os.Exit(3)
	case bonerr.ItemNotFound:
		os.Exit(4)
	default:
		os.Exit(1)
	}
}

// openEngine finds the repository root (the nearest ancestor of cwd
// containing a .bones directory) and opens the engine there.
func openEngine() *engine.Engine {
	root, err := findRepoRoot()
	if err != nil {
		fail(err)
	}
	e, err := engine.Open(root)
	if err != nil {
		fail(err)
	}
	return e
}

func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", bonerr.Wrap(bonerr.IO, "getting working directory", err)
	}
	for dir := cwd; ; {
		if info, err := os.Stat(dir + "/.bones"); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := parentDir(dir)
		if parent == dir {
			return "", bonerr.New(bonerr.NotAProject, "no .bones directory found in "+cwd+" or any parent")
		}
		dir = parent
	}
}

func parentDir(dir string) string {
	for i := len(dir) - 1; i > 0; i-- {
		if dir[i] == '/' {
			return dir[:i]
		}
	}
	return dir
}

// resolveAgent applies the --agent flag over config/git/hostname fallback.
func resolveAgent() string {
	return config.ResolveAgent(flagAgent)
}
