package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rockylabs/rocky/internal/defaults"
)

// runInit handles the "rocky init [dir]" subcommand. It creates the
// working directory layout and installs the example config. Existing
// files are never overwritten, so init is safe to re-run.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Rocky workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml and set your API keys, then run: rocky serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not already
// exist. This ensures init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil // already exists, skip
	}
	return os.WriteFile(path, content, 0o644)
}
