package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateFlags(t *testing.T) {
	globals := &Globals{Format: "ndjson", Quiet: false, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	require.Error(t, validateFlags(globals, true, true))

	globals = &Globals{Format: "text", Quiet: true, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	require.Error(t, validateFlags(globals, false, false))

	globals = &Globals{Format: "text", Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	require.Error(t, validateFlags(globals, true, false))

	globals = &Globals{Format: "ndjson", Quiet: false, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	require.NoError(t, validateFlags(globals, false, false))
}

func TestValidateStrategy(t *testing.T) {
	globals := &Globals{Format: "ndjson", Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	dir := t.TempDir()
	file := filepath.Join(dir, "main.jsbundle")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	require.NoError(t, validateStrategy(globals, strategyBundle, ""))
	require.NoError(t, validateStrategy(globals, strategyOverride, dir))

	require.Error(t, validateStrategy(globals, strategyOverride, ""))
	require.Error(t, validateStrategy(globals, strategyOverride, filepath.Join(dir, "missing")))
	require.Error(t, validateStrategy(globals, strategyOverride, file))
	require.Error(t, validateStrategy(globals, "magic", dir))
}
