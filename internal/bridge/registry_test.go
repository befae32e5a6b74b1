package bridge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeBridgeDir(t *testing.T, root, name, entry string, mode os.FileMode, content string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, entry), []byte(content), mode))
}

func TestDiscoverLoadsBothKinds(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeBridgeDir(t, root, "cargo", "run", 0o755, "#!/bin/sh\nexit 0\n")
	writeBridgeDir(t, root, "lua", "main.lua", 0o644, "return { install = function() end }")

	reg, err := Discover(root, []string{"cargo", "lua"}, Options{WorkRoot: root, LogRoot: root})
	require.NoError(t, err)
	require.Equal(t, []string{"cargo", "lua"}, reg.Names())

	b, ok := reg.Get("cargo")
	require.True(t, ok)
	require.IsType(t, &ExecBackend{}, b)

	b, ok = reg.Get("lua")
	require.True(t, ok)
	require.IsType(t, &LuaBackend{}, b)
}

func TestDiscoverSkipsUnneededWithoutChecks(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeBridgeDir(t, root, "cargo", "run", 0o755, "#!/bin/sh\nexit 0\n")
	// Broken, but nothing declares it, so it must not be touched.
	writeBridgeDir(t, root, "broken", "run", 0o644, "not executable")

	reg, err := Discover(root, []string{"cargo"}, Options{WorkRoot: root, LogRoot: root})
	require.NoError(t, err)
	require.Equal(t, []string{"cargo"}, reg.Names())
	_, ok := reg.Get("broken")
	require.False(t, ok)
}

func TestDiscoverRejectsNonExecutableRun(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeBridgeDir(t, root, "cargo", "run", 0o644, "#!/bin/sh\nexit 0\n")

	_, err := Discover(root, []string{"cargo"}, Options{WorkRoot: root, LogRoot: root})
	var nee *NotExecutableError
	require.ErrorAs(t, err, &nee)
}

func TestDiscoverReportsFirstMissingBridge(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeBridgeDir(t, root, "cargo", "run", 0o755, "#!/bin/sh\nexit 0\n")

	_, err := Discover(root, []string{"cargo", "ghost", "phantom"}, Options{WorkRoot: root, LogRoot: root})
	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	require.Equal(t, "ghost", nfe.Name)
}

func TestDiscoverRejectsMissingRoot(t *testing.T) {
	t.Parallel()
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), nil, Options{})
	require.Error(t, err)
}
