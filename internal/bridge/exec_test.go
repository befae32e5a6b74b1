package bridge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pkgbridge/internal/database/repository"
	"pkgbridge/internal/input"
)

// writeBridge drops an executable `run` script for a fake bridge and
// returns a backend driving it.
func writeBridge(t *testing.T, script string) (*ExecBackend, string) {
	t.Helper()
	dir := t.TempDir()
	entry := filepath.Join(dir, "run")
	require.NoError(t, os.WriteFile(entry, []byte("#!/bin/sh\n"+script), 0o755))

	workRoot := filepath.Join(dir, "work")
	logRoot := filepath.Join(dir, "log")
	require.NoError(t, os.MkdirAll(logRoot, 0o755))
	return NewExecBackend("fake", entry, workRoot, logRoot, 0), logRoot
}

func decl(name, in string, attrs map[string]input.AttrValue) input.PackageDeclaration {
	if attrs == nil {
		attrs = map[string]input.AttrValue{}
	}
	return input.PackageDeclaration{Name: name, Input: in, Attributes: attrs}
}

func TestInstallSingleExecutable(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
printf hello > hello
echo "hello,1.0.0"
`)

	pkg, err := b.Install(context.Background(), decl("hello", "hello-src", nil))
	require.NoError(t, err)
	require.Equal(t, "hello", pkg.Name)
	require.Equal(t, "1.0.0", pkg.Version.String())
	require.Equal(t, repository.TypeSingleExecutable, pkg.PkgType)
	require.FileExists(t, pkg.Path)
	require.Equal(t, pkg.Path, pkg.EntryPoint)
}

func TestInstallDirectoryWithEntryPoint(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
mkdir -p tool/bin
printf bin > tool/bin/tool
echo "tool,2.3.4,tool/bin/tool"
`)

	pkg, err := b.Install(context.Background(), decl("tool", "tool-src", nil))
	require.NoError(t, err)
	require.Equal(t, repository.TypeDirectory, pkg.PkgType)
	require.DirExists(t, pkg.Path)
	require.Equal(t, filepath.Join(pkg.Path, "bin", "tool"), pkg.EntryPoint)
}

func TestInstallReceivesArgsAndAttributes(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
[ "$1" = install ] || { echo "bad op $1" >&2; exit 3; }
[ "$2" = my-input ] || { echo "bad input $2" >&2; exit 3; }
[ "$head" = true ] || { echo "bad head $head" >&2; exit 3; }
[ "$jobs" = 4 ] || { echo "bad jobs $jobs" >&2; exit 3; }
[ -n "$pkg_log_file" ] || { echo "no log file" >&2; exit 3; }
printf x > out
echo "out,0.0.1"
`)

	attrs := map[string]input.AttrValue{
		"head": input.BooleanValue(true),
		"jobs": input.IntegerValue(4),
	}
	_, err := b.Install(context.Background(), decl("out", "my-input", attrs))
	require.NoError(t, err)
}

func TestInstallRunsInFreshWorkdirs(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
printf x > out
echo "out,0.0.1"
`)

	first, err := b.Install(context.Background(), decl("out", "x", nil))
	require.NoError(t, err)
	second, err := b.Install(context.Background(), decl("out", "x", nil))
	require.NoError(t, err)
	require.NotEqual(t, first.Path, second.Path)
}

func TestInstallFailureCarriesStderr(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
echo "disk full" >&2
exit 2
`)

	_, err := b.Install(context.Background(), decl("pkg", "x", nil))
	var fe *FailureError
	require.ErrorAs(t, err, &fe)
	require.Contains(t, fe.Error(), "disk full")
}

func TestInstallRejectsBadVersion(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
printf x > out
echo "out,1.2"
`)

	_, err := b.Install(context.Background(), decl("out", "x", nil))
	require.ErrorIs(t, err, ErrWrongVersionFormat)
}

func TestInstallRejectsMissingReportedPath(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `echo "never-created,1.0.0"`)

	_, err := b.Install(context.Background(), decl("x", "x", nil))
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestInstallRejectsMalformedOutput(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `echo "just-one-field"`)

	_, err := b.Install(context.Background(), decl("x", "x", nil))
	require.ErrorIs(t, err, ErrMalformedOutput)
}

func TestInstallDefaultRequestIsAFailure(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
echo "__IMPL_DEFAULT" >&2
exit 1
`)

	_, err := b.Install(context.Background(), decl("x", "x", nil))
	var fe *FailureError
	require.ErrorAs(t, err, &fe)
}

func TestRemoveExitZeroMeansRemoved(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
[ "$1" = remove ] || exit 3
[ -n "$pkg_path" ] || exit 3
rm -rf "$pkg_path"
`)

	prior := repository.Package{Name: "x", Path: filepath.Join(t.TempDir(), "x")}
	require.NoError(t, os.WriteFile(prior.Path, []byte("x"), 0o755))

	removed, err := b.Remove(context.Background(), decl("x", "x", nil), prior)
	require.NoError(t, err)
	require.True(t, removed)
	require.NoFileExists(t, prior.Path)
}

func TestRemoveDefaultSentinelDeletesPriorPath(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
echo "__IMPL_DEFAULT" >&2
exit 1
`)

	prior := repository.Package{Name: "x", Path: filepath.Join(t.TempDir(), "x")}
	require.NoError(t, os.WriteFile(prior.Path, []byte("x"), 0o755))

	removed, err := b.Remove(context.Background(), decl("x", "x", nil), prior)
	require.NoError(t, err)
	require.True(t, removed)
	require.NoFileExists(t, prior.Path)
}

func TestRemoveDefaultOnMissingPathReportsNothingRemoved(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
echo "__IMPL_DEFAULT" >&2
exit 1
`)

	prior := repository.Package{Name: "x", Path: filepath.Join(t.TempDir(), "gone")}
	removed, err := b.Remove(context.Background(), decl("x", "x", nil), prior)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestUpdateDefaultFallsBackToRemoveThenInstall(t *testing.T) {
	t.Parallel()
	b, _ := writeBridge(t, `
if [ "$1" = update ]; then
	echo "__IMPL_DEFAULT" >&2
	exit 1
fi
printf new > out
echo "out,2.0.0"
`)

	prior := repository.Package{Name: "out", Path: filepath.Join(t.TempDir(), "old")}
	require.NoError(t, os.WriteFile(prior.Path, []byte("old"), 0o755))

	pkg, err := b.Update(context.Background(), decl("out", "x", nil), prior)
	require.NoError(t, err)
	require.Equal(t, "2.0.0", pkg.Version.String())
	require.NoFileExists(t, prior.Path)
}

func TestTimeoutKillsHungBridge(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	entry := filepath.Join(dir, "run")
	require.NoError(t, os.WriteFile(entry, []byte("#!/bin/sh\nsleep 30\n"), 0o755))
	b := NewExecBackend("hung", entry, filepath.Join(dir, "work"), dir, 100*time.Millisecond)

	start := time.Now()
	_, err := b.Install(context.Background(), decl("x", "x", nil))
	require.Error(t, err)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestInvocationAppendsToBridgeLog(t *testing.T) {
	t.Parallel()
	b, logRoot := writeBridge(t, `
echo "to stdout"
echo "to stderr" >&2
printf x > out
echo "out,1.0.0"
`)

	_, err := b.Install(context.Background(), decl("out", "x", nil))
	require.NoError(t, err)
	_, err = b.Install(context.Background(), decl("out", "x", nil))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(logRoot, "fake.log"))
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, "to stdout")
	require.Contains(t, text, "to stderr")
	require.Equal(t, 2, strings.Count(text, "--- stdout ---"))
}
