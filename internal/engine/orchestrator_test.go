package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pkgbridge/internal/bridge"
	"pkgbridge/internal/database"
	"pkgbridge/internal/database/repository"
	"pkgbridge/internal/input"
	"pkgbridge/internal/materialize"
)

// installScript produces `<name>,1.0.0` and removes via the built-in
// default. A package whose input is exactly "fail" errors out.
const installScript = `#!/bin/sh
case "$1" in
remove)
	echo "__IMPL_DEFAULT" >&2
	exit 1
	;;
esac
if [ "$2" = fail ]; then
	echo "boom" >&2
	exit 2
fi
printf x > artifact
echo "artifact,1.0.0"
`

type orchFixture struct {
	orc       *Orchestrator
	repo      *repository.PackageRepo
	targetDir string
	linkDir   string
	ctx       context.Context
}

func setupOrchestrator(t *testing.T) *orchFixture {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	root := t.TempDir()
	bridgeSet := filepath.Join(root, "bridges", "fake")
	require.NoError(t, os.MkdirAll(bridgeSet, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bridgeSet, "run"), []byte(installScript), 0o755))

	registry, err := bridge.Discover(filepath.Join(root, "bridges"), []string{"fake"}, bridge.Options{
		WorkRoot: filepath.Join(root, "work"),
		LogRoot:  filepath.Join(root, "log"),
	})
	require.NoError(t, err)

	db, err := database.Open(filepath.Join(root, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrationsWithDB(db))

	repo := repository.NewPackageRepo(db)
	targetDir := filepath.Join(root, "store")
	linkDir := filepath.Join(root, "bin")
	return &orchFixture{
		orc: &Orchestrator{
			Bridges:  registry,
			Packages: repo,
			Store:    materialize.New(targetDir, linkDir),
		},
		repo:      repo,
		targetDir: targetDir,
		linkDir:   linkDir,
		ctx:       ctx,
	}
}

func fakeSet(inputs map[string]string, names ...string) *input.Set {
	group := input.BridgeGroup{Name: "fake"}
	for _, n := range names {
		in := inputs[n]
		if in == "" {
			in = n + "-src"
		}
		group.Packages = append(group.Packages, input.PackageDeclaration{
			Name: n, Input: in, Attributes: map[string]input.AttrValue{},
		})
	}
	return &input.Set{Bridges: []input.BridgeGroup{group}}
}

func TestRunInstallsAndLinks(t *testing.T) {
	t.Parallel()
	f := setupOrchestrator(t)

	sum, err := f.orc.Run(f.ctx, fakeSet(nil, "hello"), ModeBuild, nil)
	require.NoError(t, err)
	require.Equal(t, Summary{Installed: 1}, sum)

	all, err := f.repo.GetAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "hello", all[0].Name)
	require.Equal(t, "1.0.0", all[0].Version.String())
	require.Equal(t, "fake", all[0].Bridge)
	require.Equal(t, filepath.Join(f.targetDir, "fake", "hello"), all[0].Path)
	require.FileExists(t, all[0].Path)

	dest, err := os.Readlink(filepath.Join(f.linkDir, "hello"))
	require.NoError(t, err)
	require.Equal(t, all[0].Path, dest)
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()
	f := setupOrchestrator(t)
	set := fakeSet(nil, "hello")

	_, err := f.orc.Run(f.ctx, set, ModeBuild, nil)
	require.NoError(t, err)
	sum, err := f.orc.Run(f.ctx, set, ModeBuild, nil)
	require.NoError(t, err)
	require.Equal(t, Summary{}, sum)
}

func TestRunRemovesUndeclared(t *testing.T) {
	t.Parallel()
	f := setupOrchestrator(t)

	_, err := f.orc.Run(f.ctx, fakeSet(nil, "hello"), ModeBuild, nil)
	require.NoError(t, err)

	sum, err := f.orc.Run(f.ctx, fakeSet(nil), ModeBuild, nil)
	require.NoError(t, err)
	require.Equal(t, Summary{Removed: 1}, sum)

	all, err := f.repo.GetAll(f.ctx)
	require.NoError(t, err)
	require.Empty(t, all)
	require.NoFileExists(t, filepath.Join(f.targetDir, "fake", "hello"))
	require.NoFileExists(t, filepath.Join(f.linkDir, "hello"))
}

func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()
	f := setupOrchestrator(t)

	set := fakeSet(map[string]string{"bad": "fail"}, "bad", "good")
	sum, err := f.orc.Run(f.ctx, set, ModeBuild, nil)
	require.NoError(t, err)
	require.Equal(t, Summary{Installed: 1, Failed: 1}, sum)

	all, err := f.repo.GetAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "good", all[0].Name)

	// Linking still ran for the survivor.
	require.FileExists(t, filepath.Join(f.linkDir, "good"))
}

func TestRunUpdateMode(t *testing.T) {
	t.Parallel()
	f := setupOrchestrator(t)

	_, err := f.orc.Run(f.ctx, fakeSet(nil, "hello", "other"), ModeBuild, nil)
	require.NoError(t, err)

	sum, err := f.orc.Run(f.ctx, fakeSet(nil, "hello", "other"), ModeUpdate, []string{"hello"})
	require.NoError(t, err)
	require.Equal(t, Summary{Installed: 1}, sum)

	all, err := f.repo.GetAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestRunRebuildKeepsRecord(t *testing.T) {
	t.Parallel()
	f := setupOrchestrator(t)

	_, err := f.orc.Run(f.ctx, fakeSet(nil, "hello"), ModeBuild, nil)
	require.NoError(t, err)

	sum, err := f.orc.Run(f.ctx, fakeSet(nil, "hello"), ModeRebuild, nil)
	require.NoError(t, err)
	require.Equal(t, Summary{Installed: 1}, sum)

	all, err := f.repo.GetAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.FileExists(t, all[0].Path)
}
