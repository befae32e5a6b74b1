// Package materialize owns the managed package store and the
// active-package link farm. Bridges build artifacts in scratch space;
// this package moves them into place and keeps the launcher symlinks
// pointing at whatever the record store says is installed.
package materialize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pkgbridge/internal/database/repository"
)

// Store places packages under `<targetDir>/<bridge>/<name>` and maintains
// one `<linkDir>/<name>` symlink per installed package.
type Store struct {
	targetDir string
	linkDir   string
}

func New(targetDir, linkDir string) *Store {
	return &Store{targetDir: targetDir, linkDir: linkDir}
}

// Place moves the package artifact into the managed store, replacing any
// previous copy, and rewrites the package's path (and entry point, for
// directory packages) to the managed location.
func (s *Store) Place(p *repository.Package, bridge string) error {
	dir := filepath.Join(s.targetDir, bridge)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	target := filepath.Join(dir, p.Name)
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("clear previous copy: %w", err)
	}
	if err := os.Rename(p.Path, target); err != nil {
		return fmt.Errorf("store %s: %w", p.Name, err)
	}

	if p.PkgType == repository.TypeDirectory {
		// The entry point lives inside the artifact; keep it pointing into
		// the relocated copy.
		if rel, ok := strings.CutPrefix(p.EntryPoint, p.Path); ok {
			p.EntryPoint = target + rel
		}
	} else {
		p.EntryPoint = target
	}
	p.Path = target
	return nil
}

// RemoveManaged deletes the managed copies of the given records, reporting
// whether anything was actually on disk.
func (s *Store) RemoveManaged(pkgs []repository.Package) (bool, error) {
	removed := false
	for _, p := range pkgs {
		if _, err := os.Lstat(p.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		if err := os.RemoveAll(p.Path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", p.Name, err)
		}
		removed = true
	}
	return removed, nil
}

// RelinkAll rebuilds the link farm from scratch: every managed symlink in
// the link directory is removed and recreated from the given record
// snapshot. Idempotent and never incremental. Non-symlink entries in the
// link directory are left alone.
func (s *Store) RelinkAll(pkgs []repository.Package) error {
	if err := os.MkdirAll(s.linkDir, 0o755); err != nil {
		return fmt.Errorf("create link dir: %w", err)
	}

	entries, err := os.ReadDir(s.linkDir)
	if err != nil {
		return fmt.Errorf("read link dir: %w", err)
	}
	for _, e := range entries {
		path := filepath.Join(s.linkDir, e.Name())
		fi, err := os.Lstat(path)
		if err != nil {
			return err
		}
		if fi.Mode()&os.ModeSymlink == 0 {
			continue
		}
		dest, err := os.Readlink(path)
		if err != nil || !strings.HasPrefix(dest, s.targetDir+string(os.PathSeparator)) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("unlink %s: %w", path, err)
		}
	}

	for _, p := range pkgs {
		link := filepath.Join(s.linkDir, p.Name)
		if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("unlink %s: %w", link, err)
		}
		if err := os.Symlink(p.ResolvedEntryPoint(), link); err != nil {
			return fmt.Errorf("link %s: %w", p.Name, err)
		}
	}
	return nil
}
