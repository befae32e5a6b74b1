package repository

import (
	"fmt"
	"strings"
)

// PkgType distinguishes how a stored package is shaped on disk.
type PkgType string

const (
	// TypeSingleExecutable is a package that is one executable file; its
	// entry point is the package path itself.
	TypeSingleExecutable PkgType = "SingleExecutable"
	// TypeDirectory is a package directory with an explicit entry point
	// inside it.
	TypeDirectory PkgType = "Directory"
)

// Version is a three-cell package version. Cells are kept as strings to
// tolerate non-numeric schemes ("1.2.beta3" is a valid version).
type Version struct {
	First  string
	Second string
	Third  string
}

// ParseVersion splits s on dots. Anything other than exactly three cells is
// rejected.
func ParseVersion(s string) (Version, error) {
	cells := strings.Split(s, ".")
	if len(cells) != 3 {
		return Version{}, fmt.Errorf("version %q: want exactly 3 dot-separated cells, got %d", s, len(cells))
	}
	return Version{First: cells[0], Second: cells[1], Third: cells[2]}, nil
}

func (v Version) String() string {
	return v.First + "." + v.Second + "." + v.Third
}

// Package represents a packages row: one installed package.
type Package struct {
	Name       string
	Version    Version
	Path       string
	PkgType    PkgType
	EntryPoint string // equals Path for single executables
	Bridge     string
}

// ResolvedEntryPoint is the path a launcher symlink should point at.
func (p Package) ResolvedEntryPoint() string {
	if p.PkgType == TypeDirectory {
		return p.EntryPoint
	}
	return p.Path
}
