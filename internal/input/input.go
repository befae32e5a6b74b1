// Package input loads the declared package set: which packages the user
// wants, grouped by the bridge that installs them.
//
// Declarations live in TOML files under the configured source directory,
// one table per package:
//
//	[homebrew.ripgrep]
//	input = "rg"
//	head = false
//
// The first path element names the bridge, the second the package. Every
// key other than input becomes a typed attribute handed to the bridge.
package input

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// AttrKind tags an attribute value.
type AttrKind int

const (
	AttrString AttrKind = iota
	AttrInteger
	AttrFloat
	AttrBoolean
)

// AttrValue is a tagged attribute value. Only the field matching Kind is
// meaningful.
type AttrValue struct {
	Kind  AttrKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

func StringValue(s string) AttrValue { return AttrValue{Kind: AttrString, Str: s} }
func IntegerValue(i int64) AttrValue { return AttrValue{Kind: AttrInteger, Int: i} }
func FloatValue(f float64) AttrValue { return AttrValue{Kind: AttrFloat, Float: f} }
func BooleanValue(b bool) AttrValue  { return AttrValue{Kind: AttrBoolean, Bool: b} }

// EnvString renders the value the way it is passed to bridges: strings
// verbatim, numbers and booleans in their natural decimal form.
func (v AttrValue) EnvString() string {
	switch v.Kind {
	case AttrInteger:
		return strconv.FormatInt(v.Int, 10)
	case AttrFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case AttrBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// PackageDeclaration is one declared package. Immutable once loaded.
type PackageDeclaration struct {
	Name       string
	Input      string
	Attributes map[string]AttrValue
}

// BridgeGroup is the ordered list of packages declared for one bridge.
// Declaration order drives processing order.
type BridgeGroup struct {
	Name     string
	Packages []PackageDeclaration
}

// Set is the full declared state.
type Set struct {
	Bridges []BridgeGroup
}

// BridgeNames returns the declared bridge names in declaration order.
func (s *Set) BridgeNames() []string {
	names := make([]string, len(s.Bridges))
	for i, b := range s.Bridges {
		names[i] = b.Name
	}
	return names
}

// PackageNames returns every declared package name across all bridges.
func (s *Set) PackageNames() []string {
	var names []string
	for _, b := range s.Bridges {
		for _, p := range b.Packages {
			names = append(names, p.Name)
		}
	}
	return names
}

// DuplicatePackageError reports a package declared twice anywhere in the
// declared set; names are global, not per-bridge.
type DuplicatePackageError struct {
	Name string
}

func (e *DuplicatePackageError) Error() string {
	return fmt.Sprintf("duplicate package declaration: %s", e.Name)
}

// Load reads every non-hidden .toml file under dir (recursively, in
// lexical order) and merges them into one declared set.
func Load(dir string) (*Set, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".toml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	set := &Set{}
	seen := map[string]bool{}
	groups := map[string]int{} // bridge name -> index in set.Bridges
	for _, path := range paths {
		if err := loadFile(path, set, seen, groups); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func loadFile(path string, set *Set, seen map[string]bool, groups map[string]int) error {
	var raw map[string]map[string]map[string]interface{}
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	// toml maps are unordered; MetaData.Keys preserves document order, and
	// two-element keys are exactly the [bridge.pkg] table headers.
	for _, key := range md.Keys() {
		if len(key) != 2 {
			continue
		}
		bridgeName, pkgName := key[0], key[1]
		body, ok := raw[bridgeName][pkgName]
		if !ok {
			continue
		}
		if seen[pkgName] {
			return &DuplicatePackageError{Name: pkgName}
		}
		seen[pkgName] = true

		decl, err := parseDeclaration(pkgName, body)
		if err != nil {
			return fmt.Errorf("%s: package %s.%s: %w", path, bridgeName, pkgName, err)
		}

		idx, ok := groups[bridgeName]
		if !ok {
			idx = len(set.Bridges)
			groups[bridgeName] = idx
			set.Bridges = append(set.Bridges, BridgeGroup{Name: bridgeName})
		}
		set.Bridges[idx].Packages = append(set.Bridges[idx].Packages, decl)
	}
	return nil
}

func parseDeclaration(name string, body map[string]interface{}) (PackageDeclaration, error) {
	decl := PackageDeclaration{Name: name, Attributes: map[string]AttrValue{}}
	for key, value := range body {
		if key == "input" {
			s, ok := value.(string)
			if !ok {
				return decl, fmt.Errorf("input must be a string")
			}
			decl.Input = s
			continue
		}
		attr, err := attrValue(value)
		if err != nil {
			return decl, fmt.Errorf("attribute %s: %w", key, err)
		}
		decl.Attributes[key] = attr
	}
	if decl.Input == "" {
		return decl, fmt.Errorf("missing required input field")
	}
	return decl, nil
}

func attrValue(value interface{}) (AttrValue, error) {
	switch v := value.(type) {
	case string:
		return StringValue(v), nil
	case int64:
		return IntegerValue(v), nil
	case float64:
		return FloatValue(v), nil
	case bool:
		return BooleanValue(v), nil
	default:
		return AttrValue{}, fmt.Errorf("unsupported attribute type %T", value)
	}
}
