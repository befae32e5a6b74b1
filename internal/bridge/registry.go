package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Options carries the run-wide settings every backend shares.
type Options struct {
	WorkRoot string
	LogRoot  string
	Timeout  time.Duration // per invocation, 0 = none
}

// Registry holds the bridges loaded for one run. Loaded once at startup;
// read-only afterwards.
type Registry struct {
	backends map[string]Backend
}

// Discover scans the immediate subdirectories of bridgeSet and loads every
// bridge named in needed. A subdirectory is a subprocess bridge if it
// contains a file literally named `run`, or a Lua bridge if it contains
// main.lua; `run` wins when both exist. Candidates not in needed are
// skipped outright, without so much as a permission check.
//
// Any problem here is fatal: there is no partial bridge set.
func Discover(bridgeSet string, needed []string, opts Options) (*Registry, error) {
	fi, err := os.Stat(bridgeSet)
	if err != nil {
		return nil, fmt.Errorf("bridge set %s: %w", bridgeSet, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("bridge set %s: not a directory", bridgeSet)
	}

	neededSet := make(map[string]bool, len(needed))
	for _, n := range needed {
		neededSet[n] = true
	}

	entries, err := os.ReadDir(bridgeSet)
	if err != nil {
		return nil, fmt.Errorf("bridge set %s: %w", bridgeSet, err)
	}

	backends := map[string]Backend{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !neededSet[name] {
			continue
		}

		runPath := filepath.Join(bridgeSet, name, "run")
		if fi, err := os.Stat(runPath); err == nil && fi.Mode().IsRegular() {
			if fi.Mode()&0o111 == 0 {
				return nil, &NotExecutableError{Path: runPath}
			}
			backends[name] = NewExecBackend(name, runPath, opts.WorkRoot, opts.LogRoot, opts.Timeout)
			log.Debug().Str("bridge", name).Str("entry", runPath).Msg("loaded subprocess bridge")
			continue
		}

		luaPath := filepath.Join(bridgeSet, name, "main.lua")
		if fi, err := os.Stat(luaPath); err == nil && fi.Mode().IsRegular() {
			lb, err := NewLuaBackend(name, luaPath, opts.LogRoot)
			if err != nil {
				return nil, err
			}
			backends[name] = lb
			log.Debug().Str("bridge", name).Str("entry", luaPath).Msg("loaded lua bridge")
		}
	}

	// Report the first missing bridge by declared order, not the full list.
	for _, name := range needed {
		if _, ok := backends[name]; !ok {
			return nil, &NotFoundError{Name: name}
		}
	}
	return &Registry{backends: backends}, nil
}

// Get returns the loaded backend for name.
func (r *Registry) Get(name string) (Backend, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// Names lists the loaded bridges, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for n := range r.backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
