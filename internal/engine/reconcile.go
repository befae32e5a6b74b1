// Package engine diffs the declared package set against the installed
// records and walks the resulting jobs through a bridge, the managed
// store, and the record store.
package engine

import (
	"pkgbridge/internal/database/repository"
	"pkgbridge/internal/input"
)

// Mode selects which jobs a run produces.
type Mode int

const (
	// ModeBuild installs missing packages and removes undeclared ones.
	ModeBuild Mode = iota
	// ModeBuildUpdate is ModeBuild with an update pass over already
	// installed packages first.
	ModeBuildUpdate
	// ModeRebuild reinstalls already installed packages, then behaves like
	// ModeBuild.
	ModeRebuild
	// ModeUpdate only updates installed declared packages, optionally
	// narrowed to a subset.
	ModeUpdate
)

// JobKind is the operation a job performs.
type JobKind int

const (
	JobInstall JobKind = iota
	JobUpdate
	JobRemove
	JobReinstall
)

func (k JobKind) String() string {
	switch k {
	case JobUpdate:
		return "update"
	case JobRemove:
		return "remove"
	case JobReinstall:
		return "reinstall"
	default:
		return "install"
	}
}

// Job is one operation on one package through one bridge. Prior is the
// installed record for update/remove/reinstall jobs, nil for installs.
type Job struct {
	Bridge string
	Kind   JobKind
	Decl   input.PackageDeclaration
	Prior  *repository.Package
}

// BridgePlan is the ordered job list for one bridge.
type BridgePlan struct {
	Bridge   string
	Jobs     []Job
	Installs int
	Updates  int
	Removes  int
}

// Plan diffs declared state against installed records into per-bridge job
// lists. Bridges come out in declaration order; within a bridge the job
// order is fixed by mode. subset only narrows updates, and only when
// non-empty.
//
// Declared names are assumed unique across the whole set; the input layer
// rejects duplicates before anything gets here.
func Plan(set *input.Set, records []repository.Package, mode Mode, subset []string) []BridgePlan {
	recordByName := make(map[string]repository.Package, len(records))
	for _, r := range records {
		recordByName[r.Name] = r
	}
	subsetSet := map[string]bool{}
	for _, n := range subset {
		subsetSet[n] = true
	}

	var plans []BridgePlan
	for _, group := range set.Bridges {
		declared := make(map[string]bool, len(group.Packages))
		for _, d := range group.Packages {
			declared[d.Name] = true
		}

		var toInstall, toUpdate []Job
		for _, decl := range group.Packages {
			rec, installed := recordByName[decl.Name]
			if !installed {
				toInstall = append(toInstall, Job{Bridge: group.Name, Kind: JobInstall, Decl: decl})
				continue
			}
			if len(subsetSet) > 0 && !subsetSet[decl.Name] {
				continue
			}
			prior := rec
			toUpdate = append(toUpdate, Job{Bridge: group.Name, Kind: JobUpdate, Decl: decl, Prior: &prior})
		}

		var toRemove []Job
		for _, rec := range records {
			if rec.Bridge != group.Name || declared[rec.Name] {
				continue
			}
			prior := rec
			// A removed package lost its declaration along with its
			// attributes; the installed path stands in for the input.
			toRemove = append(toRemove, Job{
				Bridge: group.Name,
				Kind:   JobRemove,
				Decl:   input.PackageDeclaration{Name: rec.Name, Input: rec.Path, Attributes: map[string]input.AttrValue{}},
				Prior:  &prior,
			})
		}

		plan := BridgePlan{Bridge: group.Name}
		switch mode {
		case ModeBuild:
			plan.Jobs = append(plan.Jobs, toInstall...)
			plan.Jobs = append(plan.Jobs, toRemove...)
		case ModeBuildUpdate:
			plan.Jobs = append(plan.Jobs, toUpdate...)
			plan.Jobs = append(plan.Jobs, toInstall...)
			plan.Jobs = append(plan.Jobs, toRemove...)
		case ModeRebuild:
			for _, j := range toUpdate {
				j.Kind = JobReinstall
				plan.Jobs = append(plan.Jobs, j)
			}
			plan.Jobs = append(plan.Jobs, toInstall...)
			plan.Jobs = append(plan.Jobs, toRemove...)
		case ModeUpdate:
			plan.Jobs = append(plan.Jobs, toUpdate...)
		}

		for _, j := range plan.Jobs {
			switch j.Kind {
			case JobInstall:
				plan.Installs++
			case JobUpdate, JobReinstall:
				plan.Updates++
			case JobRemove:
				plan.Removes++
			}
		}
		plans = append(plans, plan)
	}
	return plans
}
