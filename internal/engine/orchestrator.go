package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"pkgbridge/internal/bridge"
	"pkgbridge/internal/database/repository"
	"pkgbridge/internal/input"
	"pkgbridge/internal/materialize"
)

// Reporter receives progress events during a run. Implementations must not
// fail; the engine ignores nothing they return because they return nothing.
type Reporter interface {
	BridgeHeader(name string, installs, updates, removes int)
	JobHeader(kind JobKind, count int)
	PackageStart(index, total int, name string)
	PackageDone(kind JobKind, pkg repository.Package)
	PackageFailed(name, stage string, err error)
	LinkDone(count int, err error)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) BridgeHeader(string, int, int, int)      {}
func (NopReporter) JobHeader(JobKind, int)                  {}
func (NopReporter) PackageStart(int, int, string)           {}
func (NopReporter) PackageDone(JobKind, repository.Package) {}
func (NopReporter) PackageFailed(string, string, error)     {}
func (NopReporter) LinkDone(int, error)                     {}

// Summary totals one run.
type Summary struct {
	Installed int
	Removed   int
	Failed    int
}

// Stages a package job can fail in, as shown to the user.
const (
	stageBridge = "bridge operation"
	stageStore  = "storing files"
	stageRecord = "recording state"
)

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

// Orchestrator executes plans. One failing package never stops the run; it
// is reported, counted, and the run moves on.
type Orchestrator struct {
	Bridges  *bridge.Registry
	Packages *repository.PackageRepo
	Store    *materialize.Store
	Reporter Reporter
}

// Run plans against the current records and executes every job, then
// rebuilds the link directory from whatever the record store holds
// afterwards. Linking happens even when every job failed; the summary and
// the link error come back together.
func (o *Orchestrator) Run(ctx context.Context, set *input.Set, mode Mode, subset []string) (Summary, error) {
	rep := o.Reporter
	if rep == nil {
		rep = NopReporter{}
	}

	records, err := o.Packages.GetAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reading installed packages: %w", err)
	}

	var sum Summary
	for _, plan := range Plan(set, records, mode, subset) {
		rep.BridgeHeader(plan.Bridge, plan.Installs, plan.Updates, plan.Removes)
		backend, ok := o.Bridges.Get(plan.Bridge)
		if !ok {
			err := &bridge.NotFoundError{Name: plan.Bridge}
			for _, job := range plan.Jobs {
				rep.PackageFailed(job.Decl.Name, stageBridge, err)
				sum.Failed++
			}
			continue
		}

		for i := 0; i < len(plan.Jobs); {
			kind := plan.Jobs[i].Kind
			j := i
			for j < len(plan.Jobs) && plan.Jobs[j].Kind == kind {
				j++
			}
			rep.JobHeader(kind, j-i)
			for n, job := range plan.Jobs[i:j] {
				rep.PackageStart(n+1, j-i, job.Decl.Name)
				o.runJob(ctx, backend, job, &sum, rep)
			}
			i = j
		}
	}

	final, err := o.Packages.GetAll(ctx)
	if err != nil {
		return sum, fmt.Errorf("reading installed packages for linking: %w", err)
	}
	linkErr := o.Store.RelinkAll(final)
	rep.LinkDone(len(final), linkErr)
	return sum, linkErr
}

func (o *Orchestrator) runJob(ctx context.Context, backend bridge.Backend, job Job, sum *Summary, rep Reporter) {
	err := o.execute(ctx, backend, job)
	if err != nil {
		stage := stageBridge
		var se *stageError
		if serr, ok := err.(*stageError); ok {
			se = serr
			stage = se.stage
			err = se.err
		}
		log.Error().Err(err).Str("bridge", job.Bridge).Str("package", job.Decl.Name).
			Str("stage", stage).Msg("package job failed")
		rep.PackageFailed(job.Decl.Name, stage, err)
		sum.Failed++
		return
	}
	switch job.Kind {
	case JobRemove:
		sum.Removed++
		rep.PackageDone(job.Kind, *job.Prior)
	default:
		sum.Installed++
		pkg, _ := o.Packages.GetByNames(ctx, []string{job.Decl.Name})
		if len(pkg) == 1 {
			rep.PackageDone(job.Kind, pkg[0])
		} else {
			rep.PackageDone(job.Kind, repository.Package{Name: job.Decl.Name, Bridge: job.Bridge})
		}
	}
}

func (o *Orchestrator) execute(ctx context.Context, backend bridge.Backend, job Job) error {
	switch job.Kind {
	case JobInstall:
		pkg, err := backend.Install(ctx, job.Decl)
		if err != nil {
			return &stageError{stageBridge, err}
		}
		return o.adopt(ctx, &pkg, job.Bridge)

	case JobUpdate:
		pkg, err := backend.Update(ctx, job.Decl, *job.Prior)
		if err != nil {
			return &stageError{stageBridge, err}
		}
		return o.adopt(ctx, &pkg, job.Bridge)

	case JobReinstall:
		pkg, err := backend.Install(ctx, job.Decl)
		if err != nil {
			return &stageError{stageBridge, err}
		}
		// The stale record goes first so a later failure cannot leave a
		// record pointing at files the reinstall is about to replace.
		// Losing the record here is tolerable; losing files without a
		// record is not.
		if err := o.Packages.Delete(ctx, []string{job.Prior.Name}); err != nil {
			log.Warn().Err(err).Str("package", job.Prior.Name).Msg("could not drop prior record before reinstall")
		}
		return o.adopt(ctx, &pkg, job.Bridge)

	case JobRemove:
		removed, err := backend.Remove(ctx, job.Decl, *job.Prior)
		if err != nil {
			return &stageError{stageBridge, err}
		}
		if !removed {
			return &stageError{stageBridge, fmt.Errorf("bridge reported nothing removed for %q", job.Decl.Name)}
		}
		if _, err := o.Store.RemoveManaged([]repository.Package{*job.Prior}); err != nil {
			return &stageError{stageStore, err}
		}
		if err := o.Packages.Delete(ctx, []string{job.Prior.Name}); err != nil {
			return &stageError{stageRecord, err}
		}
		return nil
	}
	return fmt.Errorf("unknown job kind %d", job.Kind)
}

// adopt moves a freshly produced package into the managed store and writes
// its record.
func (o *Orchestrator) adopt(ctx context.Context, pkg *repository.Package, bridgeName string) error {
	if err := o.Store.Place(pkg, bridgeName); err != nil {
		return &stageError{stageStore, err}
	}
	pkg.Bridge = bridgeName
	if err := o.Packages.InsertOrReplace(ctx, []repository.Package{*pkg}, bridgeName); err != nil {
		return &stageError{stageRecord, err}
	}
	return nil
}
