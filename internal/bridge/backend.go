// Package bridge loads package-manager plugins ("bridges") and drives the
// per-package install/update/remove protocol against them.
//
// Two backend conventions exist: an external subprocess convention (a `run`
// executable invoked once per operation) and an in-process Lua convention
// (a main.lua returning a table of functions). Both satisfy Backend;
// callers never branch on the kind.
package bridge

import (
	"context"

	"pkgbridge/internal/database/repository"
	"pkgbridge/internal/input"
)

// Op identifies a bridge operation. The string value is part of the wire
// contract: it is the first argument handed to subprocess entry points.
type Op string

const (
	OpInstall Op = "install"
	OpUpdate  Op = "update"
	OpRemove  Op = "remove"
)

// DefaultSentinel is the literal a subprocess bridge writes to stderr
// (with exit code 1) to request the built-in default behavior instead of
// implementing an operation itself.
const DefaultSentinel = "__IMPL_DEFAULT"

// Backend is one loaded bridge. Implementations resolve default-behavior
// negotiation internally, so a returned package or removed flag is always
// a final result.
//
// Execution is strictly serial: implementations may mutate process-wide
// state (the subprocess backend marshals attributes through the child
// environment) and are never called concurrently.
type Backend interface {
	Name() string

	// Install runs the install operation. The returned package carries the
	// bridge-reported version, path and type; the Bridge field is left for
	// the caller to fill.
	Install(ctx context.Context, decl input.PackageDeclaration) (repository.Package, error)

	// Update runs the update operation against a previously installed
	// package. Bridges without their own update implementation fall back to
	// remove-then-install.
	Update(ctx context.Context, decl input.PackageDeclaration, prior repository.Package) (repository.Package, error)

	// Remove runs the remove operation and reports whether anything was
	// actually removed.
	Remove(ctx context.Context, decl input.PackageDeclaration, prior repository.Package) (bool, error)
}

// OutcomeKind tags an interpreted invocation result.
type OutcomeKind int

const (
	// OutcomeSuccess carries a parsed package (install/update) or a removed
	// flag (remove).
	OutcomeSuccess OutcomeKind = iota
	// OutcomeDefault means the bridge requested the built-in default
	// behavior for this operation.
	OutcomeDefault
	// OutcomeFailure carries the bridge's failure message.
	OutcomeFailure
)

// Outcome is the interpreted result of a single raw invocation, before
// default-behavior negotiation.
type Outcome struct {
	Kind    OutcomeKind
	Package repository.Package // OutcomeSuccess on install/update
	Removed bool               // OutcomeSuccess on remove
	Message string             // OutcomeFailure
}
