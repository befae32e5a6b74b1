package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pkgbridge/internal/database/repository"
	"pkgbridge/internal/input"
)

// ExecBackend drives one subprocess bridge. Each operation spawns
// `<entryPoint> <op> <input>` in a fresh scratch directory with the
// package attributes marshaled into the child environment.
type ExecBackend struct {
	name       string
	entryPoint string
	workRoot   string
	logPath    string
	timeout    time.Duration
}

// NewExecBackend wires a subprocess bridge. timeout of 0 waits forever.
func NewExecBackend(name, entryPoint, workRoot, logRoot string, timeout time.Duration) *ExecBackend {
	return &ExecBackend{
		name:       name,
		entryPoint: entryPoint,
		workRoot:   workRoot,
		logPath:    filepath.Join(logRoot, name+".log"),
		timeout:    timeout,
	}
}

func (b *ExecBackend) Name() string { return b.name }

func (b *ExecBackend) Install(ctx context.Context, decl input.PackageDeclaration) (repository.Package, error) {
	out, err := b.invoke(ctx, OpInstall, decl, nil)
	if err != nil {
		return repository.Package{}, err
	}
	switch out.Kind {
	case OutcomeSuccess:
		return out.Package, nil
	case OutcomeDefault:
		// There is no built-in install; a bridge must implement it.
		return repository.Package{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpInstall,
			Message: "bridge requested default behavior but install has none"}
	default:
		return repository.Package{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpInstall, Message: out.Message}
	}
}

func (b *ExecBackend) Update(ctx context.Context, decl input.PackageDeclaration, prior repository.Package) (repository.Package, error) {
	out, err := b.invoke(ctx, OpUpdate, decl, &prior)
	if err != nil {
		return repository.Package{}, err
	}
	switch out.Kind {
	case OutcomeSuccess:
		return out.Package, nil
	case OutcomeDefault:
		// Generic update: remove the installed copy, then a fresh install.
		if _, err := defaultRemove(prior.Path); err != nil {
			return repository.Package{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpUpdate,
				Err: fmt.Errorf("default remove: %w", err)}
		}
		return b.Install(ctx, decl)
	default:
		return repository.Package{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpUpdate, Message: out.Message}
	}
}

func (b *ExecBackend) Remove(ctx context.Context, decl input.PackageDeclaration, prior repository.Package) (bool, error) {
	out, err := b.invoke(ctx, OpRemove, decl, &prior)
	if err != nil {
		return false, err
	}
	switch out.Kind {
	case OutcomeSuccess:
		return out.Removed, nil
	case OutcomeDefault:
		removed, err := defaultRemove(prior.Path)
		if err != nil {
			return removed, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpRemove,
				Err: fmt.Errorf("default remove: %w", err)}
		}
		return removed, nil
	default:
		return false, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpRemove, Message: out.Message}
	}
}

// invoke runs one raw bridge invocation and interprets its exit. A non-nil
// error covers machinery and protocol violations; bridge-reported failures
// come back as OutcomeFailure.
func (b *ExecBackend) invoke(ctx context.Context, op Op, decl input.PackageDeclaration, prior *repository.Package) (Outcome, error) {
	workdir, err := b.newWorkdir(decl.Name)
	if err != nil {
		return Outcome{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: op, Err: err}
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, b.entryPoint, string(op), decl.Input)
	cmd.Dir = workdir
	// The child environment carries one variable per attribute, named
	// exactly after the attribute key (unnamespaced, by contract), plus
	// pkg_log_file and, for update/remove, the prior install path. Later
	// entries win over inherited ones, and none of this touches our own
	// process environment.
	cmd.Env = append(os.Environ(), marshalEnv(decl, prior, b.logPath)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("bridge", b.name).Str("pkg", decl.Name).Str("op", string(op)).
		Str("workdir", workdir).Msg("invoking bridge")

	runErr := cmd.Run()
	// The per-bridge log gets a frame on every exit path, including
	// spawn and parse failures.
	appendLog(b.logPath, decl.Name, op, stdout.Bytes(), stderr.Bytes())

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Outcome{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: op,
				Err: fmt.Errorf("spawn %s: %w", b.entryPoint, runErr)}
		}
		if ctx.Err() != nil {
			return Outcome{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: op,
				Err: fmt.Errorf("bridge process: %w", ctx.Err())}
		}
		if exitErr.ExitCode() == 1 && strings.TrimSpace(stderr.String()) == DefaultSentinel {
			return Outcome{Kind: OutcomeDefault}, nil
		}
		return Outcome{Kind: OutcomeFailure, Message: strings.TrimSpace(stderr.String())}, nil
	}

	if op == OpRemove {
		// Exit 0 on remove means the bridge removed the package; there is
		// nothing to parse.
		return Outcome{Kind: OutcomeSuccess, Removed: true}, nil
	}

	pkg, err := parseInstallOutput(decl.Name, stdout.String(), workdir)
	if err != nil {
		return Outcome{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: op, Err: err}
	}
	return Outcome{Kind: OutcomeSuccess, Package: pkg}, nil
}

// newWorkdir creates `<workRoot>/<bridge>/<pkg>/<token>` with a token no
// previous invocation has used. Scratch directories are never reused and
// never cleaned up here; `pkgbridge clean` reaps them.
func (b *ExecBackend) newWorkdir(pkgName string) (string, error) {
	base := filepath.Join(b.workRoot, b.name, pkgName)
	for {
		dir := filepath.Join(base, uuid.NewString())
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create workdir: %w", err)
		}
		return dir, nil
	}
}

// EnvLogFile and EnvPkgPath are the reserved variable names of the wire
// contract.
const (
	EnvLogFile = "pkg_log_file"
	EnvPkgPath = "pkg_path"
)

func marshalEnv(decl input.PackageDeclaration, prior *repository.Package, logPath string) []string {
	env := make([]string, 0, len(decl.Attributes)+2)
	for key, value := range decl.Attributes {
		env = append(env, key+"="+value.EnvString())
	}
	env = append(env, EnvLogFile+"="+logPath)
	if prior != nil {
		env = append(env, EnvPkgPath+"="+prior.Path)
	}
	return env
}

// parseInstallOutput interprets the first stdout line of a successful
// install/update: `path,version[,entrypoint]`. Relative paths resolve
// against the invocation's scratch directory.
func parseInstallOutput(name, stdout, workdir string) (repository.Package, error) {
	line, _, _ := strings.Cut(stdout, "\n")
	fields := strings.Split(line, ",")
	if len(fields) < 2 || len(fields) > 3 {
		return repository.Package{}, fmt.Errorf("%w: %q", ErrMalformedOutput, line)
	}

	version, err := repository.ParseVersion(strings.TrimSpace(fields[1]))
	if err != nil {
		return repository.Package{}, fmt.Errorf("%w: %v", ErrWrongVersionFormat, err)
	}

	path, err := resolveReported(strings.TrimSpace(fields[0]), workdir)
	if err != nil {
		return repository.Package{}, err
	}

	pkg := repository.Package{
		Name:       name,
		Version:    version,
		Path:       path,
		PkgType:    repository.TypeSingleExecutable,
		EntryPoint: path,
	}
	if len(fields) == 3 {
		entryPoint, err := resolveReported(strings.TrimSpace(fields[2]), workdir)
		if err != nil {
			return repository.Package{}, err
		}
		pkg.PkgType = repository.TypeDirectory
		pkg.EntryPoint = entryPoint
	}
	return pkg, nil
}

func resolveReported(path, workdir string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrMalformedOutput)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workdir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return path, nil
}
