package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Shopify/go-lua"

	"pkgbridge/internal/database/repository"
	"pkgbridge/internal/input"
)

// luaRegistryKey is where the bridge table returned by main.lua lives in
// the Lua registry. One state per bridge, so a single key suffices.
const luaRegistryKey = "pkgbridge.bridge"

// LuaBackend drives an in-process Lua bridge: main.lua returns a table
// with an install function and optional update/remove functions. Missing
// update/remove fall back to the same built-in defaults the subprocess
// sentinel requests.
type LuaBackend struct {
	name      string
	l         *lua.State
	logPath   string
	hasUpdate bool
	hasRemove bool
}

// NewLuaBackend loads and evaluates main.lua. The script's print global is
// redirected to the per-bridge log file.
func NewLuaBackend(name, path, logRoot string) (*LuaBackend, error) {
	l := lua.NewState()
	lua.OpenLibraries(l)

	b := &LuaBackend{
		name:    name,
		l:       l,
		logPath: filepath.Join(logRoot, name+".log"),
	}
	l.Register("print", func(l *lua.State) int {
		appendLogLine(b.logPath, lua.CheckString(l, 1))
		return 0
	})

	if err := lua.LoadFile(l, path, ""); err != nil {
		return nil, fmt.Errorf("bridge %s: load %s: %w", name, path, err)
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		l.SetTop(0)
		return nil, fmt.Errorf("bridge %s: run %s: %w", name, path, err)
	}
	if !l.IsTable(-1) {
		l.SetTop(0)
		return nil, fmt.Errorf("bridge %s: %s must return a table", name, path)
	}

	hasFn := func(field string) bool {
		l.Field(-1, field)
		ok := l.IsFunction(-1)
		l.Pop(1)
		return ok
	}
	if !hasFn("install") {
		l.SetTop(0)
		return nil, fmt.Errorf("bridge %s: %s is missing the required install function", name, path)
	}
	b.hasUpdate = hasFn("update")
	b.hasRemove = hasFn("remove")

	l.SetField(lua.RegistryIndex, luaRegistryKey)
	return b, nil
}

func (b *LuaBackend) Name() string { return b.name }

func (b *LuaBackend) Install(_ context.Context, decl input.PackageDeclaration) (repository.Package, error) {
	if err := b.call(OpInstall, decl, nil); err != nil {
		return repository.Package{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpInstall, Message: err.Error()}
	}
	pkg, err := b.popPackage(decl.Name)
	if err != nil {
		return repository.Package{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpInstall, Err: err}
	}
	return pkg, nil
}

func (b *LuaBackend) Update(ctx context.Context, decl input.PackageDeclaration, prior repository.Package) (repository.Package, error) {
	if !b.hasUpdate {
		if _, err := defaultRemove(prior.Path); err != nil {
			return repository.Package{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpUpdate,
				Err: fmt.Errorf("default remove: %w", err)}
		}
		return b.Install(ctx, decl)
	}
	if err := b.call(OpUpdate, decl, &prior); err != nil {
		return repository.Package{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpUpdate, Message: err.Error()}
	}
	pkg, err := b.popPackage(decl.Name)
	if err != nil {
		return repository.Package{}, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpUpdate, Err: err}
	}
	return pkg, nil
}

func (b *LuaBackend) Remove(_ context.Context, decl input.PackageDeclaration, prior repository.Package) (bool, error) {
	if !b.hasRemove {
		removed, err := defaultRemove(prior.Path)
		if err != nil {
			return removed, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpRemove,
				Err: fmt.Errorf("default remove: %w", err)}
		}
		return removed, nil
	}
	if err := b.call(OpRemove, decl, &prior); err != nil {
		return false, &FailureError{Bridge: b.name, Package: decl.Name, Op: OpRemove, Message: err.Error()}
	}
	removed := b.l.ToBoolean(-1)
	b.l.Pop(1)
	return removed, nil
}

// call invokes the named bridge function as fn(input, opts) and leaves its
// single result on the stack.
func (b *LuaBackend) call(op Op, decl input.PackageDeclaration, prior *repository.Package) error {
	l := b.l
	l.SetTop(0)
	l.Field(lua.RegistryIndex, luaRegistryKey)
	l.Field(-1, string(op))
	l.Remove(-2)

	l.PushString(decl.Input)
	b.pushOpts(decl, prior)

	if err := l.ProtectedCall(2, 1, 0); err != nil {
		l.SetTop(0)
		return err
	}
	return nil
}

// pushOpts builds the opts table: one entry per attribute with its native
// Lua type, plus pkg_path for update/remove.
func (b *LuaBackend) pushOpts(decl input.PackageDeclaration, prior *repository.Package) {
	l := b.l
	l.NewTable()
	for key, value := range decl.Attributes {
		switch value.Kind {
		case input.AttrInteger:
			l.PushInteger(int(value.Int))
		case input.AttrFloat:
			l.PushNumber(value.Float)
		case input.AttrBoolean:
			l.PushBoolean(value.Bool)
		default:
			l.PushString(value.Str)
		}
		l.SetField(-2, key)
	}
	if prior != nil {
		l.PushString(prior.Path)
		l.SetField(-2, EnvPkgPath)
	}
}

// popPackage converts the result table of install/update into a record,
// applying the same validation as the subprocess protocol.
func (b *LuaBackend) popPackage(declName string) (repository.Package, error) {
	l := b.l
	defer l.SetTop(0)

	if !l.IsTable(-1) {
		return repository.Package{}, fmt.Errorf("%w: install must return a table", ErrMalformedOutput)
	}
	field := func(name string) (string, bool) {
		l.Field(-1, name)
		s, ok := l.ToString(-1)
		l.Pop(1)
		return s, ok
	}

	versionStr, ok := field("pkg_version")
	if !ok {
		return repository.Package{}, fmt.Errorf("%w: missing pkg_version", ErrMalformedOutput)
	}
	version, err := repository.ParseVersion(versionStr)
	if err != nil {
		return repository.Package{}, fmt.Errorf("%w: %v", ErrWrongVersionFormat, err)
	}

	rawPath, ok := field("pkg_path")
	if !ok {
		return repository.Package{}, fmt.Errorf("%w: missing pkg_path", ErrMalformedOutput)
	}
	path, err := resolveLua(rawPath)
	if err != nil {
		return repository.Package{}, err
	}

	pkg := repository.Package{
		Name:       declName,
		Version:    version,
		Path:       path,
		PkgType:    repository.TypeSingleExecutable,
		EntryPoint: path,
	}
	if entryPoint, ok := field("entry_point"); ok {
		resolved, err := resolveLua(entryPoint)
		if err != nil {
			return repository.Package{}, err
		}
		pkg.PkgType = repository.TypeDirectory
		pkg.EntryPoint = resolved
	}
	return pkg, nil
}

func resolveLua(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, abs)
	}
	return abs, nil
}
