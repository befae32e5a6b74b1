// Package cli wires configuration, the record store, bridge discovery and
// the engine into the pkgbridge command tree.
package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pkgbridge/internal/bridge"
	"pkgbridge/internal/config"
	"pkgbridge/internal/database"
	"pkgbridge/internal/database/repository"
	"pkgbridge/internal/engine"
	"pkgbridge/internal/input"
	"pkgbridge/internal/logging"
	"pkgbridge/internal/materialize"
)

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	logging.Configure()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pkgbridge",
		Short:         "Declarative package manager driven by plugin bridges",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBuildCmd(), newRebuildCmd(), newUpdateCmd(), newInfoCmd(), newLinkCmd(), newCleanCmd())
	return root
}

// app is the assembled runtime for one command invocation.
type app struct {
	cfg  config.Config
	db   *sql.DB
	repo *repository.PackageRepo
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.RunMigrationsWithDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &app{cfg: cfg, db: db, repo: repository.NewPackageRepo(db)}, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// run loads declarations, discovers the bridges they name and executes one
// engine pass.
func (a *app) run(cmd *cobra.Command, mode engine.Mode, subset []string) error {
	set, err := input.Load(a.cfg.Inputs.Path)
	if err != nil {
		return err
	}
	if len(subset) > 0 {
		if err := checkSubset(subset, set); err != nil {
			return err
		}
	}

	registry, err := bridge.Discover(a.cfg.Inputs.BridgeSet, set.BridgeNames(), bridge.Options{
		WorkRoot: a.cfg.Bridges.WorkDir,
		LogRoot:  a.cfg.Bridges.LogDir,
		Timeout:  a.cfg.Bridges.Timeout,
	})
	if err != nil {
		return err
	}

	reporter := newConsoleReporter(cmd.OutOrStdout())
	orc := &engine.Orchestrator{
		Bridges:  registry,
		Packages: a.repo,
		Store:    materialize.New(a.cfg.Output.TargetDir, a.cfg.Output.LinkDir),
		Reporter: reporter,
	}
	sum, err := orc.Run(cmd.Context(), set, mode, subset)
	reporter.Summary(sum)
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d package(s) failed", sum.Failed)
	}
	return nil
}

// checkSubset rejects update targets that are not declared anywhere.
func checkSubset(subset []string, set *input.Set) error {
	declared := set.PackageNames()
	known := make(map[string]bool, len(declared))
	for _, n := range declared {
		known[n] = true
	}
	for _, n := range subset {
		if known[n] {
			continue
		}
		if hint := closestName(n, declared); hint != "" {
			return fmt.Errorf("package %q is not declared (did you mean %q?)", n, hint)
		}
		return fmt.Errorf("package %q is not declared", n)
	}
	return nil
}

func newBuildCmd() *cobra.Command {
	var update bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Reconcile installed packages with the declared set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureRoot(); err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			mode := engine.ModeBuild
			if update {
				mode = engine.ModeBuildUpdate
			}
			return a.run(cmd, mode, nil)
		},
	}
	cmd.Flags().BoolVar(&update, "update", false, "also update packages that are already installed")
	return cmd
}

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Reinstall every installed declared package, then reconcile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureRoot(); err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			return a.run(cmd, engine.ModeRebuild, nil)
		},
	}
}

func newLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Rebuild the launcher symlinks from the installed records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureRoot(); err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			pkgs, err := a.repo.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			store := materialize.New(a.cfg.Output.TargetDir, a.cfg.Output.LinkDir)
			if err := store.RelinkAll(pkgs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "linked %d package(s)\n", len(pkgs))
			return nil
		},
	}
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [package...]",
		Short: "Update installed declared packages, or just the named ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureRoot(); err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			return a.run(cmd, engine.ModeUpdate, args)
		},
	}
}

func newInfoCmd() *cobra.Command {
	var bridgeName string
	cmd := &cobra.Command{
		Use:   "info [package...]",
		Short: "List installed packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			pkgs, err := a.repo.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) > 0 {
				installed := make([]string, len(pkgs))
				byName := make(map[string]repository.Package, len(pkgs))
				for i, p := range pkgs {
					installed[i] = p.Name
					byName[p.Name] = p
				}
				selected := pkgs[:0]
				for _, n := range args {
					p, ok := byName[n]
					if !ok {
						if hint := closestName(n, installed); hint != "" {
							return fmt.Errorf("package %q is not installed (did you mean %q?)", n, hint)
						}
						return fmt.Errorf("package %q is not installed", n)
					}
					selected = append(selected, p)
				}
				pkgs = selected
			}
			if bridgeName != "" {
				filtered := pkgs[:0]
				for _, p := range pkgs {
					if p.Bridge == bridgeName {
						filtered = append(filtered, p)
					}
				}
				pkgs = filtered
			}
			renderInfo(cmd.OutOrStdout(), pkgs)
			return nil
		},
	}
	cmd.Flags().StringVar(&bridgeName, "bridge", "", "only show packages owned by this bridge")
	return cmd
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete bridge logs and leftover work directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureRoot(); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			for _, dir := range []string{cfg.Bridges.LogDir, cfg.Bridges.WorkDir} {
				if err := os.RemoveAll(dir); err != nil {
					return fmt.Errorf("clean %s: %w", dir, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "removed", dir)
			}
			return nil
		},
	}
}
