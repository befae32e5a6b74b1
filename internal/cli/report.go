package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"pkgbridge/internal/database/repository"
	"pkgbridge/internal/engine"
)

var (
	bridgeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	jobStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	summaryStyle = lipgloss.NewStyle().Bold(true)
)

// consoleReporter renders engine progress for a terminal.
type consoleReporter struct {
	w io.Writer
}

func newConsoleReporter(w io.Writer) *consoleReporter { return &consoleReporter{w: w} }

func (r *consoleReporter) BridgeHeader(name string, installs, updates, removes int) {
	fmt.Fprintf(r.w, "%s %s\n", bridgeStyle.Render("::"), bridgeStyle.Render(name))
	fmt.Fprintln(r.w, dimStyle.Render(fmt.Sprintf("   %d to install, %d to update, %d to remove", installs, updates, removes)))
}

func (r *consoleReporter) JobHeader(kind engine.JobKind, count int) {
	fmt.Fprintf(r.w, "%s\n", jobStyle.Render(fmt.Sprintf(" %s (%d)", kind, count)))
}

func (r *consoleReporter) PackageStart(index, total int, name string) {
	fmt.Fprintf(r.w, "  [%d/%d] %s ", index, total, name)
}

func (r *consoleReporter) PackageDone(kind engine.JobKind, pkg repository.Package) {
	switch kind {
	case engine.JobRemove:
		fmt.Fprintln(r.w, okStyle.Render("removed"))
	default:
		fmt.Fprintf(r.w, "%s %s\n", okStyle.Render("ok"), dimStyle.Render(pkg.Version.String()))
	}
}

func (r *consoleReporter) PackageFailed(name, stage string, err error) {
	fmt.Fprintf(r.w, "%s %s\n", errorStyle.Render("failed"), dimStyle.Render(fmt.Sprintf("(%s: %v)", stage, err)))
}

func (r *consoleReporter) LinkDone(count int, err error) {
	if err != nil {
		fmt.Fprintf(r.w, "%s linking: %v\n", errorStyle.Render("failed"), err)
		return
	}
	fmt.Fprintln(r.w, dimStyle.Render(fmt.Sprintf(" linked %d package(s)", count)))
}

func (r *consoleReporter) Summary(sum engine.Summary) {
	line := fmt.Sprintf("%d installed, %d removed, %d failed", sum.Installed, sum.Removed, sum.Failed)
	if sum.Failed > 0 {
		fmt.Fprintln(r.w, errorStyle.Render(line))
		return
	}
	fmt.Fprintln(r.w, summaryStyle.Render(line))
}

// renderInfo prints the installed-package table.
func renderInfo(w io.Writer, pkgs []repository.Package) {
	if len(pkgs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no packages installed"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, bridgeStyle.Render("NAME")+"\t"+bridgeStyle.Render("VERSION")+"\t"+bridgeStyle.Render("TYPE")+"\t"+bridgeStyle.Render("BRIDGE")+"\t"+bridgeStyle.Render("PATH"))
	for _, p := range pkgs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Version.String(), p.PkgType, p.Bridge, p.Path)
	}
	tw.Flush()
}
