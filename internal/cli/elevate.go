package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// ensureRoot re-runs the current command under sudo when not already root.
// The elevated child does all the work; the parent exits with its status.
// PKGBRIDGE_NO_ELEVATE skips the whole dance for local runs against
// user-writable directories.
func ensureRoot() error {
	if os.Geteuid() == 0 || os.Getenv("PKGBRIDGE_NO_ELEVATE") != "" {
		return nil
	}

	fmt.Fprint(os.Stderr, "pkgbridge needs root; sudo password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	validate := exec.Command("sudo", "-S", "-p", "", "-v")
	validate.Stdin = strings.NewReader(string(pw) + "\n")
	validate.Stderr = os.Stderr
	if err := validate.Run(); err != nil {
		return fmt.Errorf("sudo authentication failed")
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	child := exec.Command("sudo", append([]string{"-E", exe}, os.Args[1:]...)...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	if err := child.Run(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			os.Exit(ee.ExitCode())
		}
		return err
	}
	os.Exit(0)
	return nil
}
