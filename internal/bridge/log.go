package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// appendLog writes one delimited frame with the captured output of a
// bridge invocation to the per-bridge log. Best effort: logging problems
// never fail the operation.
func appendLog(logPath, pkgName string, op Op, stdout, stderr []byte) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		log.Debug().Err(err).Str("log", logPath).Msg("bridge log dir unavailable")
		return
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Debug().Err(err).Str("log", logPath).Msg("bridge log unavailable")
		return
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "==== %s %s %s ====\n--- stdout ---\n%s\n--- stderr ---\n%s\n",
		time.Now().Format(time.RFC3339), op, pkgName, stdout, stderr)
	if err != nil {
		log.Debug().Err(err).Str("log", logPath).Msg("bridge log write failed")
	}
}

// appendLogLine appends one line to the per-bridge log; the Lua backend's
// print global goes through here.
func appendLogLine(logPath, line string) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = fmt.Fprintln(f, line)
}
