package probe

import (
	"context"
	"os/exec"
	"strings"

	"github.com/carvectf/canary/internal/config"
	"github.com/carvectf/canary/internal/domain/model"
)

// evaluateShell runs the spec's script in an ephemeral sandbox that
// provides the requested packages on PATH. The script receives the
// target's first resolved address as $1.
func (e *Evaluator) evaluateShell(ctx context.Context, spec config.ShellSpec, hostname string) Outcome {
	addr := hostname
	if addrs, err := e.lookupHost(ctx, hostname); err == nil && len(addrs) > 0 {
		addr = addrs[0]
	}

	argv := e.sandbox(spec, addr)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv is built from operator-owned config
	out, err := cmd.CombinedOutput()

	if ctx.Err() != nil {
		return Outcome{Success: false, Message: MessageTimeout}
	}
	msg := lastLine(out)
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		return Outcome{Success: false, Message: model.Truncate(msg, model.MaxMessageBytes)}
	}
	if msg == "" {
		msg = "ok"
	}
	return Outcome{Success: true, Message: model.Truncate(msg, model.MaxMessageBytes)}
}

// nixShellArgv wraps the script in nix-shell so the requested packages
// are on PATH, and hands the target address to the script as $1.
func nixShellArgv(spec config.ShellSpec, addr string) []string {
	argv := []string{"nix-shell"}
	for _, pkg := range spec.Packages {
		argv = append(argv, "-p", pkg)
	}
	run := "bash -c " + shellQuote(spec.Script) + " canary " + shellQuote(addr)
	return append(argv, "--run", run)
}

// shellQuote single-quotes s for inclusion in a shell command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// lastLine returns the last non-empty line of combined output.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
