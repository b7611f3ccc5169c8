package daemon

import (
	"context"
	"os/exec"
	"path/filepath"

	"github.com/cuemby/wal-cas/internal/errs"
)

// allowedBinaries is the set of daemon binaries the supervisor may ever
// spawn, matched against the invocation's base name. Anything else is
// rejected before a subprocess is created.
var allowedBinaries = map[string]bool{
	"ipfs":                 true,
	"ipfs-cluster-service": true,
	"ipfs-cluster-follow":  true,
	"wal-cas-daemon":       true,
	"lotus":                true,
	"lotus-miner":          true,
}

// deniedBinaries names commands that are never acceptable as a daemon
// target regardless of allow-list configuration: shells, remote-exec and
// network-fetch tools that would turn argument injection into arbitrary
// command execution.
var deniedBinaries = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true,
	"cmd": true, "powershell": true, "pwsh": true,
	"curl": true, "wget": true, "nc": true, "ncat": true, "netcat": true,
	"ssh": true, "scp": true, "rsync": true,
	"python": true, "python3": true, "perl": true, "ruby": true, "node": true,
	"eval": true, "xargs": true,
}

// validateBinary enforces the allow-list before any subprocess is built.
func validateBinary(path string) error {
	base := filepath.Base(path)
	if deniedBinaries[base] {
		return errs.Newf(errs.SecurityError, "binary %q is a denied command and may never be spawned", base)
	}
	if !allowedBinaries[base] {
		return errs.Newf(errs.SecurityError, "binary %q is not on the daemon allow-list", base)
	}
	return nil
}

// buildCommand constructs an argument-vector subprocess invocation.
// Arguments are never interpolated into a shell string.
func buildCommand(ctx context.Context, binary string, args []string) (*exec.Cmd, error) {
	if err := validateBinary(binary); err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, binary, args...), nil
}
