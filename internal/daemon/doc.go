/*
Package daemon implements the Daemon Supervisor: lock-file discipline
and subprocess lifecycle for the local content-addressed daemon.

The Supervisor spawns the daemon as a subprocess, watches it with a
background monitor goroutine, and stops it with
SIGTERM-then-grace-period-then-SIGKILL.

# Lock-file protocol

The repository lock file's contents are the decimal PID of the holding
process (not an flock: liveness is determined by reading the PID and
probing it with a zero signal). Start() claims the lock
file atomically, by hard-linking a fully written temp file into place
(which fails if the lock already exists), before spawning the subprocess: at
most one concurrent Start() call can win that claim, so losers observe
the winner's (now-live) lock and report already_running rather than
double-spawning. A lock file naming a dead PID is stale and may be
removed before a fresh claim.
*/
package daemon
