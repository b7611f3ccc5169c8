package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// readLockPID reads and parses the decimal PID stored in a lock file. A
// syntactically invalid contents is reported via ok=false, which callers
// treat the same as a stale lock.
func readLockPID(path string) (pid int, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	text := strings.TrimSpace(string(data))
	n, convErr := strconv.Atoi(text)
	if convErr != nil || n <= 0 {
		return 0, false, nil
	}
	return n, true, nil
}

// isProcessAlive probes pid with a zero signal, the canonical
// OS-independent liveness check.
func isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// writeLockPID atomically claims the lock file, failing with an
// os.IsExist error if another process holds it. The PID is written to a
// temp file first and linked into place, so the lock never exists in an
// empty or half-written state a concurrent reader could misjudge as stale.
func writeLockPID(path string, pid int) error {
	dir, base := filepath.Split(path)
	f, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := fmt.Fprintf(f, "%d", pid); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Link(tmp, path)
}

// overwriteLockPID replaces the contents of an already-claimed lock file
// with a new PID, used once the spawned subprocess's real PID is known.
// The new PID is written to a temp file and renamed over the lock, so the
// lock is never observed empty.
func overwriteLockPID(path string, pid int) error {
	dir, base := filepath.Split(path)
	f, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := fmt.Fprintf(f, "%d", pid); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// lockMtime returns the lock file's modification time, or the zero time
// if it does not exist.
func lockMtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func removeLockIfPresent(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
