package runner

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// setProcessGroup configures cmd to run as the leader of its own POSIX
// process group, so stopProcessGroup can signal the whole tree the service
// spawned (shell wrappers, child workers) rather than only the direct
// child. This is the POSIX analogue of Windows job-object containment.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// stopProcessGroup sends SIGTERM to the process group led by pid, waiting up to
// gracePeriod before escalating to SIGKILL. pid must be the PID of a
// process started with setProcessGroup.
func stopProcessGroup(pid int, gracePeriod time.Duration, exited <-chan struct{}) error {
	pgid := -pid

	if err := unix.Kill(pgid, unix.SIGTERM); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		return err
	}

	select {
	case <-exited:
		return nil
	case <-time.After(gracePeriod):
	}

	if err := unix.Kill(pgid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}
