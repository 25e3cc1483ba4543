package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// StartDetached spawns the background daemon as a detached process.
// The child self-execs with the hidden "daemon" command and survives the
// parent CLI exiting.
func StartDetached() error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(executable, "daemon")

	// New session: detach from the controlling terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	return cmd.Start()
}
