//go:build unix

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the tool in its own process group so that helpers it
// spawns are killed with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcess(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		return p.Kill()
	}
	return nil
}
