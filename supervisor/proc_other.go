//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func killProcess(p *os.Process) error {
	return p.Kill()
}
