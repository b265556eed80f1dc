//go:build !unix

package mcp

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// killProcessGroup kills only the direct child; there are no process
// groups to signal here.
func killProcessGroup(proc *os.Process) error {
	return proc.Kill()
}
