//go:build !windows

package launcher

import (
	"os"
	"os/exec"
	"syscall"
)

const execSupported = true

var forwardedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

func execve(path string, argv, env []string) error {
	return syscall.Exec(path, argv, env)
}

func forward(p *os.Process, sig os.Signal) error {
	return p.Signal(sig)
}

func exitCode(err *exec.ExitError) int {
	if status, ok := err.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return err.ExitCode()
}
