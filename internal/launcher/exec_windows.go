//go:build windows

package launcher

import (
	"errors"
	"os"
	"os/exec"
)

// Windows cannot replace a running process image; exec mode supervises.
const execSupported = false

var forwardedSignals = []os.Signal{os.Interrupt}

func execve(path string, argv, env []string) error {
	return errors.New("exec is not supported on windows")
}

// forward stops the child. Console interrupts already reach every process
// attached to the console, so only non-console signals need a Kill.
func forward(p *os.Process, sig os.Signal) error {
	if sig == os.Interrupt {
		return nil
	}
	return p.Kill()
}

func exitCode(err *exec.ExitError) int {
	return err.ExitCode()
}
