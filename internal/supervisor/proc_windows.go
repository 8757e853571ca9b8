//go:build windows

package supervisor

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}

// terminateProcess has no graceful equivalent on Windows.
func terminateProcess(cmd *exec.Cmd) error {
	return killProcess(cmd)
}

func killProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
