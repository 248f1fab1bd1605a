//go:build windows

package session

import "os/exec"

func shellCommand(command string) *exec.Cmd {
	return exec.Command("powershell", "-NoProfile", "-Command", command)
}

func setProcAttr(cmd *exec.Cmd) {}

func killProcess(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}
