//go:build linux

package platform

import "os/exec"

// Compile-time interface check.
var _ Notifier = (*commandNotifier)(nil)

func init() {
	N = &commandNotifier{build: notifySendCommand, start: startDetached}
}

func notifySendCommand(title, body string) *exec.Cmd {
	return exec.Command("notify-send", "--app-name=Aither Flow", title, body)
}
