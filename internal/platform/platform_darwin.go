//go:build darwin

package platform

import "os/exec"

func init() {
	N = &commandNotifier{build: osascriptCommand, start: startDetached}
}

func osascriptCommand(title, body string) *exec.Cmd {
	script := "display notification " + appleScriptString(body) + " with title " + appleScriptString(title)
	return exec.Command("osascript", "-e", script)
}
