// Package platform holds the OS-specific pieces of the host. Everything else
// in the module is OS-agnostic.
package platform

import (
	"fmt"
	"os/exec"
	"strings"
)

// Notifier shows desktop notifications.
type Notifier interface {
	// Notify shows a notification and returns once the helper process has
	// started. It does not wait for the helper to exit.
	Notify(title, body string) error
}

// N is the platform-specific implementation, replaced by an init() in
// platform_linux.go or platform_darwin.go. Other systems get a no-op.
var N Notifier = noopNotifier{}

type noopNotifier struct{}

func (noopNotifier) Notify(string, string) error { return nil }

// commandNotifier runs one helper command per notification.
type commandNotifier struct {
	build func(title, body string) *exec.Cmd
	start func(*exec.Cmd) error
}

func (n *commandNotifier) Notify(title, body string) error {
	cmd := n.build(title, body)
	if err := n.start(cmd); err != nil {
		return fmt.Errorf("%s: %w", cmd.Args[0], err)
	}
	return nil
}

// startDetached starts cmd and reaps it in the background.
func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

// appleScriptString quotes s as an AppleScript string literal.
func appleScriptString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
