//go:build linux

package platform

import "testing"

func TestNotifySendCommand(t *testing.T) {
	cmd := notifySendCommand("Title", "Body text")

	want := []string{"notify-send", "--app-name=Aither Flow", "Title", "Body text"}
	if len(cmd.Args) != len(want) {
		t.Fatalf("args = %q, want %q", cmd.Args, want)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Fatalf("args = %q, want %q", cmd.Args, want)
		}
	}
}
