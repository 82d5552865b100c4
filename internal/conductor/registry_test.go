package conductor

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"testing"
	"time"
)

type fakeProcess struct {
	pid int

	mu      sync.Mutex
	kills   int
	exited  bool
	pollErr error
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Exited() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.pollErr
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kills++
	p.exited = true
	return nil
}

func (p *fakeProcess) killCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

type fakePipe struct {
	mu     sync.Mutex
	closes int
}

func (w *fakePipe) Write(b []byte) (int, error) { return len(b), nil }

func (w *fakePipe) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closes++
	return nil
}

func (w *fakePipe) closeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closes
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_InsertReplacesExisting(t *testing.T) {
	r := newTestRegistry()
	oldProc, oldPipe := &fakeProcess{pid: 1}, &fakePipe{}
	newProc, newPipe := &fakeProcess{pid: 2}, &fakePipe{}

	r.Insert("a", oldProc, oldPipe, StatusThinking)
	r.Insert("a", newProc, newPipe, StatusThinking)

	if oldProc.killCount() != 1 {
		t.Errorf("old kills = %d, want 1", oldProc.killCount())
	}
	if oldPipe.closeCount() != 1 {
		t.Errorf("old stdin closes = %d, want 1", oldPipe.closeCount())
	}
	if newProc.killCount() != 0 || newPipe.closeCount() != 0 {
		t.Error("new session was touched")
	}
	if got := r.List(); len(got) != 1 || got[0].PID != 2 {
		t.Errorf("List() = %+v", got)
	}
}

func TestRegistry_StdinCheckout(t *testing.T) {
	r := newTestRegistry()
	pipe := &fakePipe{}
	r.Insert("a", &fakeProcess{pid: 1}, pipe, StatusThinking)

	w, ok := r.TakeStdin("a")
	if !ok || w != pipe {
		t.Fatalf("TakeStdin = %v, %v", w, ok)
	}
	if _, ok := r.TakeStdin("a"); ok {
		t.Fatal("second TakeStdin succeeded while checked out")
	}
	if r.IsAlive("a") {
		t.Error("IsAlive true while stdin checked out")
	}

	r.ReturnStdin("a", w)
	if _, ok := r.TakeStdin("a"); !ok {
		t.Error("TakeStdin after return failed")
	}
	if _, ok := r.TakeStdin("missing"); ok {
		t.Error("TakeStdin on unknown agent succeeded")
	}
}

func TestRegistry_ReturnAfterKillClosesPipe(t *testing.T) {
	r := newTestRegistry()
	proc, pipe := &fakeProcess{pid: 1}, &fakePipe{}
	r.Insert("a", proc, pipe, StatusThinking)

	w, _ := r.TakeStdin("a")
	r.Kill("a")
	if pipe.closeCount() != 0 {
		t.Fatal("Kill closed a checked-out pipe")
	}
	if proc.killCount() != 1 {
		t.Fatalf("kills = %d, want 1", proc.killCount())
	}

	r.ReturnStdin("a", w)
	if pipe.closeCount() != 1 {
		t.Errorf("closes = %d, want 1", pipe.closeCount())
	}
}

func TestRegistry_ReturnToReplacedSessionClosesPipe(t *testing.T) {
	r := newTestRegistry()
	oldPipe, newPipe := &fakePipe{}, &fakePipe{}
	r.Insert("a", &fakeProcess{pid: 1}, oldPipe, StatusThinking)

	w, _ := r.TakeStdin("a")
	r.Insert("a", &fakeProcess{pid: 2}, newPipe, StatusThinking)
	r.ReturnStdin("a", w)

	if oldPipe.closeCount() != 1 {
		t.Errorf("old closes = %d, want 1", oldPipe.closeCount())
	}
	got, ok := r.TakeStdin("a")
	if !ok || got != newPipe {
		t.Errorf("TakeStdin = %v, %v, want new pipe", got, ok)
	}
}

func TestRegistry_IsAlive(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		r := newTestRegistry()
		r.Insert("a", &fakeProcess{pid: 1}, &fakePipe{}, StatusIdle)
		if !r.IsAlive("a") {
			t.Error("IsAlive = false")
		}
	})

	t.Run("exited is removed", func(t *testing.T) {
		r := newTestRegistry()
		proc := &fakeProcess{pid: 1, exited: true}
		r.Insert("a", proc, &fakePipe{}, StatusIdle)
		if r.IsAlive("a") {
			t.Error("IsAlive = true")
		}
		if _, ok := r.Status("a"); ok {
			t.Error("exited session still registered")
		}
		if proc.killCount() != 1 {
			t.Errorf("kills = %d, want 1", proc.killCount())
		}
	})

	t.Run("poll error", func(t *testing.T) {
		r := newTestRegistry()
		r.Insert("a", &fakeProcess{pid: 1, pollErr: errors.New("boom")}, &fakePipe{}, StatusIdle)
		if r.IsAlive("a") {
			t.Error("IsAlive = true")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if newTestRegistry().IsAlive("nope") {
			t.Error("IsAlive = true")
		}
	})
}

func TestRegistry_Status(t *testing.T) {
	r := newTestRegistry()
	r.SetStatus("missing", StatusIdle)
	if _, ok := r.Status("missing"); ok {
		t.Fatal("SetStatus created a session")
	}

	r.Insert("a", &fakeProcess{pid: 1}, &fakePipe{}, StatusThinking)
	r.SetStatus("a", StatusIdle)
	if st, ok := r.Status("a"); !ok || st != StatusIdle {
		t.Errorf("Status = %v, %v", st, ok)
	}
}

func TestRegistry_OwnerChecks(t *testing.T) {
	r := newTestRegistry()
	stale := &fakeProcess{pid: 1}
	current := &fakeProcess{pid: 2}
	r.Insert("a", current, &fakePipe{}, StatusThinking)

	if _, ok := r.takeStdin("a", stale); ok {
		t.Error("stale owner checked out stdin")
	}
	r.setStatus("a", stale, StatusExited)
	if st, _ := r.Status("a"); st != StatusThinking {
		t.Errorf("stale owner changed status to %v", st)
	}
	r.release("a", stale)
	if current.killCount() != 0 {
		t.Error("stale release killed the current session")
	}

	r.release("a", current)
	if current.killCount() != 1 {
		t.Errorf("kills = %d, want 1", current.killCount())
	}
}

func TestRegistry_KillAll(t *testing.T) {
	r := newTestRegistry()
	procs := []*fakeProcess{{pid: 1}, {pid: 2}, {pid: 3}}
	for i, p := range procs {
		r.Insert(string(rune('a'+i)), p, &fakePipe{}, StatusIdle)
	}

	r.KillAll()
	for _, p := range procs {
		if p.killCount() != 1 {
			t.Errorf("pid %d kills = %d, want 1", p.pid, p.killCount())
		}
	}
	if got := r.List(); len(got) != 0 {
		t.Errorf("List() = %+v after KillAll", got)
	}

	// KillAll leaves the registry usable.
	if !r.Insert("again", &fakeProcess{pid: 5}, &fakePipe{}, StatusIdle) {
		t.Error("Insert after KillAll reported failure")
	}
}

func TestRegistry_Close(t *testing.T) {
	r := newTestRegistry()
	proc := &fakeProcess{pid: 1}
	r.Insert("a", proc, &fakePipe{}, StatusIdle)

	r.Close()
	if proc.killCount() != 1 {
		t.Errorf("kills = %d, want 1", proc.killCount())
	}

	late, pipe := &fakeProcess{pid: 4}, &fakePipe{}
	if r.Insert("late", late, pipe, StatusThinking) {
		t.Fatal("Insert on a closed registry reported success")
	}
	if late.killCount() != 1 || pipe.closeCount() != 1 {
		t.Errorf("late session kills = %d, closes = %d, want 1 and 1", late.killCount(), pipe.closeCount())
	}
	if _, ok := r.Status("late"); ok {
		t.Error("late session was registered")
	}
}

func TestRegistry_ConcurrentCheckout(t *testing.T) {
	r := newTestRegistry()
	r.Insert("a", &fakeProcess{pid: 1}, &fakePipe{}, StatusIdle)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, ok := r.TakeStdin("a")
			if !ok {
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			r.ReturnStdin("a", w)
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestChild_KillReapsRealProcess(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	c, p, err := startChild(exec.Command("sleep", "30"))
	if err != nil {
		t.Fatalf("startChild: %v", err)
	}
	defer p.closeReaders()

	r := newTestRegistry()
	r.Insert("a", c, p.stdin, StatusThinking)
	if !r.IsAlive("a") {
		t.Fatal("IsAlive = false for running sleep")
	}

	r.Kill("a")
	if exited, _ := c.Exited(); !exited {
		t.Error("child not reaped after Kill")
	}
	if err := c.Kill(); err != nil {
		t.Errorf("second Kill: %v", err)
	}
}

func TestChild_PipesRoundTrip(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	c, p, err := startChild(exec.Command("cat"))
	if err != nil {
		t.Fatalf("startChild: %v", err)
	}
	defer p.closeReaders()

	if _, err := io.WriteString(p.stdin, "ping\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := bufio.NewReader(p.stdout).ReadString('\n')
	if err != nil || line != "ping\n" {
		t.Fatalf("read = %q, %v", line, err)
	}

	p.stdin.Close()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("cat did not exit after stdin closed")
	}
	if code := c.ExitCode(); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}
