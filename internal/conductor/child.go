package conductor

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
)

// process is the registry's view of a running child.
type process interface {
	Pid() int
	// Exited reports whether the child has terminated without blocking.
	Exited() (bool, error)
	// Kill terminates the child and blocks until it has been reaped.
	Kill() error
}

// child owns an *exec.Cmd whose Wait is called by exactly one goroutine as
// soon as the process starts, so liveness can be polled without blocking and
// the process is reaped once.
type child struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error

	killOnce sync.Once
	killErr  error
}

// pipes are the parent's ends of the child's standard streams.
type pipes struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p pipes) closeReaders() {
	p.stdout.Close()
	p.stderr.Close()
}

// startChild wires three OS pipes to cmd, places the child in its own process
// group and starts it.
func startChild(cmd *exec.Cmd) (*child, pipes, error) {
	var (
		toClose []*os.File
		p       pipes
	)
	closeAll := func() {
		for _, f := range toClose {
			f.Close()
		}
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, p, err
	}
	toClose = append(toClose, stdinR, stdinW)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll()
		return nil, p, err
	}
	toClose = append(toClose, stdoutR, stdoutW)

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll()
		return nil, p, err
	}
	toClose = append(toClose, stderrR, stderrW)

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, p, err
	}

	// The child holds its own copies now.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	c := &child{cmd: cmd, done: make(chan struct{})}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()

	return c, pipes{stdin: stdinW, stdout: stdoutR, stderr: stderrR}, nil
}

func (c *child) Pid() int {
	return c.cmd.Process.Pid
}

func (c *child) Exited() (bool, error) {
	select {
	case <-c.done:
		return true, nil
	default:
		return false, nil
	}
}

func (c *child) Kill() error {
	c.killOnce.Do(func() {
		if err := killProcessGroup(c.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
			// No signal was delivered, so the waiter may never return.
			c.killErr = err
			return
		}
		<-c.done
	})
	return c.killErr
}

// ExitCode returns the child's exit status once it has been reaped, or -1.
func (c *child) ExitCode() int {
	select {
	case <-c.done:
		return c.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}
