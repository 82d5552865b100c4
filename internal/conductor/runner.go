package conductor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
)

// cliArgs returns the argument vector for one stream-json session.
func cliArgs(model string) []string {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	return args
}

func spawnError(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return ErrCLINotFound
	}
	return fmt.Errorf("Failed to spawn claude: %w", err)
}

// run spawns the CLI for one session and supervises it until its stdout
// closes. It returns an error only when the session never got going.
func (c *Conductor) run(opts StartOptions) error {
	cmd := exec.Command(c.binary, cliArgs(opts.Model)...)
	if opts.ProjectPath != "" {
		cmd.Dir = opts.ProjectPath
	}

	proc, p, err := startChild(cmd)
	if err != nil {
		return spawnError(err)
	}
	logger := c.logger.With("agent_id", opts.AgentID, "pid", proc.Pid())
	logger.Info("claude session started", "project_path", opts.ProjectPath, "model", opts.Model)

	// Registered before the first write so a concurrent stop can find it.
	if !c.sessions.Insert(opts.AgentID, proc, p.stdin, StatusThinking) {
		p.closeReaders()
		return ErrShuttingDown
	}

	stderrTail := make(chan string, 1)
	go func() {
		stderrTail <- drainStderr(p.stderr, maxStderrBytes)
	}()

	if err := c.writeFirst(opts.AgentID, proc, opts.Prompt); err != nil {
		c.sessions.release(opts.AgentID, proc)
		p.stdout.Close()
		<-stderrTail
		p.stderr.Close()
		return err
	}

	c.readStdout(opts.AgentID, proc, p.stdout, logger)
	p.stdout.Close()

	c.sessions.setStatus(opts.AgentID, proc, StatusExited)
	if tail := <-stderrTail; tail != "" {
		logger.Info("claude stderr", "stderr", tail)
	}
	p.stderr.Close()

	c.publish(ProcessExitedEvent{AgentID: opts.AgentID})
	c.sessions.release(opts.AgentID, proc)
	logger.Info("claude session ended", "exit_code", proc.ExitCode())
	return nil
}

func (c *Conductor) writeFirst(agentID string, proc process, prompt string) error {
	stdin, ok := c.sessions.takeStdin(agentID, proc)
	if !ok {
		return ErrSessionLost
	}
	err := writePrompt(stdin, prompt)
	c.sessions.ReturnStdin(agentID, stdin)
	if err != nil {
		return fmt.Errorf("Failed to write first message: %w", err)
	}
	return nil
}

// readStdout feeds every non-blank stdout line to a fresh parser and publishes
// the resulting events in order. It returns at EOF or on the first read error.
func (c *Conductor) readStdout(agentID string, proc process, stdout io.Reader, logger *slog.Logger) {
	parser := NewParser(agentID, logger)
	br := bufio.NewReader(stdout)

	for {
		line, err := br.ReadString('\n')
		if line != "" {
			c.handleLine(parser, agentID, proc, trimNewline(line), logger)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("stdout read failed", "error", err)
			}
			return
		}
	}
}

func (c *Conductor) handleLine(parser *Parser, agentID string, proc process, line string, logger *slog.Logger) {
	if strings.TrimSpace(line) == "" {
		return
	}

	events, err := parser.Parse(line)
	if err != nil {
		logger.Warn("failed to parse claude output", "error", err, "line", line)
		c.publish(ErrorEvent{AgentID: agentID, Message: "Parse error: " + err.Error()})
		return
	}

	for _, ev := range events {
		c.publish(ev)
		if ev.Type() == EventTurnComplete {
			c.sessions.setStatus(agentID, proc, StatusIdle)
		}
	}
}

func trimNewline(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
