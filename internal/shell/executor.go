// Package shell runs external dump, restore and archive commands with
// captured output, a caller-supplied timeout and process-group cleanup.
package shell

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"

	"dbvault/internal/errors"
)

const stderrTailLimit = 4096

// Output holds the captured result of a completed command
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor runs command lines through a shell. The zero value is usable.
type Executor struct {
	// Shell overrides the shell binary; defaults to /bin/bash
	Shell string
}

// NewExecutor creates a new Executor
func NewExecutor() *Executor {
	return &Executor{}
}

// Run executes the command line and captures its output. The command runs in
// its own process group; when ctx expires the whole group is killed so shell
// pipelines do not leave orphans behind. A non-zero exit status is returned
// as an execution error carrying the exit code and the stderr tail.
func (e *Executor) Run(ctx context.Context, commandLine string) (*Output, error) {
	shell := e.Shell
	if shell == "" {
		shell = "/bin/bash"
	}

	start := time.Now()

	cmd := exec.Command(shell, "-c", commandLine)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.NewExecutionError("failed to start command", err).
			WithContext("command", Redact(commandLine))
	}

	// Reap the child on our own terms: wait in a goroutine and kill the
	// process group if the context expires first.
	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-ctx.Done():
		// Negative pid addresses the process group.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-waitDone
		return nil, errors.NewExecutionError("command timed out", ctx.Err()).
			WithContext("command", Redact(commandLine)).
			WithContext("timeout_after", time.Since(start).String())
	}

	output := &Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if waitErr != nil {
		return output, errors.NewExecutionError("command exited with non-zero status", waitErr).
			WithContext("command", Redact(commandLine)).
			WithContext("exit_code", output.ExitCode).
			WithContext("stderr", tail(output.Stderr, stderrTailLimit))
	}

	return output, nil
}

// Quote wraps s in single quotes, escaping embedded single quotes, so file
// paths and credentials are inert regardless of shell interpretation.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(PGPASSWORD=)('[^']*'|\S+)`),
	regexp.MustCompile(`(REDISCLI_AUTH=)('[^']*'|\S+)`),
	regexp.MustCompile(`(\s-p)('[^']*')`),
	regexp.MustCompile(`(--password[= ])('[^']*'|\S+)`),
}

// Redact masks credential values embedded in a command line for logging
func Redact(commandLine string) string {
	for _, re := range redactPatterns {
		commandLine = re.ReplaceAllString(commandLine, "${1}***")
	}
	return commandLine
}

func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
