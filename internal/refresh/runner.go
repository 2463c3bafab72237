// Package refresh turns one catalog connection into a retryable refresh operation.
package refresh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Environment variables passed to the refresh command.
const (
	EnvWorkbook   = "REFRESHER_WORKBOOK"
	EnvConnection = "REFRESHER_CONNECTION"
)

const (
	maxStderrBytes = 4096
	maxStdoutBytes = 16384

	waitDelay = 2 * time.Second
)

// Runner executes the configured refresh command for one connection.
// A Runner without a command is valid; refreshing then only stamps the catalog.
type Runner struct {
	command string
	args    []string
	timeout time.Duration
}

// NewRunner parses commandLine (whitespace-separated, no shell) and checks the
// binary is on PATH. An empty commandLine yields a stamp-only runner.
func NewRunner(commandLine string, timeout time.Duration) (*Runner, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return &Runner{timeout: timeout}, nil
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("refresh command %q not found: %w", fields[0], err)
	}
	return &Runner{command: fields[0], args: fields[1:], timeout: timeout}, nil
}

// Enabled reports whether the runner executes a command.
func (r *Runner) Enabled() bool { return r != nil && r.command != "" }

// Command returns the command name, or "" for a stamp-only runner.
func (r *Runner) Command() string {
	if r == nil {
		return ""
	}
	return r.command
}

func validateArg(label, s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("empty %s", label)
	}
	if strings.ContainsRune(s, 0) {
		return fmt.Errorf("%s contains null byte", label)
	}
	return nil
}

// limitedWriter caps writes at maxBytes, silently discarding overflow.
type limitedWriter struct {
	buf      bytes.Buffer
	maxBytes int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	originalLen := len(p)
	remaining := w.maxBytes - w.buf.Len()
	if remaining <= 0 {
		return originalLen, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	w.buf.Write(p)
	return originalLen, nil
}

func (w *limitedWriter) String() string {
	s := w.buf.String()
	if w.buf.Len() >= w.maxBytes {
		s += " (truncated)"
	}
	return s
}

// Run refreshes one connection and returns the command's trimmed stdout.
func (r *Runner) Run(ctx context.Context, workbook, connection string) (string, error) {
	if !r.Enabled() {
		return "", nil
	}
	if err := validateArg("workbook", workbook); err != nil {
		return "", err
	}
	if err := validateArg("connection", connection); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context expired before exec: %w", err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.command, r.args...) //nolint:gosec // G204: operator-configured refresh command
	cmd.Env = append(os.Environ(),
		EnvWorkbook+"="+workbook,
		EnvConnection+"="+connection,
	)

	stdout := &limitedWriter{maxBytes: maxStdoutBytes}
	stderr := &limitedWriter{maxBytes: maxStderrBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Children of a killed command may hold the output pipes open.
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("refresh command %s timed out after %s", r.command, r.timeout)
		}
		return "", fmt.Errorf("refresh command %s failed: %w (stderr: %s)", r.command, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
