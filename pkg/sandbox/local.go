package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"assistant/pkg/logx"
)

// DefaultCommandTimeout bounds a single command execution in the local sandbox.
const DefaultCommandTimeout = 60 * time.Second

// Local runs file and command operations against a directory on the local
// machine. It is the single-instance deployment backend; remote backends
// implement the same interface.
type Local struct {
	root    string
	timeout time.Duration
	logger  *logx.Logger
}

// NewLocal creates a local sandbox rooted at the given directory.
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("sandbox root is not a directory: %s", abs)
	}

	return &Local{
		root:    abs,
		timeout: DefaultCommandTimeout,
		logger:  logx.NewLogger("sandbox-local"),
	}, nil
}

// resolve maps a sandbox-relative path to an absolute path under the root,
// rejecting traversal outside the root.
func (l *Local) resolve(filePath string) (string, error) {
	cleaned := filepath.Join(l.root, filepath.Clean("/"+filePath))
	if cleaned != l.root && !strings.HasPrefix(cleaned, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox root: %s", filePath)
	}
	return cleaned, nil
}

// ReadFile returns the content of a file under the sandbox root.
func (l *Local) ReadFile(_ context.Context, _, filePath, _ string) (string, error) {
	abs, err := l.resolve(filePath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return string(data), nil
}

// WriteFile creates or overwrites a file under the sandbox root, creating
// parent directories as needed.
func (l *Local) WriteFile(_ context.Context, _, filePath, content, _ string) error {
	abs, err := l.resolve(filePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directories for %s: %w", filePath, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}

	l.logger.Debug("wrote %d bytes to %s", len(content), filePath)
	return nil
}

// RunCommand executes a shell command with the sandbox root as working directory.
// A non-zero exit code is reported in the result, not as an error.
func (l *Local) RunCommand(ctx context.Context, _, command, _ string) (CommandResult, error) {
	if command == "" {
		return CommandResult{}, fmt.Errorf("command cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = l.root

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return CommandResult{}, fmt.Errorf("failed to run command: %w", err)
		}
	}

	return CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}
