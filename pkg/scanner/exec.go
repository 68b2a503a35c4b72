package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/marmos91/ftpplus/internal/logger"
)

// Platform scanner locations.
const (
	ClamscanBinary = "clamscan"
	DefenderPath   = `C:\Program Files\Windows Defender\MpCmdRun.exe`
)

// ExecScanner runs an external command-line scanner on a temporary copy of
// the payload. The temporary file path is appended after Args.
//
// Exit status 0 is Clean and any other status is Suspicious. A command that
// cannot be started is Unavailable.
type ExecScanner struct {
	Path    string
	Args    []string
	Timeout time.Duration

	// TempDir holds the temporary payload copy. Empty uses os.TempDir.
	TempDir string
}

// NewClamscan returns an ExecScanner for ClamAV's clamscan at path.
func NewClamscan(path string) *ExecScanner {
	return &ExecScanner{Path: path, Args: []string{"--no-summary"}, Timeout: DefaultTimeout}
}

// NewDefender returns an ExecScanner for Windows Defender's MpCmdRun at path.
func NewDefender(path string) *ExecScanner {
	return &ExecScanner{Path: path, Args: []string{"-Scan", "-ScanType", "3", "-File"}, Timeout: DefaultTimeout}
}

func (e *ExecScanner) Name() string { return "exec" }

func (e *ExecScanner) Scan(ctx context.Context, data []byte) Verdict {
	tmpPath, err := writeTemp(e.TempDir, data)
	if err != nil {
		logger.Warn("Scanner skipped, cannot stage payload: %v", err)
		return Unavailable
	}
	defer os.Remove(tmpPath)

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, e.Args...), tmpPath)
	output, err := exec.CommandContext(ctx, e.Path, args...).CombinedOutput()
	if err == nil {
		return Clean
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		logger.Warn("%s flagged upload (exit %d): %s", e.Path, exitErr.ExitCode(), trimOutput(output))
		return Suspicious
	}

	logger.Warn("Scanner %s unavailable: %v", e.Path, err)
	return Unavailable
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "ftpplus-scan-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

func trimOutput(out []byte) string {
	const max = 256
	if len(out) > max {
		return string(out[:max]) + "..."
	}
	return string(out)
}
