package scanner

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/marmos91/ftpplus/internal/logger"
)

// Detect returns the command-line scanner available on this host: Windows
// Defender on Windows, clamscan elsewhere. It returns Absent, with a warning,
// when neither is installed.
func Detect() Scanner {
	if runtime.GOOS == "windows" {
		if _, err := os.Stat(DefenderPath); err == nil {
			logger.Info("Using Windows Defender at %s", DefenderPath)
			return NewDefender(DefenderPath)
		}
		logger.Warn("Windows Defender not found, uploads will not be scanned")
		return Absent{}
	}

	if path, err := exec.LookPath(ClamscanBinary); err == nil {
		logger.Info("Using clamscan at %s", path)
		return NewClamscan(path)
	}
	logger.Warn("clamscan not found, uploads will not be scanned")
	return Absent{}
}
