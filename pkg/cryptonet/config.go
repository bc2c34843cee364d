package cryptonet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prividentity/cryptonet-go/pkg/cryptonet/logging"
)

// Config expresses the knobs required to bring up the native library.
type Config struct {
	// WorkingDir is the filesystem root the library keeps its models and
	// persistent state in. It is required.
	WorkingDir string

	// CreateWorkingDir creates WorkingDir (0o700) when it does not exist.
	CreateWorkingDir bool

	// Driver overrides the function table. Nil selects the native bindings,
	// which exist only in builds with cgo and the privid_native tag.
	Driver Driver

	// Logger receives lifecycle and failure events. Nil binds to
	// slog.Default().
	Logger logging.Logger
}

func (c Config) workingDir() (string, error) {
	if c.WorkingDir == "" {
		return "", ErrNoWorkingDir
	}
	dir, err := filepath.Abs(filepath.Clean(c.WorkingDir))
	if err != nil {
		return "", fmt.Errorf("cryptonet: resolve working directory: %w", err)
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return "", fmt.Errorf("cryptonet: working directory %q is not a directory", dir)
	case err == nil:
		return dir, nil
	case os.IsNotExist(err) && c.CreateWorkingDir:
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("cryptonet: create working directory: %w", err)
		}
		return dir, nil
	default:
		return "", fmt.Errorf("cryptonet: working directory: %w", err)
	}
}

// ModelMode selects the model set CheckModels validates. Enroll checks a
// superset of predict.
type ModelMode bool

const (
	ModePredict ModelMode = false
	ModeEnroll  ModelMode = true
)

func (m ModelMode) String() string {
	if m == ModeEnroll {
		return "enroll"
	}
	return "predict"
}

// ParseModelMode accepts "enroll" and "predict"; the empty string is predict.
func ParseModelMode(s string) (ModelMode, error) {
	switch s {
	case "", "predict":
		return ModePredict, nil
	case "enroll":
		return ModeEnroll, nil
	default:
		return ModePredict, fmt.Errorf("cryptonet: unknown model mode %q", s)
	}
}
