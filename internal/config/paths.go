package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Paths holds the resolved filesystem locations the application uses.
// Everything is anchored at the executable directory so a portable
// install keeps its license cache and logs beside the binary.
type Paths struct {
	ExecutableDir string
	LicenseFile   string
	LogsDir       string
}

var (
	cachedPaths *Paths
	pathsOnce   sync.Once
	pathsErr    error
)

// GetPaths resolves and caches the application paths.
func GetPaths() (*Paths, error) {
	pathsOnce.Do(func() {
		cachedPaths, pathsErr = resolvePathsFromExecutable()
	})
	return cachedPaths, pathsErr
}

// GetLicensePath returns the absolute path of the license cache file.
func GetLicensePath() (string, error) {
	paths, err := GetPaths()
	if err != nil {
		return "", err
	}
	return paths.LicenseFile, nil
}

func resolvePathsFromExecutable() (*Paths, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}

	// Resolve symlinks so the anchor is the real install directory
	if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolved
	}

	exeDir := filepath.Dir(exePath)

	// `go test` and `go run` place the binary in a temp build dir;
	// fall back to the working directory there so development runs
	// don't scatter files into the build cache.
	if isTemporaryBuildDir(exeDir) {
		if wd, err := os.Getwd(); err == nil {
			exeDir = wd
		}
	}

	return &Paths{
		ExecutableDir: exeDir,
		LicenseFile:   filepath.Join(exeDir, DefaultLicenseFile),
		LogsDir:       filepath.Join(exeDir, "logs"),
	}, nil
}

func isTemporaryBuildDir(dir string) bool {
	tmp := os.TempDir()
	if tmp != "" && strings.HasPrefix(dir, tmp) {
		return true
	}
	return strings.Contains(dir, "go-build")
}

// resolveAgainstExecutable joins a possibly-relative path with the
// executable directory; absolute paths pass through unchanged.
func resolveAgainstExecutable(exeDir, path string) string {
	if path == "" {
		return exeDir
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(exeDir, path)
}

// EnsureDirectories creates the directories the application writes to.
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.LogsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory %s: %w", p.LogsDir, err)
	}
	return nil
}

// ResetPathsForTesting clears the cached paths. Tests only.
func ResetPathsForTesting() {
	cachedPaths = nil
	pathsErr = nil
	pathsOnce = sync.Once{}
}
