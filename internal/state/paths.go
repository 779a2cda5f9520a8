// Package state centralizes filesystem locations for klone's own runtime
// artifacts — the PID file, default log/crash files, and instance config
// search path cmd/klone resolves before internal/config ever opens a
// file.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirEnv overrides the default runtime state root.
	StateDirEnv = "KLONE_STATE_DIR"

	xdgStateHomeEnv = "XDG_STATE_HOME"
	appName         = "klone"
)

// RootDir returns the runtime state root for klone.
// Resolution order:
//  1. KLONE_STATE_DIR (if set)
//  2. XDG_STATE_HOME/klone (if XDG_STATE_HOME is set)
//  3. os.UserConfigDir()/klone (cross-platform fallback)
func RootDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv(StateDirEnv)); override != "" {
		return normalizePath(override)
	}

	if xdg := strings.TrimSpace(os.Getenv(xdgStateHomeEnv)); xdg != "" {
		root, err := normalizePath(xdg)
		if err != nil {
			return "", err
		}
		return filepath.Join(root, appName), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	root, err := normalizePath(configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, appName), nil
}

// LogsDir returns the logs directory under RootDir, the default parent
// of klog's rotating file sink basename.
func LogsDir() (string, error) {
	return InRoot("logs")
}

// DefaultLogFileBasename returns the default klog file-sink basename
// (the rotating sink appends ".<pageid>" itself, per internal/klog).
func DefaultLogFileBasename() (string, error) {
	return InRoot("logs", "klone.log")
}

// CrashLogFile returns the panic crash log file path under the logs
// directory. Nothing in cmd/klone writes to it.
func CrashLogFile() (string, error) {
	return InRoot("logs", "crash.log")
}

// PIDFile returns the PID file path for the named backend — klone's
// backends are string-identified (see internal/config.BackendConfig),
// unlike the teacher's single numeric server port.
func PIDFile(backendID string) (string, error) {
	return InRoot("run", "klone-"+backendID+".pid")
}

// InstanceConfigSearchPath returns the default instance config file
// tried when cmd/klone isn't given one explicitly: .klone.json in the
// current working directory.
func InstanceConfigSearchPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot determine working directory: %w", err)
	}
	return filepath.Join(cwd, ".klone.json"), nil
}

// InRoot returns a path rooted under RootDir with additional path
// elements.
func InRoot(parts ...string) (string, error) {
	root, err := RootDir()
	if err != nil {
		return "", err
	}
	all := make([]string, 0, len(parts)+1)
	all = append(all, root)
	all = append(all, parts...)
	return filepath.Join(all...), nil
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %q: %w", path, err)
	}
	return filepath.Clean(absPath), nil
}
