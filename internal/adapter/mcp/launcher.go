package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ErrLauncherNotFound is returned when no package launcher can be located.
var ErrLauncherNotFound = errors.New("npx launcher not found")

const launcherName = "npx"

// launcherEnv abstracts the host lookups so resolution is testable.
type launcherEnv struct {
	goos      string
	lookPath  func(string) (string, error)
	npmPrefix func(ctx context.Context) (string, error)
	exists    func(string) bool
}

// ResolveLauncher locates the npx executable used to start package-based
// tool servers. Windows relies on PATH; POSIX hosts prefer the npm
// configured prefix and fall back to PATH.
func ResolveLauncher(ctx context.Context) (string, error) {
	return resolveLauncher(ctx, launcherEnv{
		goos:      runtime.GOOS,
		lookPath:  exec.LookPath,
		npmPrefix: npmConfigPrefix,
		exists: func(p string) bool {
			info, err := os.Stat(p)
			return err == nil && !info.IsDir()
		},
	})
}

func resolveLauncher(ctx context.Context, env launcherEnv) (string, error) {
	if env.goos == "windows" {
		if _, err := env.lookPath(launcherName); err != nil {
			return "", fmt.Errorf("%w: %s not on PATH", ErrLauncherNotFound, launcherName)
		}
		return launcherName, nil
	}

	if prefix, err := env.npmPrefix(ctx); err == nil && prefix != "" {
		candidate := filepath.Join(prefix, "bin", launcherName)
		if env.exists(candidate) {
			return candidate, nil
		}
	}

	path, err := env.lookPath(launcherName)
	if err != nil {
		return "", fmt.Errorf("%w: not under npm prefix and not on PATH", ErrLauncherNotFound)
	}
	return path, nil
}

func npmConfigPrefix(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "npm", "config", "get", "prefix").Output()
	if err != nil {
		return "", fmt.Errorf("npm config get prefix: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
