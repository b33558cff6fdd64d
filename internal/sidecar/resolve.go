package sidecar

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrSidecarNotFound is returned when the bundled executable cannot be located.
var ErrSidecarNotFound = errors.New("sidecar executable not found")

// ResolveBinary locates the sidecar executable called name. Paths are checked
// as given. Bare names are looked up next to the shell executable (plain and
// with a -GOOS-GOARCH suffix, as bundlers stage per-platform sidecars), then in
// the working directory, then on PATH.
func ResolveBinary(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrSidecarNotFound)
	}

	if strings.ContainsRune(name, os.PathSeparator) || strings.Contains(name, "/") {
		if resolved, ok := resolveExecutableCandidate(name); ok {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: %s", ErrSidecarNotFound, name)
	}

	candidates := binaryCandidates(name)
	for _, candidate := range candidates {
		if resolved, ok := resolveExecutableCandidate(candidate); ok {
			return resolved, nil
		}
	}

	if resolved, err := exec.LookPath(name); err == nil {
		return resolved, nil
	}

	return "", fmt.Errorf("%w: %s (checked %v and PATH)", ErrSidecarNotFound, name, candidates)
}

func binaryCandidates(name string) []string {
	var candidates []string
	seen := make(map[string]struct{})
	addCandidate := func(path string) {
		clean := filepath.Clean(path)
		if _, ok := seen[clean]; ok {
			return
		}
		seen[clean] = struct{}{}
		candidates = append(candidates, clean)
	}

	names := []string{
		name + exeSuffix(),
		fmt.Sprintf("%s-%s-%s%s", name, runtime.GOOS, runtime.GOARCH, exeSuffix()),
	}

	if execPath, err := os.Executable(); err == nil {
		if resolvedExec, err := filepath.EvalSymlinks(execPath); err == nil {
			execDir := filepath.Dir(resolvedExec)
			for _, n := range names {
				addCandidate(filepath.Join(execDir, n))
			}
			// macOS app bundles keep helpers under Contents/Resources.
			if runtime.GOOS == "darwin" {
				addCandidate(filepath.Join(filepath.Dir(execDir), "Resources", names[0]))
			}
		}
	}

	for _, n := range names {
		addCandidate(filepath.Join(".", n))
	}

	return candidates
}

func resolveExecutableCandidate(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", false
	}

	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return "", false
	}

	return abs, true
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
