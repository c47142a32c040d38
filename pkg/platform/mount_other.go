//go:build !linux
// +build !linux

package platform

import (
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/supertagfs/supertag/pkg/settings"
)

// MountedCollections shells out to mount(8), the portable way to enumerate
// live mounts on BSD-derived kernels that don't expose /proc/self/mountinfo,
// returning collection name -> mountpoint for every entry rooted under
// s.SupertagDir().
func MountedCollections(s *settings.Settings) (map[string]string, error) {
	out, err := exec.Command("mount").Output()
	if err != nil {
		return nil, errors.Wrap(err, "running mount")
	}
	return parseMountOutput(filepath.Clean(s.SupertagDir()), string(out)), nil
}

// parseMountOutput extracts collection name -> mountpoint for every
// "X on Y (opts)" line rooted directly under base.
func parseMountOutput(base, output string) map[string]string {
	result := make(map[string]string)

	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, " on ", 2)
		if len(parts) != 2 {
			continue
		}
		rest := parts[1]
		if idx := strings.Index(rest, " ("); idx >= 0 {
			rest = rest[:idx]
		}
		mountpoint := rest
		rel, err := filepath.Rel(base, mountpoint)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		if strings.Contains(rel, string(filepath.Separator)) {
			continue
		}
		result[rel] = mountpoint
	}
	return result
}
