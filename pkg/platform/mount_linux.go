package platform

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/supertagfs/supertag/pkg/settings"
)

// MountedCollections reads /proc/self/mountinfo for mounts rooted under
// s.SupertagDir(), returning collection name -> mountpoint. Mounts are not
// filtered by filesystem type.
func MountedCollections(s *settings.Settings) (map[string]string, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return nil, errors.Wrap(err, "reading mountinfo")
	}
	defer f.Close()

	out, err := parseMountinfo(filepath.Clean(s.SupertagDir()), f)
	if err != nil {
		return nil, errors.Wrap(err, "scanning mountinfo")
	}
	return out, nil
}

// parseMountinfo extracts collection name -> mountpoint for every mountinfo
// line rooted directly under base (not a subdirectory of one).
func parseMountinfo(base string, r io.Reader) (map[string]string, error) {
	out := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		mountpoint := fields[4]
		rel, err := filepath.Rel(base, mountpoint)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		if strings.Contains(rel, string(filepath.Separator)) {
			continue
		}
		out[rel] = mountpoint
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
