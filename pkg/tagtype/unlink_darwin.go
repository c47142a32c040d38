package tagtype

import (
	"strings"

	"github.com/supertagfs/supertag/pkg/settings"
)

// On macOS, Finder cannot rename a file and drop its extension while
// leaving one on, so accept "delete.<ext>" as well as the bare sentinel.
func shouldUnlinkPlatform(name string) bool {
	return name == settings.UnlinkName || strings.HasPrefix(name, settings.UnlinkName+".")
}
