//go:build !darwin
// +build !darwin

package tagtype

import "github.com/supertagfs/supertag/pkg/settings"

func shouldUnlinkPlatform(name string) bool {
	return name == settings.UnlinkName
}
