package platform

import (
	"golang.org/x/sys/unix"
)

func unmount(mountpoint string) error {
	return unix.Unmount(mountpoint, 0)
}
