package xattrs

import (
	"os"

	"github.com/pkg/errors"
)

func renameFile(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return errors.Wrap(err, "renaming managed file")
	}
	return nil
}
