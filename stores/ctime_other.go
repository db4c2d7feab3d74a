//go:build !linux && !darwin

package stores

import (
	"os"
	"time"
)

// ChangeTime returns the modification time of fi; the change time is not portable to this platform
func ChangeTime(fi os.FileInfo) time.Time {
	return fi.ModTime()
}
