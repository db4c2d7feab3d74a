//go:build darwin

package stores

import (
	"os"
	"syscall"
	"time"
)

// ChangeTime returns the inode change time of fi, falling back to its modification time
func ChangeTime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctimespec.Sec, st.Ctimespec.Nsec)
	}
	return fi.ModTime()
}
