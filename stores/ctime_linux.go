//go:build linux

package stores

import (
	"os"
	"syscall"
	"time"
)

// ChangeTime returns the inode change time of fi, falling back to its modification time
func ChangeTime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	return fi.ModTime()
}
