//go:build linux

package services

import (
	"os"

	"golang.org/x/sys/unix"
)

// statFile reads the birth time through statx. Filesystems that do not
// record it fall back to the modification time.
func statFile(abs string, info os.FileInfo) FileStat {
	stat := FileStat{
		Size:             info.Size(),
		MtimeSeconds:     info.ModTime().Unix(),
		BirthtimeSeconds: info.ModTime().Unix(),
	}

	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, abs, unix.AT_STATX_SYNC_AS_STAT, unix.STATX_BTIME|unix.STATX_MTIME, &stx)
	if err == nil && stx.Mask&unix.STATX_BTIME != 0 {
		stat.BirthtimeSeconds = stx.Btime.Sec
	}
	return stat
}
