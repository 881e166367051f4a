//go:build !linux

package services

import "os"

func statFile(abs string, info os.FileInfo) FileStat {
	return FileStat{
		Size:             info.Size(),
		MtimeSeconds:     info.ModTime().Unix(),
		BirthtimeSeconds: info.ModTime().Unix(),
	}
}
