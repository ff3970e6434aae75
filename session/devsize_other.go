//go:build !linux && !darwin

package session

import (
	"io"
	"os"
)

// DeviceSize returns the size of a file or block device in bytes.
func DeviceSize(f *os.File) (int64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	_, err = f.Seek(0, io.SeekStart)
	return size, err
}
