package session

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DeviceSize returns the size of a regular file or block device in bytes.
// Block devices that cannot seek to their end are asked via BLKGETSIZE64.
func DeviceSize(f *os.File) (int64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err == nil && size > 0 {
		_, err = f.Seek(0, io.SeekStart)
		return size, err
	}

	var sizeBytes uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&sizeBytes)))
	if errno != 0 {
		if err == nil {
			// an empty regular file
			_, err = f.Seek(0, io.SeekStart)
			return 0, err
		}
		return 0, fmt.Errorf("cannot determine device size: %v", errno)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return int64(sizeBytes), nil
}
