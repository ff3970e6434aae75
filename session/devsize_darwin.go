package session

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	dkiocGetBlockSize  = 0x40046418 // _IOR('d', 24, uint32)
	dkiocGetBlockCount = 0x40086419 // _IOR('d', 25, uint64)
)

// DeviceSize returns the size of a regular file or disk in bytes. Raw disks
// report zero when seeked to the end, so they are asked for their geometry.
func DeviceSize(f *os.File) (int64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err == nil && size > 0 {
		_, err = f.Seek(0, io.SeekStart)
		return size, err
	}

	var blockSize uint32
	var blockCount uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), dkiocGetBlockSize, uintptr(unsafe.Pointer(&blockSize)))
	if errno != 0 {
		if err == nil {
			_, err = f.Seek(0, io.SeekStart)
			return 0, err
		}
		return 0, fmt.Errorf("cannot determine device size: %v", errno)
	}
	_, _, errno = unix.Syscall(unix.SYS_IOCTL, f.Fd(), dkiocGetBlockCount, uintptr(unsafe.Pointer(&blockCount)))
	if errno != 0 {
		return 0, fmt.Errorf("cannot get block count: %v", errno)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return int64(blockSize) * int64(blockCount), nil
}
