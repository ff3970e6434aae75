// Package flashbd maps a region of an in-memory flash dump onto erase blocks
// with read/program/erase/sync semantics, the shape a flash filesystem driver
// expects from real NOR/NAND parts.
package flashbd

import (
	"errors"
	"fmt"
)

// Flash layout of the target hardware.
const (
	DefaultOffset    = 0x200000
	DefaultBlockSize = 4096
)

// erased is the value every byte holds after an erase.
const erased = 0xFF

var (
	// ErrOutOfRange is returned for requests outside the mapped region.
	ErrOutOfRange = errors.New("flashbd: request outside mapped region")
	// ErrGeometry is returned by New when the image cannot hold a single block.
	ErrGeometry = errors.New("flashbd: invalid geometry")
)

// Device presents image[offset:] as blockCount blocks of blockSize bytes.
//
// The image slice is shared, not copied: Program and Erase mutate it in place.
// Programming does not enforce the bit-clearing rule of real flash; any byte
// may be overwritten with any value. Device is not safe for concurrent use.
type Device struct {
	image      []byte
	offset     int64
	blockSize  int64
	blockCount int64
}

// New returns a Device over image. Trailing bytes that do not fill a whole
// block are left unmapped.
func New(image []byte, offset, blockSize int64) (*Device, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d", ErrGeometry, blockSize)
	}
	if offset < 0 || int64(len(image)) <= offset {
		return nil, fmt.Errorf("%w: offset 0x%X beyond image of %d bytes", ErrGeometry, offset, len(image))
	}
	count := (int64(len(image)) - offset) / blockSize
	if count == 0 {
		return nil, fmt.Errorf("%w: region smaller than one %d byte block", ErrGeometry, blockSize)
	}
	return &Device{
		image:      image,
		offset:     offset,
		blockSize:  blockSize,
		blockCount: count,
	}, nil
}

// BlockSize returns the erase unit in bytes.
func (d *Device) BlockSize() int64 { return d.blockSize }

// BlockCount returns the number of mapped blocks.
func (d *Device) BlockCount() int64 { return d.blockCount }

// Offset returns where the region starts within the image.
func (d *Device) Offset() int64 { return d.offset }

// Len returns the length of the whole image, mapped or not.
func (d *Device) Len() int64 { return int64(len(d.image)) }

// span resolves (block, off, n) to an absolute image range.
func (d *Device) span(block, off, n int64) (int64, int64, error) {
	if block < 0 || block >= d.blockCount || off < 0 || n < 0 || off+n > d.blockSize {
		return 0, 0, fmt.Errorf("%w: block %d off %d len %d", ErrOutOfRange, block, off, n)
	}
	start := d.offset + block*d.blockSize + off
	return start, start + n, nil
}

// Read fills p from block at intra-block offset off.
func (d *Device) Read(block, off int64, p []byte) error {
	start, end, err := d.span(block, off, int64(len(p)))
	if err != nil {
		return err
	}
	copy(p, d.image[start:end])
	return nil
}

// Program overwrites len(data) bytes of block starting at off. A failure
// part way leaves the block torn, as on hardware.
func (d *Device) Program(block, off int64, data []byte) error {
	start, end, err := d.span(block, off, int64(len(data)))
	if err != nil {
		return err
	}
	copy(d.image[start:end], data)
	return nil
}

// Erase sets every byte of block to 0xFF.
func (d *Device) Erase(block int64) error {
	start, end, err := d.span(block, 0, d.blockSize)
	if err != nil {
		return err
	}
	region := d.image[start:end]
	for i := range region {
		region[i] = erased
	}
	return nil
}

// Sync is a no-op; the image has no write-back cache.
func (d *Device) Sync() error { return nil }
