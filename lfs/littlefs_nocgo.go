//go:build !cgo

package lfs

// Mount reports ErrUnavailable; the LittleFS binding needs cgo.
func Mount(_ BlockDevice, _ Geometry) (FS, error) { return nil, ErrUnavailable }

// Format reports ErrUnavailable; the LittleFS binding needs cgo.
func Format(_ BlockDevice, _ Geometry) error { return ErrUnavailable }

// Available reports whether this build carries the LittleFS driver.
func Available() bool { return false }
