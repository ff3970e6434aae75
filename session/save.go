package session

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Save writes the whole image verbatim to out, or to the session path when
// out is empty, and clears the dirty flag. Regular files are replaced through
// a temporary file and a rename; block devices are overwritten in place.
// On success out becomes the session path.
func (s *Session) Save(out string) error {
	if out == "" {
		out = s.path
	}
	if out == "" {
		return fmt.Errorf("save: no destination")
	}
	if err := s.dev.Sync(); err != nil {
		return fmt.Errorf("sync device: %w", err)
	}

	var err error
	if st, serr := os.Stat(out); serr == nil && st.Mode()&os.ModeDevice != 0 {
		err = writeDevice(out, s.image)
	} else {
		err = writeFileAtomic(out, s.image)
	}
	if err != nil {
		return err
	}
	s.path = out
	s.dirty = false
	s.opts.log.Info("image saved", zap.String("path", out), zap.Int("bytes", len(s.image)))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}
	if st, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmp.Name(), st.Mode().Perm())
	} else {
		_ = os.Chmod(tmp.Name(), 0o644)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace image: %w", err)
	}
	return nil
}

func writeDevice(path string, data []byte) error {
	dst, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dst.Close()

	size, err := DeviceSize(dst)
	if err != nil {
		return fmt.Errorf("get device size: %w", err)
	}
	if size < int64(len(data)) {
		return fmt.Errorf("device too small: has %d bytes, need %d", size, len(data))
	}
	if _, err := dst.WriteAt(data, 0); err != nil {
		return fmt.Errorf("write device: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("sync device: %w", err)
	}
	return nil
}
