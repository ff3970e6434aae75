package treesync

import (
	"github.com/cespare/xxhash/v2"
)

// Checksum streams the file at p through xxHash64.
func (s *Syncer) Checksum(p string) (uint64, error) {
	in, err := s.fs.OpenRead(p)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	h := xxhash.New()
	if _, err := copyChunks(h, in, make([]byte, s.chunk)); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
