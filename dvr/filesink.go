package dvr

import (
	"os"
	"path/filepath"
)

// OSFileSink implements [FileSink] against the local filesystem, rooted
// at Dir.
type OSFileSink struct {
	Dir string

	f    *os.File
	size int64
}

var _ FileSink = &OSFileSink{}

// Create implements [FileSink].
func (s *OSFileSink) Create(name string) error {
	if s.f != nil {
		s.f.Close()
	}
	f, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return err
	}
	s.f = f
	s.size = 0
	return nil
}

// Exists implements [FileSink].
func (s *OSFileSink) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.Dir, name))
	return err == nil
}

// Write implements [FileSink].
func (s *OSFileSink) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

// Size implements [FileSink].
func (s *OSFileSink) Size() int64 {
	return s.size
}

// Close implements [FileSink].
func (s *OSFileSink) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
