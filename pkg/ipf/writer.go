package ipf

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

const fileBufferSize = 64 * 1024

// StreamWriter composes profiles into a byte stream, wrapping it in the
// container chosen by the stream name. Close must be called to finish the
// container; it does not close the underlying stream.
type StreamWriter struct {
	composer *Composer
	gz       *gzip.Writer
	archive  *zip.Writer
}

// NewStreamWriter prepares a writer for w. A zip container gets a single
// entry named after the stream without its ".zip" suffix.
func NewStreamWriter(w io.Writer, name string, opts ...ComposerOption) (*StreamWriter, error) {
	s := &StreamWriter{}

	var out io.Writer
	switch DetectCompression(name) {
	case CompressionZip:
		s.archive = zip.NewWriter(w)
		entry, err := s.archive.Create(zipEntryName(name))
		if err != nil {
			return nil, err
		}
		out = entry
	case CompressionGzip:
		s.gz = gzip.NewWriter(w)
		out = s.gz
	default:
		out = w
	}

	s.composer = NewComposer(NewCSVWriter(out), opts...)
	return s, nil
}

// Composer exposes the underlying composer for control rows and counters.
func (s *StreamWriter) Composer() *Composer {
	return s.composer
}

// Write composes the given profiles.
func (s *StreamWriter) Write(profiles ...*Profile) error {
	return s.composer.Compose(profiles...)
}

// Close flushes pending rows and finishes the container.
func (s *StreamWriter) Close() error {
	err := s.composer.Flush()
	if s.gz != nil {
		err = errors.Join(err, s.gz.Close())
	}
	if s.archive != nil {
		err = errors.Join(err, s.archive.Close())
	}
	return err
}

// WriteAll composes profiles into w. The name selects the container.
func WriteAll(w io.Writer, name string, profiles []*Profile, opts ...ComposerOption) error {
	s, err := NewStreamWriter(w, name, opts...)
	if err != nil {
		return err
	}
	if err := s.Write(profiles...); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}

// WriteFile composes profiles into the named file. The data is written to a
// temporary file in the same directory, synced, then renamed into place, so
// readers never observe a partial catalog.
func WriteFile(path string, profiles []*Profile, opts ...ComposerOption) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	buf := bufio.NewWriterSize(tmp, fileBufferSize)
	if err := WriteAll(buf, path, profiles, opts...); err != nil {
		cleanup()
		return err
	}
	if err := buf.Flush(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
