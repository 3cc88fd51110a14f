package ipf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// StreamReader reads profiles from a byte stream, unwrapping the container
// chosen by the stream name. Zip archives are read entry by entry; each entry
// is an independent profile stream with its own formats, unwrapped by its own
// name in turn.
type StreamReader struct {
	source string
	opts   []ParserOption

	parser *Parser
	gz     *gzip.Reader

	archive *zip.Reader
	next    int
	sub     *StreamReader
	current io.Closer
}

// NewStreamReader prepares a reader for r. The name selects the container and
// is used in error messages. Zip input that is not an io.ReaderAt is buffered
// in memory.
func NewStreamReader(r io.Reader, name string, opts ...ParserOption) (*StreamReader, error) {
	return newStreamReader(r, name, name, opts)
}

// newStreamReader selects the container by name and reports errors against
// source, which for archive entries carries the archive path.
func newStreamReader(r io.Reader, name, source string, opts []ParserOption) (*StreamReader, error) {
	s := &StreamReader{source: source, opts: opts}

	switch DetectCompression(name) {
	case CompressionZip:
		ra, size, err := readerAt(r)
		if err != nil {
			return nil, err
		}
		archive, err := zip.NewReader(ra, size)
		if err != nil {
			return nil, &FormatError{Source: source, Msg: "invalid zip archive", Err: err}
		}
		s.archive = archive
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, &FormatError{Source: source, Msg: "invalid gzip stream", Err: err}
		}
		s.gz = gz
		s.parser = s.newParser(gz)
	default:
		s.parser = s.newParser(r)
	}
	return s, nil
}

func (s *StreamReader) newParser(r io.Reader) *Parser {
	opts := make([]ParserOption, 0, len(s.opts)+1)
	opts = append(opts, WithSource(s.source))
	opts = append(opts, s.opts...)
	return NewParser(NewCSVReader(r), opts...)
}

// Next returns the next profile, io.EOF after the last one.
func (s *StreamReader) Next() (*Profile, error) {
	if s.archive == nil {
		return s.parser.Next()
	}
	for {
		if s.sub == nil {
			ok, err := s.openNextEntry()
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, io.EOF
			}
		}

		p, err := s.sub.Next()
		if errors.Is(err, io.EOF) {
			if err := s.closeEntry(); err != nil {
				return nil, err
			}
			continue
		}
		return p, err
	}
}

// Entry returns the name of the stream or archive entry being read. Entries
// of nested archives are joined with ':'.
func (s *StreamReader) Entry() string {
	if s.sub != nil {
		return s.sub.Entry()
	}
	if s.archive != nil {
		return ""
	}
	return s.source
}

func (s *StreamReader) openNextEntry() (bool, error) {
	for s.next < len(s.archive.File) {
		f := s.archive.File[s.next]
		s.next++
		if f.FileInfo().IsDir() {
			continue
		}
		source := s.source + ":" + f.Name
		rc, err := f.Open()
		if err != nil {
			return false, &FormatError{Source: source, Msg: "cannot open zip entry", Err: err}
		}
		sub, err := newStreamReader(rc, f.Name, source, s.opts)
		if err != nil {
			rc.Close()
			return false, err
		}
		s.current = rc
		s.sub = sub
		return true, nil
	}
	return false, nil
}

func (s *StreamReader) closeEntry() error {
	var errs []error
	if s.sub != nil {
		errs = append(errs, s.sub.Close())
		s.sub = nil
	}
	if s.current != nil {
		errs = append(errs, s.current.Close())
		s.current = nil
	}
	return errors.Join(errs...)
}

// Close releases the container readers. It does not close the underlying
// stream.
func (s *StreamReader) Close() error {
	err := s.closeEntry()
	if s.gz != nil {
		err = errors.Join(err, s.gz.Close())
	}
	return err
}

func readerAt(r io.Reader) (io.ReaderAt, int64, error) {
	switch v := r.(type) {
	case *bytes.Reader:
		return v, v.Size(), nil
	case *os.File:
		info, err := v.Stat()
		if err != nil {
			return nil, 0, err
		}
		return v, info.Size(), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// ReadAll reads every profile from r. The name selects the container. The
// first error stops reading; it names the offending line and row.
func ReadAll(r io.Reader, name string, opts ...ParserOption) ([]*Profile, error) {
	s, err := NewStreamReader(r, name, opts...)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return drain(s)
}

// ReadFile reads every profile from the named file.
func ReadFile(path string, opts ...ParserOption) ([]*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(f, path, opts...)
}

// Fetch opens the raw bytes behind a local path, a file:// URL or an
// http(s) URL. The returned name is what container detection should look
// at.
func Fetch(ctx context.Context, location string) (io.ReadCloser, string, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// plain path, including Windows drive letters
		return openLocal(location)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return openLocal(u.Path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, "", err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, "", fmt.Errorf("fetching %s: unexpected status %s", location, resp.Status)
		}
		return resp.Body, u.Path, nil
	default:
		return nil, "", fmt.Errorf("unsupported scheme %q in %s", u.Scheme, location)
	}
}

func openLocal(path string) (io.ReadCloser, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// Open returns a stream reader over a local path, a file:// URL or an
// http(s) URL. The returned closer releases the underlying stream.
func Open(ctx context.Context, location string, opts ...ParserOption) (*StreamReader, io.Closer, error) {
	rc, name, err := Fetch(ctx, location)
	if err != nil {
		return nil, nil, err
	}
	s, err := NewStreamReader(rc, name, opts...)
	if err != nil {
		rc.Close()
		return nil, nil, err
	}
	return s, closerFunc(func() error {
		return errors.Join(s.Close(), rc.Close())
	}), nil
}

// ReadURL reads every profile from a path or URL, see Open.
func ReadURL(ctx context.Context, location string, opts ...ParserOption) ([]*Profile, error) {
	s, closer, err := Open(ctx, location, opts...)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return drain(s)
}

func drain(s *StreamReader) ([]*Profile, error) {
	var out []*Profile
	for {
		p, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
