package ipf

import (
	"path"
	"strings"
)

// Compression is the container a profile stream is wrapped in.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZip
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZip:
		return "zip"
	default:
		return "none"
	}
}

// DetectCompression selects the container from a file or URL name suffix:
// ".zip", ".gz", otherwise none. The comparison ignores case.
func DetectCompression(name string) Compression {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return CompressionZip
	case strings.HasSuffix(lower, ".gz"):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// zipEntryName is the single entry written into a zip named name: its base
// name without the ".zip" suffix.
func zipEntryName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if len(base) >= len(".zip") && strings.EqualFold(base[len(base)-len(".zip"):], ".zip") {
		base = base[:len(base)-len(".zip")]
	}
	if base == "" || base == "." || base == "/" {
		return "profiles.ipf"
	}
	return base
}
