package ipf

import (
	"bufio"
	"encoding/csv"
	"io"
)

// RecordReader yields tokenized rows, one per line, and io.EOF at the end.
// *csv.Reader satisfies it.
type RecordReader interface {
	Read() ([]string, error)
}

// RecordWriter accepts tokenized rows. *csv.Writer satisfies it.
type RecordWriter interface {
	Write(record []string) error
	Flush()
	Error() error
}

// positioner is implemented by readers that know where a row came from.
type positioner interface {
	FieldPos(field int) (line, column int)
}

// NewCSVReader returns a tokenizer configured for profile files: any number
// of fields per row, strict quoting, no comment character (comments are
// recognized by the parser). A CRLF inside a quoted field is kept as is.
func NewCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(newQuotedCRLFReader(r))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return cr
}

// NewCSVWriter returns a tokenizer that writes comma-separated rows
// terminated by a single newline.
func NewCSVWriter(w io.Writer) *csv.Writer {
	return csv.NewWriter(w)
}

// Quoting states of quotedCRLFReader.
const (
	atFieldStart = iota
	inUnquoted
	inQuoted
	afterQuote
)

// quotedCRLFReader doubles the CR of every CRLF inside a quoted field.
// csv.Reader folds a CRLF line ending into LF, also inside quoted fields, so
// "\r\r\n" comes back out as the original "\r\n".
type quotedCRLFReader struct {
	r       *bufio.Reader
	state   int
	pending bool
	err     error
}

func newQuotedCRLFReader(r io.Reader) *quotedCRLFReader {
	return &quotedCRLFReader{r: bufio.NewReader(r)}
}

func (q *quotedCRLFReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if q.pending {
			p[n] = '\r'
			n++
			q.pending = false
			continue
		}
		if q.err != nil {
			break
		}
		b, err := q.r.ReadByte()
		if err != nil {
			q.err = err
			break
		}
		p[n] = b
		n++
		q.step(b)
	}
	if n > 0 {
		return n, nil
	}
	return 0, q.err
}

func (q *quotedCRLFReader) step(b byte) {
	switch q.state {
	case atFieldStart, inUnquoted:
		switch b {
		case ',', '\n':
			q.state = atFieldStart
		case '"':
			if q.state == atFieldStart {
				q.state = inQuoted
			}
		default:
			q.state = inUnquoted
		}
	case inQuoted:
		switch b {
		case '"':
			q.state = afterQuote
		case '\r':
			if next, _ := q.r.Peek(1); len(next) == 1 && next[0] == '\n' {
				q.pending = true
			}
		}
	case afterQuote:
		switch b {
		case '"':
			q.state = inQuoted
		case ',', '\n':
			q.state = atFieldStart
		default:
			q.state = inUnquoted
		}
	}
}
