package ipf

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFormat matches every *FormatError via errors.Is.
var ErrFormat = errors.New("ipf: format error")

// FormatError reports content that cannot be interpreted as profile data:
// malformed declarations, rows for undeclared types, wrong column counts,
// unparsable numbers or dates, and broken quoting. It is always fatal to the
// current read; records returned before it are valid.
type FormatError struct {
	Source string   // file or archive entry name, when known
	Line   int      // 1-based line number, 0 when unknown
	Row    []string // offending row as tokenized
	Field  string   // field name for value errors
	Text   string   // offending raw text for value errors
	Msg    string
	Err    error
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString("ipf: ")
	b.WriteString(e.Msg)
	if e.Field != "" {
		fmt.Fprintf(&b, " for field %s: %q", e.Field, e.Text)
	}
	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Row != nil {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Row, ","))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// locate fills in position details the lower layers did not know about.
func (e *FormatError) locate(source string, line int, row []string) *FormatError {
	if e.Source == "" {
		e.Source = source
	}
	if e.Line == 0 {
		e.Line = line
	}
	if e.Row == nil {
		e.Row = row
	}
	return e
}
