package ipf

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Wire markers.
const (
	metaPrefix      = "#"
	metaSuffix      = "::=TYPE"
	FlushCommand    = "##"
	CompleteCommand = "##COMPLETE"
)

// column is one declared slot of a format: a canonical field or a custom
// field name.
type column struct {
	field  Field
	custom string
}

func canonicalColumn(f Field) column {
	return column{field: f}
}

func customColumn(name string) column {
	return column{field: -1, custom: name}
}

func (c column) isCustom() bool {
	return c.field < 0
}

func (c column) name() string {
	if c.isCustom() {
		return c.custom
	}
	return c.field.Name()
}

func (c column) get(p *Profile) string {
	if c.isCustom() {
		return p.CustomField(c.custom)
	}
	return c.field.Get(p)
}

func (c column) set(p *Profile, value string) error {
	if c.isCustom() {
		p.SetCustomField(c.custom, value)
		return nil
	}
	return c.field.Set(p, value)
}

// Parser decodes profiles from a stream of tokenized rows. It keeps one
// format per type, replaced by every new declaration of that type, and
// yields data rows as profiles in file order.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	in      RecordReader
	source  string
	formats map[string][]column
	logger  *zap.Logger

	onFlush    func()
	onComplete func()
	onFormat   func(typ string, fields []string)

	line    int
	records int
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithFlushHandler registers a callback for flush control rows.
func WithFlushHandler(fn func()) ParserOption {
	return func(p *Parser) { p.onFlush = fn }
}

// WithCompleteHandler registers a callback for snapshot-complete control rows.
func WithCompleteHandler(fn func()) ParserOption {
	return func(p *Parser) { p.onComplete = fn }
}

// WithFormatHandler registers a callback that observes every accepted format
// declaration.
func WithFormatHandler(fn func(typ string, fields []string)) ParserOption {
	return func(p *Parser) { p.onFormat = fn }
}

// WithSource names the input in error messages.
func WithSource(name string) ParserOption {
	return func(p *Parser) { p.source = name }
}

// WithParserLogger sets the logger used for debug output.
func WithParserLogger(logger *zap.Logger) ParserOption {
	return func(p *Parser) { p.logger = logger }
}

// NewParser creates a parser reading rows from in.
func NewParser(in RecordReader, opts ...ParserOption) *Parser {
	p := &Parser{
		in:      in,
		formats: make(map[string][]column),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Line returns the line number of the last row read, or the number of rows
// read when the tokenizer does not report positions.
func (p *Parser) Line() int {
	return p.line
}

// Records returns the number of profiles produced so far.
func (p *Parser) Records() int {
	return p.records
}

// Next returns the next profile. It returns io.EOF when the input is
// exhausted, a *FormatError for content it cannot interpret, and any other
// read error unchanged.
func (p *Parser) Next() (*Profile, error) {
	for {
		row, err := p.in.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &FormatError{Source: p.source, Line: pe.Line, Msg: "malformed row", Err: err}
			}
			return nil, err
		}
		p.advance()

		if isBlank(row) {
			continue
		}

		head := row[0]
		if strings.HasPrefix(head, metaPrefix) {
			switch {
			case head == CompleteCommand:
				if p.onComplete != nil {
					p.onComplete()
				}
			case head == FlushCommand:
				if p.onFlush != nil {
					p.onFlush()
				}
			case strings.HasSuffix(head, metaSuffix) && len(head) >= len(metaPrefix)+len(metaSuffix):
				if err := p.declare(row); err != nil {
					return nil, err
				}
			}
			// anything else starting with the marker is a comment
			continue
		}

		profile, err := p.record(row)
		if err != nil {
			return nil, err
		}
		p.records++
		return profile, nil
	}
}

func (p *Parser) advance() {
	if pos, ok := p.in.(positioner); ok {
		p.line, _ = pos.FieldPos(0)
		return
	}
	p.line++
}

func (p *Parser) declare(row []string) error {
	head := row[0]
	typ := head[len(metaPrefix) : len(head)-len(metaSuffix)]
	if typ == "" {
		return p.fail(row, "format declaration without type")
	}

	seen := map[string]struct{}{FieldType.Name(): {}}
	columns := make([]column, 0, len(row)-1)
	for _, name := range row[1:] {
		if name == "" {
			return p.fail(row, "empty field name in format for %s", typ)
		}
		if _, dup := seen[name]; dup {
			return p.fail(row, "duplicate field %s in format for %s", name, typ)
		}
		seen[name] = struct{}{}

		if f, ok := FindField(name); ok {
			columns = append(columns, canonicalColumn(f))
		} else {
			columns = append(columns, customColumn(name))
		}
	}

	p.formats[typ] = columns
	if p.onFormat != nil {
		p.onFormat(typ, row[1:])
	}
	p.logger.Debug("format declared",
		zap.String("type", typ),
		zap.Int("fields", len(columns)),
		zap.Int("line", p.line))
	return nil
}

func (p *Parser) record(row []string) (*Profile, error) {
	typ := row[0]
	format, ok := p.formats[typ]
	if !ok {
		return nil, p.fail(row, "undefined format for type %q", typ)
	}
	if len(row)-1 != len(format) {
		return nil, p.fail(row, "wrong field count for type %s: expected %d, got %d", typ, len(format), len(row)-1)
	}

	profile := NewProfile()
	profile.SetType(typ)
	for i, col := range format {
		if err := col.set(profile, row[i+1]); err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				return nil, fe.locate(p.source, p.line, row)
			}
			return nil, err
		}
	}
	return profile, nil
}

func (p *Parser) fail(row []string, format string, args ...any) *FormatError {
	return &FormatError{
		Source: p.source,
		Line:   p.line,
		Row:    row,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func isBlank(row []string) bool {
	return len(row) == 0 || (len(row) == 1 && row[0] == "")
}

// ReadProfiles drains a parser into a slice. On error it returns the
// profiles read before the failure together with the error.
func ReadProfiles(p *Parser) ([]*Profile, error) {
	var out []*Profile
	for {
		profile, err := p.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, profile)
	}
}
