package ipf

import (
	"strings"

	"go.uber.org/zap"
)

// formatState is what a composer has declared so far for one type. It only
// ever grows.
type formatState struct {
	canonical [numFields]bool
	custom    map[string]struct{}
	order     []string // custom names, first seen first
	columns   []column
}

func newFormatState() *formatState {
	st := &formatState{custom: make(map[string]struct{})}
	st.canonical[FieldSymbol] = true
	return st
}

// grow adds every non-empty field of p that is not declared yet and reports
// whether anything was added.
func (st *formatState) grow(p *Profile) bool {
	grown := false
	for _, f := range allFields[1:] {
		if !st.canonical[f] && !f.IsEmpty(p) {
			st.canonical[f] = true
			grown = true
		}
	}
	p.eachCustomField(func(name, value string) {
		if value == "" {
			return
		}
		if _, canonical := FindField(name); canonical {
			return
		}
		if _, ok := st.custom[name]; !ok {
			st.custom[name] = struct{}{}
			st.order = append(st.order, name)
			grown = true
		}
	})
	return grown
}

func (st *formatState) rebuild() {
	st.columns = st.columns[:0]
	for _, f := range allFields[1:] {
		if st.canonical[f] {
			st.columns = append(st.columns, canonicalColumn(f))
		}
	}
	for _, name := range st.order {
		st.columns = append(st.columns, customColumn(name))
	}
}

// Composer encodes profiles as rows, declaring or widening the format of a
// type right before the first row that needs it. Formats only grow, so every
// row of a type stays aligned with every earlier row of that type.
//
// A Composer is not safe for concurrent use. Callers that share one output
// must serialize calls to it.
type Composer struct {
	out         RecordWriter
	formats     map[string]*formatState
	skipRemoved bool
	updated     bool
	logger      *zap.Logger
	onFormat    func(typ string, fields []string)
	row         []string

	records      int
	declarations int
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithSkipRemoved drops profiles of type REMOVED instead of writing them.
func WithSkipRemoved(skip bool) ComposerOption {
	return func(c *Composer) { c.skipRemoved = skip }
}

// WithDeclarationHandler registers a callback that observes every emitted
// format declaration.
func WithDeclarationHandler(fn func(typ string, fields []string)) ComposerOption {
	return func(c *Composer) { c.onFormat = fn }
}

// WithComposerLogger sets the logger used for debug output.
func WithComposerLogger(logger *zap.Logger) ComposerOption {
	return func(c *Composer) { c.logger = logger }
}

// NewComposer creates a composer writing rows to out.
func NewComposer(out RecordWriter, opts ...ComposerOption) *Composer {
	c := &Composer{
		out:     out,
		formats: make(map[string]*formatState),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose writes the given profiles in order. A profile whose type cannot be
// read back (see ValidateType) fails with a FormatError before anything is
// written for it; a failing write is returned unchanged.
func (c *Composer) Compose(profiles ...*Profile) error {
	for _, p := range profiles {
		if err := c.compose(p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composer) compose(p *Profile) error {
	typ := p.Type()
	c.updated = false
	if c.skipRemoved && typ == TypeRemoved {
		return nil
	}
	if err := ValidateType(typ); err != nil {
		return err
	}

	st, known := c.formats[typ]
	if !known {
		st = newFormatState()
		c.formats[typ] = st
	}
	if st.grow(p) || !known {
		st.rebuild()
		if err := c.declare(typ, st); err != nil {
			return err
		}
		c.updated = true
	}

	c.row = append(c.row[:0], typ)
	for _, col := range st.columns {
		c.row = append(c.row, col.get(p))
	}
	if err := c.out.Write(c.row); err != nil {
		return err
	}
	c.records++
	return nil
}

// ValidateType reports whether typ can head a row. An empty type has no
// declaration, and a type starting with "#" reads back as a comment.
func ValidateType(typ string) error {
	switch {
	case typ == "":
		return &FormatError{Field: "TYPE", Msg: "empty type"}
	case strings.HasPrefix(typ, metaPrefix):
		return &FormatError{Field: "TYPE", Text: typ, Msg: "type cannot start with " + metaPrefix}
	}
	return nil
}

func (c *Composer) declare(typ string, st *formatState) error {
	c.row = append(c.row[:0], metaPrefix+typ+metaSuffix)
	for _, col := range st.columns {
		c.row = append(c.row, col.name())
	}
	if err := c.out.Write(c.row); err != nil {
		return err
	}
	c.declarations++
	if c.onFormat != nil {
		fields := make([]string, len(c.row)-1)
		copy(fields, c.row[1:])
		c.onFormat(typ, fields)
	}
	c.logger.Debug("format declared",
		zap.String("type", typ),
		zap.Int("fields", len(st.columns)))
	return nil
}

// FormatsUpdated reports whether the last composed profile caused a format
// declaration.
func (c *Composer) FormatsUpdated() bool {
	return c.updated
}

// Records returns the number of data rows written.
func (c *Composer) Records() int {
	return c.records
}

// Declarations returns the number of format declarations written.
func (c *Composer) Declarations() int {
	return c.declarations
}

// ComposeFlush writes a flush control row and flushes the output.
func (c *Composer) ComposeFlush() error {
	return c.control(FlushCommand)
}

// ComposeComplete writes a snapshot-complete control row and flushes the
// output.
func (c *Composer) ComposeComplete() error {
	return c.control(CompleteCommand)
}

// ComposeNewLine terminates the current output with an empty line and
// flushes it. Readers skip empty lines.
func (c *Composer) ComposeNewLine() error {
	return c.control("")
}

func (c *Composer) control(token string) error {
	if err := c.out.Write([]string{token}); err != nil {
		return err
	}
	return c.Flush()
}

// Flush pushes buffered rows to the underlying writer.
func (c *Composer) Flush() error {
	c.out.Flush()
	return c.out.Error()
}
