package ipf

import (
	"errors"
	"math"

	"github.com/ssargent/ipfdb/pkg/codec"
)

// Kind is the value nature of a canonical field.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Field identifies one canonical profile field.
type Field int

// Canonical fields in declaration order. Composed formats list them in this
// order.
const (
	FieldType Field = iota
	FieldSymbol
	FieldDescription
	FieldLocalSymbol
	FieldLocalDescription
	FieldCountry
	FieldOPOL
	FieldExchangeData
	FieldExchanges
	FieldCurrency
	FieldBaseCurrency
	FieldCFI
	FieldISIN
	FieldSEDOL
	FieldCUSIP
	FieldICB
	FieldSIC
	FieldMultiplier
	FieldProduct
	FieldUnderlying
	FieldSPC
	FieldAdditionalUnderlyings
	FieldMMY
	FieldExpiration
	FieldLastTrade
	FieldStrike
	FieldOptionType
	FieldExpirationStyle
	FieldSettlementStyle
	FieldPriceIncrements
	FieldTradingHours

	numFields
)

// ErrFieldKind is returned by the typed accessors when the field has a
// different kind.
var ErrFieldKind = errors.New("ipf: field kind mismatch")

// fieldDef binds a field to its name and storage. Exactly one accessor is set,
// matching kind.
type fieldDef struct {
	name   string
	kind   Kind
	text   func(*Profile) *string
	number func(*Profile) *float64
	day    func(*Profile) *int
}

var fieldDefs = [numFields]fieldDef{
	FieldType:                  textField("TYPE", func(p *Profile) *string { return &p.typ }),
	FieldSymbol:                textField("SYMBOL", func(p *Profile) *string { return &p.symbol }),
	FieldDescription:           textField("DESCRIPTION", func(p *Profile) *string { return &p.description }),
	FieldLocalSymbol:           textField("LOCAL_SYMBOL", func(p *Profile) *string { return &p.localSymbol }),
	FieldLocalDescription:      textField("LOCAL_DESCRIPTION", func(p *Profile) *string { return &p.localDescription }),
	FieldCountry:               textField("COUNTRY", func(p *Profile) *string { return &p.country }),
	FieldOPOL:                  textField("OPOL", func(p *Profile) *string { return &p.opol }),
	FieldExchangeData:          textField("EXCHANGE_DATA", func(p *Profile) *string { return &p.exchangeData }),
	FieldExchanges:             textField("EXCHANGES", func(p *Profile) *string { return &p.exchanges }),
	FieldCurrency:              textField("CURRENCY", func(p *Profile) *string { return &p.currency }),
	FieldBaseCurrency:          textField("BASE_CURRENCY", func(p *Profile) *string { return &p.baseCurrency }),
	FieldCFI:                   textField("CFI", func(p *Profile) *string { return &p.cfi }),
	FieldISIN:                  textField("ISIN", func(p *Profile) *string { return &p.isin }),
	FieldSEDOL:                 textField("SEDOL", func(p *Profile) *string { return &p.sedol }),
	FieldCUSIP:                 textField("CUSIP", func(p *Profile) *string { return &p.cusip }),
	FieldICB:                   numberField("ICB", func(p *Profile) *float64 { return &p.icb }),
	FieldSIC:                   numberField("SIC", func(p *Profile) *float64 { return &p.sic }),
	FieldMultiplier:            numberField("MULTIPLIER", func(p *Profile) *float64 { return &p.multiplier }),
	FieldProduct:               textField("PRODUCT", func(p *Profile) *string { return &p.product }),
	FieldUnderlying:            textField("UNDERLYING", func(p *Profile) *string { return &p.underlying }),
	FieldSPC:                   numberField("SPC", func(p *Profile) *float64 { return &p.spc }),
	FieldAdditionalUnderlyings: textField("ADDITIONAL_UNDERLYINGS", func(p *Profile) *string { return &p.additionalUnderlyings }),
	FieldMMY:                   textField("MMY", func(p *Profile) *string { return &p.mmy }),
	FieldExpiration:            dateField("EXPIRATION", func(p *Profile) *int { return &p.expiration }),
	FieldLastTrade:             dateField("LAST_TRADE", func(p *Profile) *int { return &p.lastTrade }),
	FieldStrike:                numberField("STRIKE", func(p *Profile) *float64 { return &p.strike }),
	FieldOptionType:            textField("OPTION_TYPE", func(p *Profile) *string { return &p.optionType }),
	FieldExpirationStyle:       textField("EXPIRATION_STYLE", func(p *Profile) *string { return &p.expirationStyle }),
	FieldSettlementStyle:       textField("SETTLEMENT_STYLE", func(p *Profile) *string { return &p.settlementStyle }),
	FieldPriceIncrements:       textField("PRICE_INCREMENTS", func(p *Profile) *string { return &p.priceIncrements }),
	FieldTradingHours:          textField("TRADING_HOURS", func(p *Profile) *string { return &p.tradingHours }),
}

var (
	fieldsByName = make(map[string]Field, numFields)
	allFields    = make([]Field, 0, numFields)
)

func init() {
	for f := Field(0); f < numFields; f++ {
		if fieldDefs[f].name == "" {
			panic("ipf: canonical field without definition")
		}
		fieldsByName[fieldDefs[f].name] = f
		allFields = append(allFields, f)
	}
}

func textField(name string, acc func(*Profile) *string) fieldDef {
	return fieldDef{name: name, kind: KindText, text: acc}
}

func numberField(name string, acc func(*Profile) *float64) fieldDef {
	return fieldDef{name: name, kind: KindNumber, number: acc}
}

func dateField(name string, acc func(*Profile) *int) fieldDef {
	return fieldDef{name: name, kind: KindDate, day: acc}
}

// FindField looks up a canonical field by its exact, case-sensitive name.
// A false result means the name denotes a custom field.
func FindField(name string) (Field, bool) {
	f, ok := fieldsByName[name]
	return f, ok
}

// Fields returns all canonical fields in declaration order.
func Fields() []Field {
	out := make([]Field, len(allFields))
	copy(out, allFields)
	return out
}

// Valid reports whether f is a canonical field.
func (f Field) Valid() bool {
	return f >= 0 && f < numFields
}

// Name returns the wire name of the field, e.g. "SYMBOL".
func (f Field) Name() string {
	if !f.Valid() {
		return ""
	}
	return fieldDefs[f].name
}

func (f Field) String() string {
	return f.Name()
}

// Kind returns the value nature of the field.
func (f Field) Kind() Kind {
	return fieldDefs[f].kind
}

// Get returns the canonical text of the field in p.
func (f Field) Get(p *Profile) string {
	d := &fieldDefs[f]
	switch d.kind {
	case KindNumber:
		return codec.FormatNumber(*d.number(p))
	case KindDate:
		return codec.FormatDate(*d.day(p))
	default:
		return *d.text(p)
	}
}

// Set parses value according to the field kind and stores it in p. Numeric
// and date text that does not parse yields a *FormatError and leaves p
// unchanged.
func (f Field) Set(p *Profile, value string) error {
	d := &fieldDefs[f]
	switch d.kind {
	case KindNumber:
		v, err := codec.ParseNumber(value)
		if err != nil {
			return &FormatError{Field: d.name, Text: value, Msg: "invalid number", Err: err}
		}
		*d.number(p) = v
	case KindDate:
		v, err := codec.ParseDate(value)
		if err != nil {
			return &FormatError{Field: d.name, Text: value, Msg: "invalid date", Err: err}
		}
		*d.day(p) = v
	default:
		*d.text(p) = value
	}
	return nil
}

// Number returns the value of a numeric field.
func (f Field) Number(p *Profile) (float64, error) {
	d := &fieldDefs[f]
	if d.kind != KindNumber {
		return 0, ErrFieldKind
	}
	return *d.number(p), nil
}

// SetNumber stores the value of a numeric field.
func (f Field) SetNumber(p *Profile, v float64) error {
	d := &fieldDefs[f]
	if d.kind != KindNumber {
		return ErrFieldKind
	}
	*d.number(p) = v
	return nil
}

// Day returns the day id of a date field.
func (f Field) Day(p *Profile) (int, error) {
	d := &fieldDefs[f]
	if d.kind != KindDate {
		return 0, ErrFieldKind
	}
	return *d.day(p), nil
}

// SetDay stores the day id of a date field.
func (f Field) SetDay(p *Profile, dayID int) error {
	d := &fieldDefs[f]
	if d.kind != KindDate {
		return ErrFieldKind
	}
	*d.day(p) = dayID
	return nil
}

// IsEmpty reports whether the field holds its absence value in p.
func (f Field) IsEmpty(p *Profile) bool {
	d := &fieldDefs[f]
	switch d.kind {
	case KindNumber:
		return *d.number(p) == 0
	case KindDate:
		return *d.day(p) == 0
	default:
		return *d.text(p) == ""
	}
}

// equal compares the field in a and b, numerically for numbers and dates.
func (f Field) equal(a, b *Profile) bool {
	d := &fieldDefs[f]
	switch d.kind {
	case KindNumber:
		x, y := *d.number(a), *d.number(b)
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	case KindDate:
		return *d.day(a) == *d.day(b)
	default:
		return *d.text(a) == *d.text(b)
	}
}
