package ipf

import (
	"cmp"
	"slices"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Profile is the in-memory form of one instrument profile: a value for every
// canonical field plus an open set of custom fields.
//
// Absent canonical values are "" for text, 0 for numbers and day id 0 for
// dates. A Profile is not safe for concurrent mutation.
type Profile struct {
	typ                   string
	symbol                string
	description           string
	localSymbol           string
	localDescription      string
	country               string
	opol                  string
	exchangeData          string
	exchanges             string
	currency              string
	baseCurrency          string
	cfi                   string
	isin                  string
	sedol                 string
	cusip                 string
	icb                   float64
	sic                   float64
	multiplier            float64
	product               string
	underlying            string
	spc                   float64
	additionalUnderlyings string
	mmy                   string
	expiration            int
	lastTrade             int
	strike                float64
	optionType            string
	expirationStyle       string
	settlementStyle       string
	priceIncrements       string
	tradingHours          string

	custom *orderedmap.OrderedMap[string, string]
}

// NewProfile returns an empty profile.
func NewProfile() *Profile {
	return &Profile{}
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	c := *p
	c.custom = nil
	if p.custom != nil {
		for pair := p.custom.Oldest(); pair != nil; pair = pair.Next() {
			c.SetCustomField(pair.Key, pair.Value)
		}
	}
	return &c
}

func (p *Profile) String() string {
	return p.typ + " " + p.symbol
}

// Canonical field accessors. Dates are day ids, see codec.DayID.

func (p *Profile) Type() string { return p.typ }
func (p *Profile) SetType(v string) { p.typ = v }
func (p *Profile) Symbol() string { return p.symbol }
func (p *Profile) SetSymbol(v string) { p.symbol = v }
func (p *Profile) Description() string { return p.description }
func (p *Profile) SetDescription(v string) { p.description = v }
func (p *Profile) LocalSymbol() string { return p.localSymbol }
func (p *Profile) SetLocalSymbol(v string) { p.localSymbol = v }
func (p *Profile) LocalDescription() string { return p.localDescription }
func (p *Profile) SetLocalDescription(v string) { p.localDescription = v }
func (p *Profile) Country() string { return p.country }
func (p *Profile) SetCountry(v string) { p.country = v }
func (p *Profile) OPOL() string { return p.opol }
func (p *Profile) SetOPOL(v string) { p.opol = v }
func (p *Profile) ExchangeData() string { return p.exchangeData }
func (p *Profile) SetExchangeData(v string) { p.exchangeData = v }
func (p *Profile) Exchanges() string { return p.exchanges }
func (p *Profile) SetExchanges(v string) { p.exchanges = v }
func (p *Profile) Currency() string { return p.currency }
func (p *Profile) SetCurrency(v string) { p.currency = v }
func (p *Profile) BaseCurrency() string { return p.baseCurrency }
func (p *Profile) SetBaseCurrency(v string) { p.baseCurrency = v }
func (p *Profile) CFI() string { return p.cfi }
func (p *Profile) SetCFI(v string) { p.cfi = v }
func (p *Profile) ISIN() string { return p.isin }
func (p *Profile) SetISIN(v string) { p.isin = v }
func (p *Profile) SEDOL() string { return p.sedol }
func (p *Profile) SetSEDOL(v string) { p.sedol = v }
func (p *Profile) CUSIP() string { return p.cusip }
func (p *Profile) SetCUSIP(v string) { p.cusip = v }
func (p *Profile) ICB() float64 { return p.icb }
func (p *Profile) SetICB(v float64) { p.icb = v }
func (p *Profile) SIC() float64 { return p.sic }
func (p *Profile) SetSIC(v float64) { p.sic = v }
func (p *Profile) Multiplier() float64 { return p.multiplier }
func (p *Profile) SetMultiplier(v float64) { p.multiplier = v }
func (p *Profile) Product() string { return p.product }
func (p *Profile) SetProduct(v string) { p.product = v }
func (p *Profile) Underlying() string { return p.underlying }
func (p *Profile) SetUnderlying(v string) { p.underlying = v }
func (p *Profile) SPC() float64 { return p.spc }
func (p *Profile) SetSPC(v float64) { p.spc = v }
func (p *Profile) AdditionalUnderlyings() string { return p.additionalUnderlyings }
func (p *Profile) SetAdditionalUnderlyings(v string) { p.additionalUnderlyings = v }
func (p *Profile) MMY() string { return p.mmy }
func (p *Profile) SetMMY(v string) { p.mmy = v }
func (p *Profile) Expiration() int { return p.expiration }
func (p *Profile) SetExpiration(dayID int) { p.expiration = dayID }
func (p *Profile) LastTrade() int { return p.lastTrade }
func (p *Profile) SetLastTrade(dayID int) { p.lastTrade = dayID }
func (p *Profile) Strike() float64 { return p.strike }
func (p *Profile) SetStrike(v float64) { p.strike = v }
func (p *Profile) OptionType() string { return p.optionType }
func (p *Profile) SetOptionType(v string) { p.optionType = v }
func (p *Profile) ExpirationStyle() string { return p.expirationStyle }
func (p *Profile) SetExpirationStyle(v string) { p.expirationStyle = v }
func (p *Profile) SettlementStyle() string { return p.settlementStyle }
func (p *Profile) SetSettlementStyle(v string) { p.settlementStyle = v }
func (p *Profile) PriceIncrements() string { return p.priceIncrements }
func (p *Profile) SetPriceIncrements(v string) { p.priceIncrements = v }
func (p *Profile) TradingHours() string { return p.tradingHours }
func (p *Profile) SetTradingHours(v string) { p.tradingHours = v }

// Field returns the text of the named field: canonical fields in their
// canonical form, custom fields as stored, "" when absent.
func (p *Profile) Field(name string) string {
	if f, ok := FindField(name); ok {
		return f.Get(p)
	}
	return p.CustomField(name)
}

// SetField stores value under name, parsing it when name is a numeric or
// date canonical field.
func (p *Profile) SetField(name, value string) error {
	if f, ok := FindField(name); ok {
		return f.Set(p, value)
	}
	p.SetCustomField(name, value)
	return nil
}

// CustomField returns the value of a custom field, "" when absent.
func (p *Profile) CustomField(name string) string {
	if p.custom == nil {
		return ""
	}
	v, _ := p.custom.Get(name)
	return v
}

// SetCustomField stores a custom field. An empty value removes the field.
// Names of canonical fields are kept apart from the canonical values and
// are never composed.
func (p *Profile) SetCustomField(name, value string) {
	if value == "" {
		if p.custom != nil {
			p.custom.Delete(name)
		}
		return
	}
	if p.custom == nil {
		p.custom = orderedmap.New[string, string]()
	}
	p.custom.Set(name, value)
}

// CustomFieldNames returns the names of the custom fields in the order they
// were first set.
func (p *Profile) CustomFieldNames() []string {
	if p.custom == nil {
		return nil
	}
	names := make([]string, 0, p.custom.Len())
	for pair := p.custom.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// NonEmptyFields returns every non-empty field of p by name, canonical and
// custom, in their canonical text form.
func (p *Profile) NonEmptyFields() map[string]string {
	out := make(map[string]string)
	for _, f := range allFields {
		if !f.IsEmpty(p) {
			out[f.Name()] = f.Get(p)
		}
	}
	p.eachCustomField(func(name, value string) {
		if _, canonical := FindField(name); !canonical {
			out[name] = value
		}
	})
	return out
}

func (p *Profile) eachCustomField(fn func(name, value string)) {
	if p.custom == nil {
		return
	}
	for pair := p.custom.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

func (p *Profile) customLen() int {
	if p.custom == nil {
		return 0
	}
	return p.custom.Len()
}

// Equal reports whether p and o hold the same value in every canonical field
// and the same set of custom fields. Custom field order is ignored.
func (p *Profile) Equal(o *Profile) bool {
	if p == o {
		return true
	}
	if p == nil || o == nil {
		return false
	}
	for _, f := range allFields {
		if !f.equal(p, o) {
			return false
		}
	}
	if p.customLen() != o.customLen() {
		return false
	}
	equal := true
	p.eachCustomField(func(name, value string) {
		if equal && o.CustomField(name) != value {
			equal = false
		}
	})
	return equal
}

// Compare orders profiles for file layout by type, product, underlying, last
// trade day, strike and symbol.
func (p *Profile) Compare(o *Profile) int {
	if c := strings.Compare(p.typ, o.typ); c != 0 {
		return c
	}
	if c := strings.Compare(p.product, o.product); c != 0 {
		return c
	}
	if c := strings.Compare(p.underlying, o.underlying); c != 0 {
		return c
	}
	if c := cmp.Compare(p.lastTrade, o.lastTrade); c != 0 {
		return c
	}
	if c := cmp.Compare(p.strike, o.strike); c != 0 {
		return c
	}
	return strings.Compare(p.symbol, o.symbol)
}

// SortProfiles sorts profiles in place by Compare, keeping the input order of
// profiles that compare equal.
func SortProfiles(profiles []*Profile) {
	slices.SortStableFunc(profiles, func(a, b *Profile) int {
		return a.Compare(b)
	})
}
