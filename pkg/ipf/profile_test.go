package ipf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStock(symbol string) *Profile {
	p := NewProfile()
	p.SetType(TypeStock)
	p.SetSymbol(symbol)
	return p
}

func TestNewProfile_Empty(t *testing.T) {
	p := NewProfile()
	for _, f := range Fields() {
		assert.True(t, f.IsEmpty(p), f.Name())
		assert.Equal(t, "", p.Field(f.Name()))
	}
	assert.Empty(t, p.CustomFieldNames())
	assert.Empty(t, p.NonEmptyFields())
}

func TestProfile_FieldByName(t *testing.T) {
	p := newStock("IBM")
	p.SetMultiplier(100)
	p.SetLastTrade(19741)

	assert.Equal(t, "STOCK", p.Field("TYPE"))
	assert.Equal(t, "IBM", p.Field("SYMBOL"))
	assert.Equal(t, "100", p.Field("MULTIPLIER"))
	assert.Equal(t, "2024-01-19", p.Field("LAST_TRADE"))

	require.NoError(t, p.SetField("STRIKE", "12.25"))
	assert.Equal(t, 12.25, p.Strike())

	require.NoError(t, p.SetField("MY_FIELD", "foo"))
	assert.Equal(t, "foo", p.Field("MY_FIELD"))
	assert.Equal(t, "foo", p.CustomField("MY_FIELD"))

	assert.Error(t, p.SetField("STRIKE", "twelve"))
	assert.Equal(t, 12.25, p.Strike())
}

func TestProfile_CustomFields(t *testing.T) {
	p := NewProfile()
	p.SetCustomField("B", "2")
	p.SetCustomField("A", "1")
	p.SetCustomField("C", "3")
	assert.Equal(t, []string{"B", "A", "C"}, p.CustomFieldNames())

	p.SetCustomField("A", "one")
	assert.Equal(t, []string{"B", "A", "C"}, p.CustomFieldNames(), "update keeps position")
	assert.Equal(t, "one", p.CustomField("A"))

	p.SetCustomField("B", "")
	assert.Equal(t, []string{"A", "C"}, p.CustomFieldNames())
	assert.Equal(t, "", p.CustomField("B"))

	assert.Equal(t, "", NewProfile().CustomField("missing"))
}

func TestProfile_NonEmptyFields(t *testing.T) {
	p := newStock("IBM")
	p.SetCFI("ESXXXX")
	p.SetStrike(150)
	p.SetCustomField("MY_FIELD", "foo")
	p.SetCustomField("SYMBOL", "shadow")

	assert.Equal(t, map[string]string{
		"TYPE":     "STOCK",
		"SYMBOL":   "IBM",
		"CFI":      "ESXXXX",
		"STRIKE":   "150",
		"MY_FIELD": "foo",
	}, p.NonEmptyFields())
}

func TestProfile_Clone(t *testing.T) {
	p := newStock("IBM")
	p.SetStrike(1.5)
	p.SetCustomField("X", "1")

	c := p.Clone()
	assert.True(t, p.Equal(c))

	c.SetSymbol("AAPL")
	c.SetCustomField("X", "2")
	c.SetCustomField("Y", "3")

	assert.Equal(t, "IBM", p.Symbol())
	assert.Equal(t, "1", p.CustomField("X"))
	assert.Equal(t, "", p.CustomField("Y"))
	assert.False(t, p.Equal(c))

	assert.True(t, NewProfile().Clone().Equal(NewProfile()))
}

func TestProfile_Equal(t *testing.T) {
	a := newStock("IBM")
	b := newStock("IBM")
	assert.True(t, a.Equal(b))

	b.SetDescription("x")
	assert.False(t, a.Equal(b))
	b.SetDescription("")

	a.SetCustomField("A", "1")
	a.SetCustomField("B", "2")
	b.SetCustomField("B", "2")
	b.SetCustomField("A", "1")
	assert.True(t, a.Equal(b), "custom order is ignored")

	b.SetCustomField("C", "3")
	assert.False(t, a.Equal(b))

	a.SetStrike(math.NaN())
	b.SetStrike(math.NaN())
	b.SetCustomField("C", "")
	assert.True(t, a.Equal(b))

	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(nil))
}

func TestProfile_String(t *testing.T) {
	assert.Equal(t, "STOCK IBM", newStock("IBM").String())
}

func TestSortProfiles(t *testing.T) {
	opt := func(symbol string, lastTrade int, strike float64) *Profile {
		p := NewProfile()
		p.SetType(TypeOption)
		p.SetSymbol(symbol)
		p.SetProduct("IBM")
		p.SetUnderlying("IBM")
		p.SetLastTrade(lastTrade)
		p.SetStrike(strike)
		return p
	}

	profiles := []*Profile{
		newStock("MSFT"),
		opt(".IBM2", 200, 150),
		opt(".IBM1", 100, 160),
		newStock("AAPL"),
		opt(".IBM3", 100, 150),
	}
	SortProfiles(profiles)

	var got []string
	for _, p := range profiles {
		got = append(got, p.Symbol())
	}
	assert.Equal(t, []string{".IBM3", ".IBM1", ".IBM2", "AAPL", "MSFT"}, got)
}

func TestProfile_IsRemoved(t *testing.T) {
	p := NewProfile()
	p.SetType(TypeRemoved)
	assert.True(t, p.IsRemoved())
	assert.False(t, newStock("IBM").IsRemoved())
}
