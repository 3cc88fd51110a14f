package ipf

// Well-known values of the TYPE field. The set is open: any non-empty string
// is a valid type.
const (
	TypeCurrency        = "CURRENCY"
	TypeForex           = "FOREX"
	TypeBond            = "BOND"
	TypeIndex           = "INDEX"
	TypeStock           = "STOCK"
	TypeETF             = "ETF"
	TypeMutualFund      = "MUTUAL_FUND"
	TypeMoneyMarketFund = "MONEY_MARKET_FUND"
	TypeProduct         = "PRODUCT"
	TypeFuture          = "FUTURE"
	TypeOption          = "OPTION"
	TypeWarrant         = "WARRANT"
	TypeCFD             = "CFD"
	TypeSpread          = "SPREAD"
	TypeOther           = "OTHER"

	// TypeRemoved marks a profile that no longer exists. Only its symbol is
	// meaningful.
	TypeRemoved = "REMOVED"
)

// IsRemoved reports whether p is a removal marker.
func (p *Profile) IsRemoved() bool {
	return p.typ == TypeRemoved
}
