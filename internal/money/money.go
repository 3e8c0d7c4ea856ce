package money

import "github.com/shopspring/decimal"

// DefaultTolerance is the absolute reconciliation tolerance in the settlement
// currency's minor unit.
var DefaultTolerance = decimal.RequireFromString("0.01")

// Amount is an immutable monetary value with its currency code.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

func New(v decimal.Decimal, currency string) Amount {
	return Amount{Value: v, Currency: currency}
}

func FromString(v, currency string) (Amount, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d, Currency: currency}, nil
}

func (a Amount) IsPositive() bool {
	return a.Value.IsPositive()
}

// WithinTolerance reports whether other matches this amount up to an absolute
// tolerance. Currencies must be identical; no FX conversion happens here.
func (a Amount) WithinTolerance(other Amount, tolerance decimal.Decimal) bool {
	if a.Currency != other.Currency {
		return false
	}
	return a.Value.Sub(other.Value).Abs().LessThanOrEqual(tolerance)
}

func (a Amount) String() string {
	return a.Value.String() + " " + a.Currency
}
