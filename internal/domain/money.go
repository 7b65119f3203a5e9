package domain

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits stored for prices, costs and credit.
const MoneyScale = 10

// MaxTopUp bounds a single credit top-up.
var MaxTopUp = decimal.New(1, 9)

// ValidTopUp reports whether amount is a positive value no larger than MaxTopUp
// that fits MoneyScale exactly.
func ValidTopUp(amount decimal.Decimal) bool {
	if !amount.IsPositive() || amount.GreaterThan(MaxTopUp) {
		return false
	}
	return amount.Equal(amount.Truncate(MoneyScale))
}
