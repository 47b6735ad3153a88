package domain

import "github.com/shopspring/decimal"

// MinorUnitsPerRupee: количество пайс в рупии
const MinorUnitsPerRupee = 100

var minorUnits = decimal.NewFromInt(MinorUnitsPerRupee)

// ToMinorUnits переводит сумму в пайсы с округлением до целого
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnits).Round(0).IntPart()
}

// FromMinorUnits переводит сумму из пайс в рупии
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// WithinTolerance сообщает, что суммы отличаются не больше чем на tolerance
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
