package metrics

import (
	"github.com/shopspring/decimal"
)

// Variance classifies how much a product's weekly usage moved across the four weeks.
type Variance string

const (
	VarianceNormal   Variance = "normal"
	VarianceModerate Variance = "moderate"
	VarianceHigh     Variance = "high"
)

var (
	highVarianceSpread     = decimal.NewFromInt(3)
	moderateVarianceSpread = decimal.NewFromInt(1)
)

// CsPer1k is cases used per $1000 of sales: average divided by the conversion factor.
// Null when either side is null or the conversion is not positive.
func CsPer1k(average, conversion decimal.NullDecimal) decimal.NullDecimal {
	if !average.Valid || !conversion.Valid || !conversion.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(average.Decimal.Div(conversion.Decimal))
}

// VolumeMultiplier projects csPer1k onto a sales volume expressed in thousands.
func VolumeMultiplier(csPer1k decimal.NullDecimal, multiplier decimal.Decimal) decimal.NullDecimal {
	if !csPer1k.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(csPer1k.Decimal.Mul(multiplier))
}

// Spread returns max - min over the non-null values, zero when fewer than two are present.
func Spread(values ...decimal.NullDecimal) decimal.Decimal {
	var lo, hi decimal.Decimal
	seen := false
	for _, v := range values {
		if !v.Valid {
			continue
		}
		if !seen {
			lo, hi = v.Decimal, v.Decimal
			seen = true
			continue
		}
		lo = decimal.Min(lo, v.Decimal)
		hi = decimal.Max(hi, v.Decimal)
	}
	if !seen {
		return decimal.Zero
	}
	return hi.Sub(lo)
}

// ClassifyVariance flags a spread above 3 as high and above 1 as moderate.
// Both thresholds are exclusive.
func ClassifyVariance(values ...decimal.NullDecimal) Variance {
	spread := Spread(values...)
	switch {
	case spread.GreaterThan(highVarianceSpread):
		return VarianceHigh
	case spread.GreaterThan(moderateVarianceSpread):
		return VarianceModerate
	default:
		return VarianceNormal
	}
}

// AverageDrifted reports whether a stored average no longer matches the mean of its weeks.
func AverageDrifted(stored decimal.NullDecimal, weeks ...decimal.NullDecimal) bool {
	computed := Mean(weeks...)
	if stored.Valid != computed.Valid {
		return true
	}
	if !stored.Valid {
		return false
	}
	return !stored.Decimal.Round(StorageScale).Equal(computed.Decimal)
}
