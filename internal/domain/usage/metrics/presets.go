package metrics

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Preset is a sales volume, in thousands of dollars, that the usage table can project onto.
type Preset struct {
	Label       string `json:"label"`
	Value       int64  `json:"value"`
	SalesVolume string `json:"salesVolume"`
}

var presetValues = []int64{5, 10, 12, 40, 70}

// DefaultMultiplier is the projection the operator tools use when none is given.
const DefaultMultiplier int64 = 12

// Presets lists the supported multipliers in ascending order.
func Presets() []Preset {
	out := make([]Preset, 0, len(presetValues))
	for _, v := range presetValues {
		out = append(out, Preset{
			Label:       fmt.Sprintf("%dk", v),
			Value:       v,
			SalesVolume: money.New(v*1000*100, money.USD).Display(),
		})
	}
	return out
}

// ParseMultiplier validates a multiplier against the presets.
func ParseMultiplier(v int64) (decimal.Decimal, error) {
	for _, p := range presetValues {
		if p == v {
			return decimal.NewFromInt(v), nil
		}
	}
	return decimal.Zero, fmt.Errorf("unsupported multiplier %d: must be one of %v", v, presetValues)
}
