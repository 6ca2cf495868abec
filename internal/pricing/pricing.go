// Package pricing computes shake prices. Everything here is pure so the kiosk
// can requote on every slider tick.
package pricing

// Base is the liquid a shake is blended with. The zero value means unset.
type Base string

const (
	BaseMilk  Base = "milk"
	BaseWater Base = "water"
)

func (b Base) Valid() bool { return b == BaseMilk || b == BaseWater }

const (
	PricePerScoop       int64 = 99
	MilkSurchargePer200 int64 = 15
	MlPerUnit                 = 5
	MaxVolumeUnits            = 50
	MaxScoopsPerFlavour       = 5
)

// Quote prices a shake of volumeUnits slider units (5ml each).
func Quote(scoops, volumeUnits int, base Base) int64 {
	return QuoteMl(scoops, volumeUnits*MlPerUnit, base)
}

// QuoteMl is Quote for a volume already expressed in millilitres.
// Milk costs round(ml/200*15), rounded half up.
func QuoteMl(scoops, volumeMl int, base Base) int64 {
	total := int64(max(scoops, 0)) * PricePerScoop
	if base == BaseMilk && volumeMl > 0 {
		total += (int64(volumeMl)*MilkSurchargePer200 + 100) / 200
	}
	return total
}

// TotalScoops sums a flavour -> scoops map, ignoring non-positive counts.
func TotalScoops(flavours map[string]int) int {
	n := 0
	for _, s := range flavours {
		if s > 0 {
			n += s
		}
	}
	return n
}
