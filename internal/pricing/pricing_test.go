package pricing

import "testing"

func TestQuote(t *testing.T) {
	tests := []struct {
		name   string
		scoops int
		units  int
		base   Base
		want   int64
	}{
		{"milk 200ml", 3, 40, BaseMilk, 312},
		{"water is free", 3, 40, BaseWater, 297},
		{"unset base", 2, 40, "", 198},
		{"zero scoops is base cost only", 0, 40, BaseMilk, 15},
		{"zero volume", 1, 0, BaseMilk, 99},
		{"max volume milk", 1, 50, BaseMilk, 99 + 19},
		{"below half rounds down", 0, 1, BaseMilk, 0},
		{"half rounds up", 0, 4, BaseMilk, 2},
		{"5ml steps", 0, 14, BaseMilk, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quote(tt.scoops, tt.units, tt.base); got != tt.want {
				t.Errorf("Quote(%d, %d, %q) = %d, want %d", tt.scoops, tt.units, tt.base, got, tt.want)
			}
		})
	}
}

func TestQuoteMlMatchesUnits(t *testing.T) {
	for units := 0; units <= MaxVolumeUnits; units++ {
		if a, b := Quote(2, units, BaseMilk), QuoteMl(2, units*MlPerUnit, BaseMilk); a != b {
			t.Fatalf("units %d: Quote=%d QuoteMl=%d", units, a, b)
		}
	}
}

func TestTotalScoops(t *testing.T) {
	got := TotalScoops(map[string]int{"chocolate": 2, "vanilla": 1, "banana": 0, "coffee": -1})
	if got != 3 {
		t.Errorf("TotalScoops = %d, want 3", got)
	}
}
