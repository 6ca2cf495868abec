// Package kiosk holds the machine-side checkout flow: the shake being built
// on screen, the checkout attempt that pays for it, and the API client that
// talks to kiosk-api.
package kiosk

import (
	"errors"
	"maps"

	"github.com/akash768145s/Smartshake/internal/pricing"
)

var (
	ErrNoFlavours  = errors.New("pick at least one flavour")
	ErrNoBase      = errors.New("pick milk or water")
	ErrNoVolume    = errors.New("pick a quantity")
	ErrInvalidBase = errors.New("base must be milk or water")
)

// Draft is the shake being assembled. TotalPrice always equals the quote for
// the current selection; every mutator reprices.
type Draft struct {
	FlavourScoops map[string]int
	Base          pricing.Base
	VolumeUnits   int
	TotalPrice    int64
}

func NewDraft() *Draft {
	return &Draft{FlavourScoops: map[string]int{}}
}

// SetScoops sets the scoops of one flavour, clamped to 0..5. Zero removes it.
func (d *Draft) SetScoops(flavourID string, n int) {
	n = clamp(n, 0, pricing.MaxScoopsPerFlavour)
	if n == 0 {
		delete(d.FlavourScoops, flavourID)
	} else {
		d.FlavourScoops[flavourID] = n
	}
	d.reprice()
}

// SetFlavours replaces the whole selection.
func (d *Draft) SetFlavours(scoops map[string]int) {
	d.FlavourScoops = map[string]int{}
	for id, n := range scoops {
		if n = clamp(n, 0, pricing.MaxScoopsPerFlavour); n > 0 {
			d.FlavourScoops[id] = n
		}
	}
	d.reprice()
}

func (d *Draft) SetBase(b pricing.Base) error {
	if !b.Valid() {
		return ErrInvalidBase
	}
	d.Base = b
	d.reprice()
	return nil
}

// SetVolumeUnits sets the quantity slider, clamped to 0..50 (0-250ml).
func (d *Draft) SetVolumeUnits(units int) {
	d.VolumeUnits = clamp(units, 0, pricing.MaxVolumeUnits)
	d.reprice()
}

func (d *Draft) Reset() {
	*d = Draft{FlavourScoops: map[string]int{}}
}

func (d *Draft) Scoops() int { return pricing.TotalScoops(d.FlavourScoops) }

func (d *Draft) VolumeMl() int { return d.VolumeUnits * pricing.MlPerUnit }

// Flavours returns a copy of the selection.
func (d *Draft) Flavours() map[string]int { return maps.Clone(d.FlavourScoops) }

// CheckoutReady reports the first thing still missing before payment.
func (d *Draft) CheckoutReady() error {
	switch {
	case d.Scoops() == 0:
		return ErrNoFlavours
	case d.Base == "":
		return ErrNoBase
	case d.VolumeUnits == 0:
		return ErrNoVolume
	}
	return nil
}

func (d *Draft) reprice() {
	d.TotalPrice = pricing.Quote(d.Scoops(), d.VolumeUnits, d.Base)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
