package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/akash768145s/Smartshake/internal/pricing"
)

var ErrNotFound = errors.New("flavour not found")

// DefaultPricePerScoop is charged when a flavour is missing from the catalog.
const DefaultPricePerScoop = pricing.PricePerScoop

type Flavour struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Icon          string    `json:"icon"`
	PricePerScoop int64     `json:"price_per_scoop"`
	Available     bool      `json:"available"`
	CreatedAt     time.Time `json:"created_at"`
}

type Outcome int

const (
	Found Outcome = iota
	FallbackUsed
)

func (o Outcome) String() string {
	if o == FallbackUsed {
		return "fallback"
	}
	return "found"
}

// Resolution is the result of looking up a flavour reference. FallbackUsed
// means the id was synthesized and the default price applied.
type Resolution struct {
	Ref           string
	FlavourID     string
	Name          string
	PricePerScoop int64
	Outcome       Outcome
}

func Fallback(ref string) Resolution {
	return Resolution{
		Ref:           ref,
		FlavourID:     SlugFromName(ref),
		Name:          ref,
		PricePerScoop: DefaultPricePerScoop,
		Outcome:       FallbackUsed,
	}
}

// SlugFromName derives a stable id from a display name: "Cookies & Cream" -> "cookies-&-cream".
func SlugFromName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// Defaults is the catalog installed on an empty store.
func Defaults() []Flavour {
	names := []struct{ name, icon string }{
		{"Chocolate", "🍫"},
		{"Vanilla", "🍦"},
		{"Strawberry", "🍓"},
		{"Banana", "🍌"},
		{"Coffee", "☕"},
	}
	out := make([]Flavour, 0, len(names))
	for _, n := range names {
		out = append(out, Flavour{
			ID:            SlugFromName(n.name),
			Name:          n.name,
			Icon:          n.icon,
			PricePerScoop: DefaultPricePerScoop,
			Available:     true,
		})
	}
	return out
}
