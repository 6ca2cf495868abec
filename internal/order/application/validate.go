package application

import (
	"fmt"
	"strings"

	"github.com/akash768145s/Smartshake/internal/order/domain"
	"github.com/akash768145s/Smartshake/internal/pricing"
)

func validate(req CreateRequest) error {
	if req.Base == "" {
		return &domain.ValidationError{Field: "base", Reason: "required"}
	}
	if !req.Base.Valid() {
		return &domain.ValidationError{Field: "base", Reason: "must be milk or water"}
	}
	if req.QuantityMl <= 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must be > 0"}
	}
	if req.TotalPrice <= 0 {
		return &domain.ValidationError{Field: "total_price", Reason: "must be > 0"}
	}
	scoops := 0
	for id, n := range req.Flavours {
		if strings.TrimSpace(id) == "" {
			return &domain.ValidationError{Field: "flavours", Reason: "flavour name must not be blank"}
		}
		if n < 0 || n > pricing.MaxScoopsPerFlavour {
			return &domain.ValidationError{Field: "flavours", Reason: fmt.Sprintf("%s: scoops must be between 0 and %d", id, pricing.MaxScoopsPerFlavour)}
		}
		scoops += n
	}
	if scoops == 0 {
		return &domain.ValidationError{Field: "flavours", Reason: "must have at least one flavour"}
	}
	return nil
}
