package application

import (
	"context"

	"github.com/akash768145s/Smartshake/internal/payment/domain"
)

type Gateway interface {
	CreateOrder(ctx context.Context, req domain.IntentRequest) (domain.Intent, error)
	VerifySignature(intentID, paymentID, signature string) bool
}
