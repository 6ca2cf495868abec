package application

import (
	"context"

	"github.com/akash768145s/Smartshake/internal/catalog/domain"
)

type FlavourRepository interface {
	List(ctx context.Context) ([]domain.Flavour, error)
	Get(ctx context.Context, id string) (domain.Flavour, error)
}
