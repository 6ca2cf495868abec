package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/akash768145s/Smartshake/internal/catalog/domain"
)

type Repository struct {
	mu sync.RWMutex
	m  map[string]domain.Flavour
}

func NewRepository(flavours ...domain.Flavour) *Repository {
	r := &Repository{m: make(map[string]domain.Flavour, len(flavours))}
	now := time.Now().UTC()
	for _, f := range flavours {
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		r.m[f.ID] = f
	}
	return r
}

func (r *Repository) List(ctx context.Context) ([]domain.Flavour, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Flavour, 0, len(r.m))
	for _, f := range r.m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Flavour, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.m[id]
	if !ok {
		return domain.Flavour{}, domain.ErrNotFound
	}
	return f, nil
}
