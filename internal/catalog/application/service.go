package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/akash768145s/Smartshake/internal/catalog/domain"
)

// Service serves the flavour catalog and resolves flavour references for
// order line items from an in-memory index loaded at startup.
type Service struct {
	log  *slog.Logger
	repo FlavourRepository

	mu     sync.RWMutex
	byID   map[string]domain.Flavour
	byName map[string]string
}

func NewService(log *slog.Logger, repo FlavourRepository) *Service {
	return &Service{
		log:    log,
		repo:   repo,
		byID:   map[string]domain.Flavour{},
		byName: map[string]string{},
	}
}

// Load replaces the lookup index with the current store contents.
func (s *Service) Load(ctx context.Context) error {
	flavours, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]domain.Flavour, len(flavours))
	byName := make(map[string]string, len(flavours))
	for _, f := range flavours {
		byID[f.ID] = f
		byName[strings.ToLower(f.Name)] = f.ID
	}

	s.mu.Lock()
	s.byID, s.byName = byID, byName
	s.mu.Unlock()

	s.log.Info("catalog loaded", "flavours", len(flavours))
	return nil
}

func (s *Service) List(ctx context.Context) ([]domain.Flavour, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Flavour, error) {
	return s.repo.Get(ctx, id)
}

// Lookup resolves ref by id, then by case-insensitive name, then by a direct
// store read. It never fails: an unknown ref or a store error yields a
// fallback resolution so that an order is not blocked by catalog problems.
func (s *Service) Lookup(ctx context.Context, ref string) domain.Resolution {
	if f, ok := s.cached(ref); ok {
		return found(ref, f)
	}

	f, err := s.repo.Get(ctx, ref)
	if err == nil {
		s.remember(f)
		return found(ref, f)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.log.Error("catalog lookup failed", "ref", ref, "err", err)
	}

	res := domain.Fallback(ref)
	s.log.Warn("catalog fallback used", "ref", ref, "flavour_id", res.FlavourID, "price_per_scoop", res.PricePerScoop)
	return res
}

func (s *Service) cached(ref string) (domain.Flavour, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.byID[ref]; ok {
		return f, true
	}
	if id, ok := s.byName[strings.ToLower(strings.TrimSpace(ref))]; ok {
		f, ok := s.byID[id]
		return f, ok
	}
	return domain.Flavour{}, false
}

func (s *Service) remember(f domain.Flavour) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[f.ID] = f
	s.byName[strings.ToLower(f.Name)] = f.ID
}

func found(ref string, f domain.Flavour) domain.Resolution {
	return domain.Resolution{Ref: ref, FlavourID: f.ID, Name: f.Name, PricePerScoop: priceOf(f), Outcome: domain.Found}
}

func priceOf(f domain.Flavour) int64 {
	if f.PricePerScoop <= 0 {
		return domain.DefaultPricePerScoop
	}
	return f.PricePerScoop
}
