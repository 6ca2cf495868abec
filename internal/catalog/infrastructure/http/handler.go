package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/akash768145s/Smartshake/internal/catalog/application"
	"github.com/akash768145s/Smartshake/internal/catalog/domain"
	"github.com/akash768145s/Smartshake/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("catalog-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.listFlavours)
	r.Get("/{id}", h.getFlavour)
	return r
}

func (h *Handler) listFlavours(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListFlavours")
	defer span.End()

	flavours, err := h.service.List(ctx)
	if err != nil {
		h.log.Error("list flavours failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to fetch flavours")
		return
	}
	if flavours == nil {
		flavours = []domain.Flavour{}
	}
	httpx.WriteJSON(w, http.StatusOK, flavours)
}

func (h *Handler) getFlavour(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetFlavour")
	defer span.End()

	f, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Flavour not found")
	case err != nil:
		h.log.Error("get flavour failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to fetch flavour")
	default:
		httpx.WriteJSON(w, http.StatusOK, f)
	}
}
