package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/akash768145s/Smartshake/internal/payment/application"
	"github.com/akash768145s/Smartshake/internal/payment/domain"
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
		tracer:  otel.Tracer("payment-http"),
	}
}

type createIntentReq struct {
	Amount   decimal.Decimal   `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

type verifyResp struct {
	Verified  bool   `json:"verified"`
	OrderID   string `json:"order_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/create-order", h.createIntent)
	r.Post("/verify", h.verify)
	return r
}

func (h *Handler) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreatePaymentIntent")
	defer span.End()

	var req createIntentReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	intent, err := h.service.CreateIntent(ctx, req.Amount, req.Currency, req.Receipt, req.Notes)
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		httpx.WriteError(w, http.StatusBadRequest, "Invalid amount")
	case errors.Is(err, domain.ErrGatewayUnavailable):
		httpx.WriteError(w, http.StatusBadGateway, "Failed to create payment order, please try again")
	case err != nil:
		h.log.Error("create intent failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to create payment order")
	default:
		httpx.WriteJSON(w, http.StatusOK, intent)
	}
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "VerifyPayment")
	defer span.End()

	var req domain.Verification
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Missing payment verification data")
		return
	}

	err := h.service.Verify(ctx, req)
	switch {
	case errors.Is(err, domain.ErrMissingVerification):
		httpx.WriteError(w, http.StatusBadRequest, "Missing payment verification data")
	case errors.Is(err, domain.ErrSignatureMismatch):
		httpx.WriteJSON(w, http.StatusBadRequest, verifyResp{Verified: false, Error: "Invalid payment signature"})
	case err != nil:
		h.log.Error("verify payment failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Failed to verify payment")
	default:
		httpx.WriteJSON(w, http.StatusOK, verifyResp{Verified: true, OrderID: req.IntentID, PaymentID: req.PaymentID})
	}
}
