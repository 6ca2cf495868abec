package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/akash768145s/Smartshake/internal/order/application"
	"github.com/akash768145s/Smartshake/internal/order/domain"
	paymentdomain "github.com/akash768145s/Smartshake/internal/payment/domain"
	"github.com/akash768145s/Smartshake/pkg/httpx"
	"github.com/akash768145s/Smartshake/pkg/tracing"
)

const IdempotencyKeyHeader = "Idempotency-Key"

const defaultStatsDays = 7

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type createOrderReq struct {
	Base           domain.Base                 `json:"base"`
	Quantity       int                         `json:"quantity"`
	TotalPrice     int64                       `json:"total_price"`
	Flavours       map[string]int              `json:"flavours"`
	MachineID      string                      `json:"machineId"`
	MachineName    string                      `json:"machineName"`
	IdempotencyKey string                      `json:"idempotencyKey"`
	Payment        *paymentdomain.Verification `json:"payment"`
}

type updateStatusReq struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Routes serves /orders.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{id}", h.getOrder)
	r.Patch("/{id}/status", h.updateStatus)
	return r
}

// SalesRoutes serves /sales.
func (h *Handler) SalesRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.sales)
	r.Get("/stats", h.salesStats)
	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(IdempotencyKeyHeader)
	}

	res, err := h.service.CreateOrder(ctx, application.CreateRequest{
		Base:           req.Base,
		QuantityMl:     req.Quantity,
		TotalPrice:     req.TotalPrice,
		Flavours:       req.Flavours,
		MachineID:      req.MachineID,
		MachineName:    req.MachineName,
		IdempotencyKey: req.IdempotencyKey,
		Payment:        req.Payment,
	}, tracing.Traceparent(ctx))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		h.writeErr(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, res.OrderWithItems)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	o, err := h.service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	q := r.URL.Query()
	f := domain.ListFilter{MachineID: q.Get("machineId")}
	if raw := q.Get("status"); raw != "" {
		st, ok := domain.ParseStatus(raw)
		if !ok {
			httpx.WriteError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		f.Statuses = []domain.OrderStatus{st}
	}

	orders, err := h.service.ListOrders(ctx, f)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderStatus")
	defer span.End()

	var req updateStatusReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	st, ok := domain.ParseStatus(req.Status)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	o, err := h.service.Advance(ctx, chi.URLParam(r, "id"), st, req.Reason, tracing.Traceparent(ctx))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) sales(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListSales")
	defer span.End()

	q := r.URL.Query()
	var since, until time.Time
	if raw := q.Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "Invalid days")
			return
		}
		since = time.Now().UTC().AddDate(0, 0, -days)
	} else {
		var ok bool
		if since, ok = parseDate(q.Get("startDate"), false); !ok {
			httpx.WriteError(w, http.StatusBadRequest, "Invalid startDate")
			return
		}
		if until, ok = parseDate(q.Get("endDate"), true); !ok {
			httpx.WriteError(w, http.StatusBadRequest, "Invalid endDate")
			return
		}
		if !since.IsZero() && !until.IsZero() && until.Before(since) {
			httpx.WriteError(w, http.StatusBadRequest, "endDate is before startDate")
			return
		}
	}

	sales, err := h.service.Sales(ctx, q.Get("machineId"), since, until)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sales)
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day. An empty value is an open bound.
func parseDate(raw string, endOfDay bool) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return d, true
}

func (h *Handler) salesStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SalesStats")
	defer span.End()

	days := defaultStatsDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "Invalid days")
			return
		}
		days = n
	}

	stats, err := h.service.SalesStats(ctx, days)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Missing or invalid field: %s (%s)", verr.Field, verr.Reason))
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, domain.ErrInvalidStatus):
		httpx.WriteError(w, http.StatusBadRequest, "Invalid status")
	case errors.Is(err, domain.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStaleStatus):
		httpx.WriteError(w, http.StatusConflict, "Order status changed, retry")
	case errors.Is(err, domain.ErrPaymentReused):
		httpx.WriteError(w, http.StatusConflict, "Payment already used for another order")
	case errors.Is(err, paymentdomain.ErrMissingVerification):
		httpx.WriteError(w, http.StatusBadRequest, "Missing payment verification data")
	case errors.Is(err, paymentdomain.ErrSignatureMismatch):
		httpx.WriteError(w, http.StatusBadRequest, "Invalid payment signature")
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		httpx.WriteError(w, http.StatusBadGateway, "Payment gateway unavailable, please try again")
	default:
		h.log.Error("order request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
