package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/order-reconciler/internal/coupon"
	"github.com/ariefcatur/order-reconciler/internal/dispatch"
	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/ariefcatur/order-reconciler/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// OrderService is what the HTTP boundary needs from the order state machine.
type OrderService interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (*orders.Order, error)
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	GetStatus(ctx context.Context, id string) (orders.Status, error)
	GetPayment(ctx context.Context, orderID string) (payment.Payment, error)
	CancelOrder(ctx context.Context, id, actor string) (orders.Status, error)
	AdvanceFulfillment(ctx context.Context, id string, next orders.Status) (orders.Status, error)
	GetCouponStats(ctx context.Context, couponID string) (coupon.Stats, error)
}

// IdempotencyCache is the fast path for repeated creates. The external id
// unique constraint stays the source of truth.
type IdempotencyCache interface {
	Lookup(ctx context.Context, key string) (string, bool)
	Remember(ctx context.Context, key, orderID string)
}

type OrdersHandler struct {
	Orders    OrderService
	Idem      IdempotencyCache
	Publisher dispatch.Publisher
	Service   string
	Log       zerolog.Logger
}

type CreateOrderResp struct {
	Order      *orders.Order `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type StatusResp struct {
	OrderID string        `json:"order_id"`
	Status  orders.Status `json:"status"`
}

type CancelReq struct {
	Actor string `json:"actor"`
}

type FulfillmentReq struct {
	Status orders.Status `json:"status"`
}

// PaymentCallbackReq is the gateway-neutral callback body. Gateway specific
// formats are translated into it upstream.
type PaymentCallbackReq struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	TransactionRef string `json:"transaction_ref"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Get("/orders/{id}/payment", h.getPayment)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/fulfillment", h.advanceFulfillment)
	r.Get("/coupons/{id}/stats", h.couponStats)
	r.Post("/payments/callback", h.paymentCallback)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(orders.ErrValidation, "invalid json")
	}
	return nil
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		if req.ExternalID == "" {
			req.ExternalID = key
		}
		if h.Idem != nil {
			if id, ok := h.Idem.Lookup(ctx, key); ok {
				if o, err := h.Orders.GetOrder(ctx, id); err == nil {
					writeJSON(w, http.StatusOK, CreateOrderResp{Order: o, Idempotent: true})
					return
				}
			}
		}
	}

	o, err := h.Orders.CreateOrder(ctx, req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if key != "" && h.Idem != nil {
		h.Idem.Remember(ctx, key, o.ID)
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{Order: o})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.Orders.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResp{OrderID: id, Status: st})
}

func (h *OrdersHandler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Orders.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelReq
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, h.Log, err)
			return
		}
	}
	if req.Actor == "" {
		req.Actor = "customer"
	}
	id := chi.URLParam(r, "id")
	st, err := h.Orders.CancelOrder(r.Context(), id, req.Actor)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResp{OrderID: id, Status: st})
}

func (h *OrdersHandler) advanceFulfillment(w http.ResponseWriter, r *http.Request) {
	var req FulfillmentReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if !req.Status.Valid() {
		writeError(w, h.Log, errors.Wrapf(orders.ErrValidation, "unknown status %q", req.Status))
		return
	}
	id := chi.URLParam(r, "id")
	st, err := h.Orders.AdvanceFulfillment(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResp{OrderID: id, Status: st})
}

func (h *OrdersHandler) couponStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Orders.GetCouponStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// paymentCallback turns a gateway result into an internal event. The
// gateway gets 202 only once the event is durable, so a failed publish
// makes it retry.
func (h *OrdersHandler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var req PaymentCallbackReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	var succeeded bool
	switch strings.ToUpper(req.Status) {
	case "SUCCESS", "SUCCEEDED", "PAID":
		succeeded = true
	case "FAILED", "FAILURE", "DECLINED":
	default:
		writeError(w, h.Log, errors.Wrapf(orders.ErrValidation, "unknown payment status %q", req.Status))
		return
	}

	env, err := orders.NewPaymentResultEnvelope(h.Service, middleware.GetReqID(r.Context()), orders.PaymentResultPayload{
		OrderID:        req.OrderID,
		Succeeded:      succeeded,
		TransactionRef: req.TransactionRef,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.Publisher.Publish(ctx, env); err != nil {
		h.Log.Error().Err(err).Str("order_id", req.OrderID).Msg("publish payment result")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "event not accepted, retry", Code: "UNAVAILABLE"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": env.EventID})
}
