package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/cache"
	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/order"
)

const defaultListLimit = 50

// OrderHandler обслуживает REST-эндпоинты заказов.
type OrderHandler struct {
	orders *order.Service
	cache  *cache.OrderCache
	logger *log.Entry
}

// NewOrderHandler создаёт handler заказов.
func NewOrderHandler(orders *order.Service, orderCache *cache.OrderCache, logger *log.Entry) *OrderHandler {
	if logger == nil {
		logger = log.WithField("component", "http-orders")
	}
	return &OrderHandler{orders: orders, cache: orderCache, logger: logger}
}

// Register монтирует маршруты заказов.
func (h *OrderHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Get("/status", h.getStatus)
			r.Get("/history", h.history)
			r.Post("/confirm", h.confirm)
			r.Post("/reject", h.reject)
			r.Post("/payment-proof", h.submitPaymentProof)
			r.Post("/verify-payment", h.verifyPayment)
			r.Post("/payment-problem", h.paymentProblem)
			r.Post("/retry-payment", h.retryPayment)
			r.Post("/ship", h.ship)
			r.Post("/deliver", h.deliver)
			r.Post("/close", h.close)
		})
	})
}

type orderItemResponse struct {
	ID             int64 `json:"id"`
	ProductID      int64 `json:"product_id"`
	Qty            int32 `json:"qty"`
	UnitPriceMinor int64 `json:"unit_price_minor"`
	VatRateBp      int32 `json:"vat_rate_bp"`
	LineTotalMinor int64 `json:"line_total_minor"`
	LineVatMinor   int64 `json:"line_vat_minor"`
}

type orderResponse struct {
	ID                  int64               `json:"id"`
	OrderNumber         string              `json:"order_number"`
	SupplierID          int64               `json:"supplier_id"`
	CustomerID          int64               `json:"customer_id"`
	Status              domain.OrderStatus  `json:"status"`
	DeliveryAddress     string              `json:"delivery_address"`
	DesiredDeliveryDate *time.Time          `json:"desired_delivery_date,omitempty"`
	TotalAmountMinor    int64               `json:"total_amount_minor"`
	VatAmountMinor      int64               `json:"vat_amount_minor"`
	Items               []orderItemResponse `json:"items"`
	RejectionReason     string              `json:"rejection_reason,omitempty"`
	PaymentProofKey     string              `json:"payment_proof_key,omitempty"`
	PaymentReference    string              `json:"payment_reference,omitempty"`
	Version             int64               `json:"version"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

func toOrderResponse(ord domain.Order) orderResponse {
	resp := orderResponse{
		ID:               ord.ID,
		OrderNumber:      ord.OrderNumber,
		SupplierID:       ord.SupplierID,
		CustomerID:       ord.CustomerID,
		Status:           ord.Status,
		DeliveryAddress:  ord.DeliveryAddress,
		TotalAmountMinor: ord.TotalAmountMinor,
		VatAmountMinor:   ord.VatAmountMinor,
		RejectionReason:  ord.RejectionReason,
		PaymentProofKey:  ord.PaymentProofKey,
		PaymentReference: ord.PaymentReference,
		Version:          ord.Version,
		CreatedAt:        ord.CreatedAt,
		UpdatedAt:        ord.UpdatedAt,
	}
	if !ord.DesiredDeliveryDate.IsZero() {
		date := ord.DesiredDeliveryDate
		resp.DesiredDeliveryDate = &date
	}
	for _, item := range ord.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			VatRateBp:      item.VatRateBp,
			LineTotalMinor: item.LineTotalMinor(),
			LineVatMinor:   item.LineVatMinor(),
		})
	}
	return resp
}

type createOrderRequest struct {
	SupplierID          int64      `json:"supplier_id"`
	DeliveryAddress     string     `json:"delivery_address"`
	DesiredDeliveryDate *time.Time `json:"desired_delivery_date,omitempty"`
	Items               []struct {
		ProductID      int64 `json:"product_id"`
		Qty            int32 `json:"qty"`
		UnitPriceMinor int64 `json:"unit_price_minor"`
		VatRateBp      int32 `json:"vat_rate_bp"`
	} `json:"items"`
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	input := order.CreateOrderInput{
		SupplierID:      req.SupplierID,
		CustomerID:      ident.CompanyID,
		DeliveryAddress: req.DeliveryAddress,
	}
	if req.DesiredDeliveryDate != nil {
		input.DesiredDeliveryDate = *req.DesiredDeliveryDate
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, order.CreateItemInput{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			VatRateBp:      item.VatRateBp,
		})
	}

	created, err := h.orders.Create(input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cache.Put(r.Context(), created)
	writeJSON(w, http.StatusCreated, toOrderResponse(created))
}

func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(chi.URLParam(r, "orderID"))
	if !ok {
		writeBadRequest(w, "invalid order id")
		return
	}

	ord, err := h.orders.Get(orderID, ident.CompanyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(ord))
}

// getStatus отдаёт облегчённый снапшот заказа, при возможности — из кэша.
func (h *OrderHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(chi.URLParam(r, "orderID"))
	if !ok {
		writeBadRequest(w, "invalid order id")
		return
	}

	if snapshot, err := h.cache.Get(r.Context(), orderID); err == nil {
		writeJSON(w, http.StatusOK, snapshot)
		return
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		h.logger.WithError(err).Warn("order status cache lookup failed")
	}

	ord, err := h.orders.Get(orderID, ident.CompanyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cache.Put(r.Context(), ord)
	writeJSON(w, http.StatusOK, cache.OrderSnapshot{
		OrderID:     ord.ID,
		OrderNumber: ord.OrderNumber,
		Status:      ord.Status,
		TotalMinor:  ord.TotalAmountMinor,
		UpdatedAt:   ord.UpdatedAt,
	})
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	status := domain.OrderStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeBadRequest(w, "unknown order status")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}

	var (
		orders []domain.Order
		err    error
	)
	switch role := r.URL.Query().Get("role"); role {
	case "supplier":
		orders, err = h.orders.ListBySupplier(ident.CompanyID, status, limit)
	case "customer", "":
		orders, err = h.orders.ListByCustomer(ident.CompanyID, status, limit)
	default:
		writeBadRequest(w, "role must be supplier or customer")
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	responses := make([]orderResponse, 0, len(orders))
	for _, ord := range orders {
		responses = append(responses, toOrderResponse(ord))
	}
	writeJSON(w, http.StatusOK, responses)
}

type eventResponse struct {
	Version   int64           `json:"version"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (h *OrderHandler) history(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(chi.URLParam(r, "orderID"))
	if !ok {
		writeBadRequest(w, "invalid order id")
		return
	}

	events, err := h.orders.History(orderID, ident.CompanyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	responses := make([]eventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, eventResponse{
			Version:   event.Version,
			EventType: event.EventType,
			Payload:   json.RawMessage(event.Payload),
			CreatedAt: event.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, responses)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// transition выполняет смену статуса и обновляет кэш снапшотов.
func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, apply func(orderID int64, ident identity) (domain.Order, error)) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(chi.URLParam(r, "orderID"))
	if !ok {
		writeBadRequest(w, "invalid order id")
		return
	}

	ord, err := apply(orderID, ident)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cache.Put(r.Context(), ord)
	writeJSON(w, http.StatusOK, toOrderResponse(ord))
}

func (h *OrderHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(orderID int64, ident identity) (domain.Order, error) {
		return h.orders.Confirm(orderID, ident.CompanyID)
	})
}

func (h *OrderHandler) reject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.Reason == "" {
		writeBadRequest(w, "reason is required")
		return
	}
	h.transition(w, r, func(orderID int64, ident identity) (domain.Order, error) {
		return h.orders.Reject(orderID, ident.CompanyID, req.Reason)
	})
}

type paymentProofRequest struct {
	ProofKey  string `json:"proof_key"`
	Reference string `json:"reference"`
	Notes     string `json:"notes"`
}

func (h *OrderHandler) submitPaymentProof(w http.ResponseWriter, r *http.Request) {
	var req paymentProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.ProofKey == "" {
		writeBadRequest(w, "proof_key is required")
		return
	}
	h.transition(w, r, func(orderID int64, ident identity) (domain.Order, error) {
		return h.orders.SubmitPaymentProof(orderID, ident.CompanyID, order.PaymentProofInput{
			ProofKey:  req.ProofKey,
			Reference: req.Reference,
			Notes:     req.Notes,
		})
	})
}

func (h *OrderHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(orderID int64, ident identity) (domain.Order, error) {
		return h.orders.VerifyPayment(orderID, ident.CompanyID)
	})
}

func (h *OrderHandler) paymentProblem(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.Reason == "" {
		writeBadRequest(w, "reason is required")
		return
	}
	h.transition(w, r, func(orderID int64, ident identity) (domain.Order, error) {
		return h.orders.ReportPaymentProblem(orderID, ident.CompanyID, req.Reason)
	})
}

func (h *OrderHandler) retryPayment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(orderID int64, ident identity) (domain.Order, error) {
		return h.orders.RetryPayment(orderID, ident.CompanyID)
	})
}

func (h *OrderHandler) ship(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(orderID int64, ident identity) (domain.Order, error) {
		return h.orders.MarkShipped(orderID, ident.CompanyID)
	})
}

func (h *OrderHandler) deliver(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(orderID int64, ident identity) (domain.Order, error) {
		return h.orders.MarkDelivered(orderID, ident.CompanyID)
	})
}

func (h *OrderHandler) close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(orderID int64, ident identity) (domain.Order, error) {
		return h.orders.Close(orderID, ident.CompanyID)
	})
}
