package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/cart"
)

// CartHandler обслуживает корзину покупателя и checkout.
type CartHandler struct {
	cart   *cart.Service
	logger *log.Entry
}

// NewCartHandler создаёт handler корзины.
func NewCartHandler(cartSvc *cart.Service, logger *log.Entry) *CartHandler {
	if logger == nil {
		logger = log.WithField("component", "http-cart")
	}
	return &CartHandler{cart: cartSvc, logger: logger}
}

// Register монтирует маршруты корзины.
func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.clear)
		r.Post("/items", h.addItem)
		r.Put("/items/{productID}", h.updateItem)
		r.Delete("/items/{productID}", h.removeItem)
		r.Post("/checkout", h.checkout)
	})
}

type cartItemResponse struct {
	ProductID      int64     `json:"product_id"`
	SupplierID     int64     `json:"supplier_id"`
	Qty            int32     `json:"qty"`
	UnitPriceMinor int64     `json:"unit_price_minor"`
	VatRateBp      int32     `json:"vat_rate_bp"`
	AddedAt        time.Time `json:"added_at"`
}

type cartResponse struct {
	CustomerID int64              `json:"customer_id"`
	Items      []cartItemResponse `json:"items"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func toCartResponse(c domain.Cart) cartResponse {
	resp := cartResponse{
		CustomerID: c.CustomerID,
		Items:      make([]cartItemResponse, 0, len(c.Items)),
		UpdatedAt:  c.UpdatedAt,
	}
	for _, item := range c.Items {
		resp.Items = append(resp.Items, cartItemResponse{
			ProductID:      item.ProductID,
			SupplierID:     item.SupplierID,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			VatRateBp:      item.VatRateBp,
			AddedAt:        item.AddedAt,
		})
	}
	return resp
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	current, err := h.cart.Get(ident.CompanyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(current))
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.cart.Clear(ident.CompanyID); err != nil && !domain.IsNotFound(err) {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addCartItemRequest struct {
	ProductID      int64 `json:"product_id"`
	SupplierID     int64 `json:"supplier_id"`
	Qty            int32 `json:"qty"`
	UnitPriceMinor int64 `json:"unit_price_minor"`
	VatRateBp      int32 `json:"vat_rate_bp"`
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.ProductID <= 0 || req.SupplierID <= 0 {
		writeBadRequest(w, "product_id and supplier_id are required")
		return
	}

	updated, err := h.cart.AddItem(ident.CompanyID, domain.CartItem{
		ProductID:      req.ProductID,
		SupplierID:     req.SupplierID,
		Qty:            req.Qty,
		UnitPriceMinor: req.UnitPriceMinor,
		VatRateBp:      req.VatRateBp,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(updated))
}

type updateCartItemRequest struct {
	SupplierID int64 `json:"supplier_id"`
	Qty        int32 `json:"qty"`
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	productID, ok := pathID(chi.URLParam(r, "productID"))
	if !ok {
		writeBadRequest(w, "invalid product id")
		return
	}

	var req updateCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.SupplierID <= 0 {
		writeBadRequest(w, "supplier_id is required")
		return
	}

	updated, err := h.cart.UpdateItem(ident.CompanyID, productID, req.SupplierID, req.Qty)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(updated))
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	productID, ok := pathID(chi.URLParam(r, "productID"))
	if !ok {
		writeBadRequest(w, "invalid product id")
		return
	}
	supplierID, ok := pathID(r.URL.Query().Get("supplier_id"))
	if !ok {
		writeBadRequest(w, "supplier_id query parameter is required")
		return
	}

	updated, err := h.cart.RemoveItem(ident.CompanyID, productID, supplierID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(updated))
}

type checkoutRequest struct {
	DeliveryAddress     string     `json:"delivery_address"`
	DesiredDeliveryDate *time.Time `json:"desired_delivery_date,omitempty"`
}

func (h *CartHandler) checkout(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.DeliveryAddress == "" {
		writeBadRequest(w, "delivery_address is required")
		return
	}

	input := cart.CheckoutInput{DeliveryAddress: req.DeliveryAddress}
	if req.DesiredDeliveryDate != nil {
		input.DesiredDeliveryDate = *req.DesiredDeliveryDate
	}

	orders, err := h.cart.Checkout(ident.CompanyID, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	responses := make([]orderResponse, 0, len(orders))
	for _, ord := range orders {
		responses = append(responses, toOrderResponse(ord))
	}
	writeJSON(w, http.StatusCreated, responses)
}
