package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/inventory"
)

// InventoryHandler обслуживает администрирование склада поставщика.
// Резервы мутируются только сагой через Kafka, HTTP-слоем — никогда.
type InventoryHandler struct {
	inventory *inventory.Service
	logger    *log.Entry
}

// NewInventoryHandler создаёт handler склада.
func NewInventoryHandler(inventorySvc *inventory.Service, logger *log.Entry) *InventoryHandler {
	if logger == nil {
		logger = log.WithField("component", "http-inventory")
	}
	return &InventoryHandler{inventory: inventorySvc, logger: logger}
}

// Register монтирует маршруты склада.
func (h *InventoryHandler) Register(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/low-stock", h.lowStock)
		r.Get("/out-of-stock", h.outOfStock)
		r.Route("/{productID}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.upsert)
			r.Post("/add-stock", h.addStock)
		})
	})
}

type inventoryResponse struct {
	ProductID       int64     `json:"product_id"`
	SupplierID      int64     `json:"supplier_id"`
	Available       int32     `json:"available"`
	Reserved        int32     `json:"reserved"`
	ActualAvailable int32     `json:"actual_available"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toInventoryResponse(record domain.InventoryRecord) inventoryResponse {
	return inventoryResponse{
		ProductID:       record.ProductID,
		SupplierID:      record.SupplierID,
		Available:       record.Available,
		Reserved:        record.Reserved,
		ActualAvailable: record.ActualAvailable(),
		UpdatedAt:       record.UpdatedAt,
	}
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	productID, ok := pathID(chi.URLParam(r, "productID"))
	if !ok {
		writeBadRequest(w, "invalid product id")
		return
	}

	record, err := h.inventory.Get(productID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(record))
}

type upsertInventoryRequest struct {
	Available int32 `json:"available"`
	Reserved  int32 `json:"reserved"`
}

func (h *InventoryHandler) upsert(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	productID, ok := pathID(chi.URLParam(r, "productID"))
	if !ok {
		writeBadRequest(w, "invalid product id")
		return
	}

	var req upsertInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	record := domain.InventoryRecord{
		ProductID:  productID,
		SupplierID: ident.CompanyID,
		Available:  req.Available,
		Reserved:   req.Reserved,
	}
	if err := h.inventory.Upsert(record); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(record))
}

type addStockRequest struct {
	Qty int32 `json:"qty"`
}

func (h *InventoryHandler) addStock(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	productID, ok := pathID(chi.URLParam(r, "productID"))
	if !ok {
		writeBadRequest(w, "invalid product id")
		return
	}

	var req addStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	if err := h.inventory.AddStock(productID, req.Qty); err != nil {
		writeError(w, h.logger, err)
		return
	}

	record, err := h.inventory.Get(productID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(record))
}

func (h *InventoryHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	records, err := h.inventory.LowStock()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeRecords(w, records)
}

func (h *InventoryHandler) outOfStock(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	records, err := h.inventory.OutOfStock()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeRecords(w, records)
}

func (h *InventoryHandler) writeRecords(w http.ResponseWriter, records []domain.InventoryRecord) {
	responses := make([]inventoryResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, toInventoryResponse(record))
	}
	writeJSON(w, http.StatusOK, responses)
}
