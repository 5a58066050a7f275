package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/chat"
)

// ChatHandler обслуживает чтение чат-каналов заказов.
// Каналы создаёт и закрывает сага, HTTP-слой их только читает.
type ChatHandler struct {
	chat   *chat.Service
	logger *log.Entry
}

// NewChatHandler создаёт handler чат-каналов.
func NewChatHandler(chatSvc *chat.Service, logger *log.Entry) *ChatHandler {
	if logger == nil {
		logger = log.WithField("component", "http-chat")
	}
	return &ChatHandler{chat: chatSvc, logger: logger}
}

// Register монтирует маршруты чатов.
func (h *ChatHandler) Register(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Get("/channels", h.listActive)
		r.Get("/orders/{orderID}", h.getByOrder)
	})
}

type channelResponse struct {
	ID             int64     `json:"id"`
	OrderID        int64     `json:"order_id"`
	SupplierUserID int64     `json:"supplier_user_id"`
	CustomerUserID int64     `json:"customer_user_id"`
	Name           string    `json:"name"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

func toChannelResponse(channel domain.ChatChannel) channelResponse {
	return channelResponse{
		ID:             channel.ID,
		OrderID:        channel.OrderID,
		SupplierUserID: channel.SupplierUserID,
		CustomerUserID: channel.CustomerUserID,
		Name:           channel.Name,
		Active:         channel.Active,
		CreatedAt:      channel.CreatedAt,
	}
}

func (h *ChatHandler) getByOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(chi.URLParam(r, "orderID"))
	if !ok {
		writeBadRequest(w, "invalid order id")
		return
	}

	channel, err := h.chat.GetByOrder(orderID, ident.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelResponse(channel))
}

func (h *ChatHandler) listActive(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	channels, err := h.chat.ListActive(ident.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	responses := make([]channelResponse, 0, len(channels))
	for _, channel := range channels {
		responses = append(responses, toChannelResponse(channel))
	}
	writeJSON(w, http.StatusOK, responses)
}
