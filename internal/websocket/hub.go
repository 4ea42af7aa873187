package websocket

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string
}

// CreditAlert tells a user's open dashboard that a verified purchase
// credited their token balance.
type CreditAlert struct {
	TargetUserID string  `json:"-"`
	OrderID      string  `json:"order_id"`
	Tokens       float64 `json:"tokens"`
	Balance      float64 `json:"balance"`
}

type Hub struct {
	Clients        map[string]*Client
	Register       chan *Client
	Unregister     chan *Client
	BroadcastAlert chan CreditAlert
	log            *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		Clients:        make(map[string]*Client),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		BroadcastAlert: make(chan CreditAlert),
		log:            log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Clients[client.UserID] = client
			h.log.Info("websocket client registered", zap.String("user", client.UserID))

		case client := <-h.Unregister:
			if _, ok := h.Clients[client.UserID]; ok {
				delete(h.Clients, client.UserID)
				close(client.Send)
				h.log.Info("websocket client unregistered", zap.String("user", client.UserID))
			}

		case alert := <-h.BroadcastAlert:
			if client, ok := h.Clients[alert.TargetUserID]; ok {
				jsonData, err := json.Marshal(alert)
				if err != nil {
					h.log.Error("failed to marshal credit alert", zap.Error(err))
					continue
				}

				select {
				case client.Send <- jsonData:
					h.log.Info("sent credit alert", zap.String("user", client.UserID))
				default:
					close(client.Send)
					delete(h.Clients, client.UserID)
				}
			}
		}
	}
}
