package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"npcforge/internal/middleware"
	ws "npcforge/internal/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler attaches a user's dashboard to the credit alert hub.
type WebSocketHandler struct {
	Hub       *ws.Hub
	JWTSecret string
	Log       *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, jwtSecret string, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{Hub: hub, JWTSecret: jwtSecret, Log: log}
}

// ServeWs upgrades the connection. The session token rides in the
// query string because browsers cannot set headers on upgrade requests.
func (h *WebSocketHandler) ServeWs(c *gin.Context) {
	userID, err := middleware.ParseUserID(c.Query("token"), h.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &ws.Client{
		Hub:    h.Hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}

	client.Hub.Register <- client

	go h.writePump(client)
	go h.readPump(client)
}

func (h *WebSocketHandler) writePump(client *ws.Client) {
	defer func() {
		client.Conn.Close()
	}()

	for message := range client.Send {
		if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *WebSocketHandler) readPump(client *ws.Client) {
	defer func() {
		client.Hub.Unregister <- client
		client.Conn.Close()
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Log.Warn("websocket read failed", zap.Error(err))
			}
			break
		}
	}
}
