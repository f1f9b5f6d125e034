package hub

import (
	"net/http"
	"strings"

	"github.com/ageniuscoder/relaychat/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow CORS for demo; tighten in prod.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RegisterWS mounts GET /ws for authenticated clients.
// Auth works via:
// 1) Header: Authorization: Bearer <JWT>
// 2) Query:  ?token=<JWT>
// An optional ?device=<label> tags the connection for logs.
func RegisterWS(rg *gin.RouterGroup, h *Hub, jwtSecret string) {
	rg.GET("/ws", func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			hdr := c.GetHeader("Authorization")
			if strings.HasPrefix(hdr, "Bearer ") {
				token = strings.TrimPrefix(hdr, "Bearer ")
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		cl, err := auth.ParseToken(jwtSecret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		client := &Client{
			ID:     uuid.NewString(),
			UserID: cl.UserId,
			Device: c.Query("device"),
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, h.queueSize),
		}
		h.post(cmdRegister{c: client})

		go client.writePump()
		go client.readPump()
	})
}
