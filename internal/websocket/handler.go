package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs handles websocket requests from the peer.
func ServeWs(hub *Hub, c *websocket.Conn, ownerID string) {
	client := NewClient(hub, c, ownerID)
	if !hub.Register(client) {
		_ = c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
