package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/internal/pkg/serverutils"
	internalWS "ai-restaurant-search-be/internal/websocket"
)

// StreamHandler upgrades authenticated clients to the search gateway.
type StreamHandler struct {
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewStreamHandler(hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *StreamHandler {
	return &StreamHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (h *StreamHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/ws", h.ServeWs)
}

// ServeWs handles websocket requests from the peer.
func (h *StreamHandler) ServeWs(c *fiber.Ctx) error {
	// Query param first (browsers cannot set headers on upgrade)
	tokenStr := c.Query("token")
	if tokenStr == "" {
		if authHeader := c.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr = authHeader[len("Bearer "):]
		}
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
	}

	ownerID, err := serverutils.ParseToken(h.jwtSecret, tokenStr)
	if err != nil {
		h.logger.Warn("StreamHandler", "Invalid token in websocket handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("StreamHandler", "Starting websocket session", map[string]interface{}{"owner_id": ownerID})
		internalWS.ServeWs(h.hub, conn, ownerID)
		h.logger.Info("StreamHandler", "Websocket session ended", map[string]interface{}{"owner_id": ownerID})
	})(c)
}
