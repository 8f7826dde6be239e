package handler

import (
	"context"
	"net/http"
	"strings"

	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/microfin/ledger-backend/internal/websocket"
	"github.com/rs/zerolog/log"
)

// bearerSubprotocol lets browsers send the token in Sec-WebSocket-Protocol
// as "bearer, <token>" instead of the query string
const bearerSubprotocol = "bearer"

// JWTValidator validates JWT tokens and returns the event channel of the caller
type JWTValidator interface {
	ValidateToken(ctx context.Context, token string) (channel int32, err error)
}

// WebSocketHandler serves the ledger event feed
type WebSocketHandler struct {
	hub            *websocket.Hub
	validator      JWTValidator
	allowedOrigins map[string]bool
	upgrader       ws.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *websocket.Hub, validator JWTValidator, allowedOrigins []string) *WebSocketHandler {
	originMap := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originMap[origin] = true
	}

	h := &WebSocketHandler{
		hub:            hub,
		validator:      validator,
		allowedOrigins: originMap,
	}

	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the request origin against allowed origins
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients send no Origin
		return true
	}

	if h.allowedOrigins[origin] {
		return true
	}

	log.Warn().
		Str("origin", origin).
		Msg("WebSocket connection rejected: origin not allowed")
	return false
}

// feedToken returns the caller's token and whether it arrived as a subprotocol
func feedToken(r *http.Request) (string, bool) {
	if token := r.URL.Query().Get("token"); token != "" {
		return token, false
	}
	protocols := ws.Subprotocols(r)
	if len(protocols) == 2 && strings.EqualFold(protocols[0], bearerSubprotocol) && protocols[1] != "" {
		return protocols[1], true
	}
	return "", false
}

// HandleWS godoc
// @Summary Subscribe to ledger events
// @Description Upgrades to a WebSocket. Admins receive every event, agents only events about their own borrowers.
// @Tags realtime
// @Security BearerAuth
// @Success 101 "Switching Protocols"
// @Failure 401 {object} ProblemDetails
// @Router /ws [get]
func (h *WebSocketHandler) HandleWS(c echo.Context) error {
	token, viaSubprotocol := feedToken(c.Request())
	if token == "" {
		log.Debug().Msg("WebSocket connection rejected: missing token")
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}

	channel, err := h.validator.ValidateToken(c.Request().Context(), token)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket connection rejected: invalid token")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	var responseHeader http.Header
	if viaSubprotocol {
		responseHeader = http.Header{"Sec-Websocket-Protocol": {bearerSubprotocol}}
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), responseHeader)
	if err != nil {
		log.Error().Err(err).Int32("channel", channel).Msg("WebSocket upgrade failed")
		return err
	}

	client := websocket.NewClient(conn, channel, h.hub)
	h.hub.Register(client)

	if err := client.SendEvent(websocket.ConnectionReady(client.ID(), channel, websocket.SubscribableEntities())); err != nil {
		log.Warn().Err(err).Str("client_id", client.ID()).Msg("Failed to queue ready frame")
	}

	log.Info().
		Int32("channel", channel).
		Bool("admin", channel == websocket.AdminChannel).
		Str("client_id", client.ID()).
		Msg("WebSocket client connected")

	go client.WritePump()
	go client.ReadPump()

	return nil
}
