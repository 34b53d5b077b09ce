package ws

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/KAsare1/telecare-server/cmd/utils"
)

type SignalHandler struct {
	hub        *Hub
	upgrader   websocket.Upgrader
	secret     string
	sendBuffer int
	logger     zerolog.Logger
}

// NewSignalHandler serves the signaling websocket. With a non-empty
// secret the handshake must carry a token and clients may only register
// as the token's subject.
func NewSignalHandler(hub *Hub, secret string, origins []string, sendBuffer int, logger zerolog.Logger) *SignalHandler {
	return &SignalHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		secret:     secret,
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

func (h *SignalHandler) RegisterRoutes(router *mux.Router) {
	router.Handle("/ws", utils.PartyMiddleware(h.secret)(http.HandlerFunc(h.HandleWebSocket)))
}

func (h *SignalHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	authParty, _ := utils.GetPartyIDFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, authParty, h.sendBuffer)
	h.logger.Debug().Str("client_id", client.ID).Str("auth_party", authParty).Msg("websocket connected")

	go client.WritePump()
	go client.ReadPump()
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
