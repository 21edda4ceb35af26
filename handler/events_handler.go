package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	eventBufferLen = 64
)

// EventsHandler streams lifecycle and session events over a websocket.
type EventsHandler struct {
	bus      *service.EventBus
	verifier TokenVerifier
	upgrader websocket.Upgrader
}

// NewEventsHandler accepts connections from the given origins. An empty
// list allows any origin.
func NewEventsHandler(bus *service.EventBus, verifier TokenVerifier, allowedOrigins []string) *EventsHandler {
	return &EventsHandler{
		bus:      bus,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Stream godoc
// @Summary      Subscribe to payment and session events
// @Description  Browsers cannot set headers on a websocket handshake, so the access token may also be passed as ?token=.
// @Tags         events
// @Param        token  query  string  false  "Access token"
// @Success      101
// @Failure      401  {object}  common.AppError
// @Router       /ws [get]
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); token == "" && strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		token = auth[len("bearer "):]
	}
	claims, err := h.verifier.VerifyAccessToken(token)
	if err != nil {
		FromServiceError(service.ErrInvalidToken, "").Send(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	events, unsubscribe := h.bus.Subscribe(eventBufferLen)
	log := logger.Log.WithFields(logrus.Fields{
		"account_key": claims.AccountKey,
		"remote":      r.RemoteAddr,
	})
	log.Info("Event stream opened")

	done := make(chan struct{})
	go h.readPump(conn, done, log)
	h.writePump(conn, events, done, log)

	unsubscribe()
	conn.Close()
	log.Info("Event stream closed")
}

// readPump only drains control frames; the stream is one-way.
func (h *EventsHandler) readPump(conn *websocket.Conn, done chan<- struct{}, log *logrus.Entry) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("Websocket read failed")
			}
			return
		}
	}
}

func (h *EventsHandler) writePump(conn *websocket.Conn, events <-chan service.Event, done <-chan struct{}, log *logrus.Entry) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				log.WithError(err).Error("Failed to marshal event")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
