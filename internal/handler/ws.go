package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/wager-server-go/internal/metrics"
	"github.com/openclaw/wager-server-go/internal/sse"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 2 * sse.HeartbeatInterval
	wsReadLimit = 512
)

// WebSocketHandler streams the same events as EventsHandler over a
// websocket, one JSON {type, data} frame per event. Client frames other
// than control frames are ignored.
type WebSocketHandler struct {
	broker   *sse.Broker
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(broker *sse.Broker, m *metrics.Metrics, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		broker:  broker,
		metrics: m,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker allows same-origin requests, plus any origin in allowed.
// A "*" entry allows every origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	player, ok := requireCaller(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("playerId", player.ID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := h.broker.Subscribe(player.ID)
	defer h.broker.Unsubscribe(client)

	if h.metrics != nil {
		h.metrics.ActiveStreams.Inc()
		defer h.metrics.ActiveStreams.Dec()
	}

	log.Info().Str("playerId", player.ID).Msg("websocket connection established")

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ping := time.NewTicker(sse.HeartbeatInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			log.Info().Str("playerId", player.ID).Msg("websocket connection closed by client")
			return

		case <-client.Done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return

		case event := <-client.Events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Debug().Err(err).Str("playerId", player.ID).Msg("websocket write failed")
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				log.Debug().Err(err).Str("playerId", player.ID).Msg("websocket ping failed")
				return
			}
		}
	}
}

// readPump drains client frames so control frames are processed, and closes
// done when the connection fails.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
