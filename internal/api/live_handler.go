package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/alexivanou/citysearch/internal/model"
	"github.com/alexivanou/citysearch/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Live socket message types
const (
	MessageText      = "text"
	MessageSelect    = "select"
	MessageClear     = "clear"
	MessageToggle    = "toggle"
	EventState       = "state"
	EventFavorites   = "favorites"
	EventError       = "error"
	errUnknownType   = "unknown message type"
	errInvalidFormat = "invalid message"
)

// LiveHandler serves GET /api/v1/live. Every connection gets its own
// LiveSearch and a favorites subscription; both push events to the client.
type LiveHandler struct {
	service  service.ServiceInterface
	upgrader websocket.Upgrader
	metrics  *Metrics
	logger   *zap.Logger
}

// NewLiveHandler creates a live search handler. metrics may be nil.
func NewLiveHandler(svc service.ServiceInterface, metrics *Metrics, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Serve upgrades the request and runs the connection until either side closes it
func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn("Failed to upgrade live connection", zap.Error(err))
		return
	}

	if h.metrics != nil {
		h.metrics.liveConnections.Inc()
		defer h.metrics.liveConnections.Dec()
	}

	c := &liveConn{
		id:      uuid.NewString(),
		ws:      ws,
		service: h.service,
		live:    h.service.NewLiveSearch(),
		out:     make(chan model.LiveEvent, sendBuffer),
		done:    make(chan struct{}),
		logger:  h.logger,
	}
	c.logger = c.logger.With(zap.String("conn", c.id))
	c.run(r.Context())
}

type liveConn struct {
	id      string
	ws      *websocket.Conn
	service service.ServiceInterface
	live    *service.LiveSearch
	out     chan model.LiveEvent
	done    chan struct{}
	logger  *zap.Logger

	closeOnce sync.Once
}

func (c *liveConn) run(ctx context.Context) {
	c.logger.Debug("Live connection opened")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	c.live.Subscribe(c.id, func(state model.QueryState) {
		c.send(model.LiveEvent{Type: EventState, State: &state})
	})
	if err := c.service.SubscribeFavorites(ctx, c.id, func(cities []model.City) {
		c.send(model.LiveEvent{Type: EventFavorites, Cities: cities})
	}); err != nil {
		c.logger.Error("Failed to subscribe to favorites", zap.Error(err))
		c.send(model.LiveEvent{Type: EventError, Error: "favorites unavailable"})
	}

	c.readPump(ctx)

	// Listeners may be blocked in send; release them before Close waits on them.
	close(c.done)
	c.live.Close()
	c.service.UnsubscribeFavorites(c.id)
	wg.Wait()
	c.closeConn()

	c.logger.Debug("Live connection closed")
}

func (c *liveConn) readPump(ctx context.Context) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Live connection read failed", zap.Error(err))
			}
			return
		}

		var msg model.LiveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(model.LiveEvent{Type: EventError, Error: errInvalidFormat})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *liveConn) handle(ctx context.Context, msg model.LiveMessage) {
	switch msg.Type {
	case MessageText:
		c.live.OnTextChanged(msg.Text)
	case MessageClear:
		c.live.Clear()
	case MessageSelect:
		city, err := c.service.GetCityByID(ctx, msg.ID)
		if err != nil {
			c.send(model.LiveEvent{Type: EventError, Error: err.Error()})
			return
		}
		c.live.SelectCity(*city)
	case MessageToggle:
		// The new favorites list arrives through the subscription
		if _, err := c.service.ToggleFavorite(ctx, msg.ID); err != nil {
			c.logger.Warn("Failed to toggle favorite", zap.Int("city_id", msg.ID), zap.Error(err))
			c.send(model.LiveEvent{Type: EventError, Error: err.Error()})
		}
	default:
		c.send(model.LiveEvent{Type: EventError, Error: errUnknownType})
	}
}

// send queues ev for the writer. A client that cannot keep up is disconnected
// rather than allowed to stall the publishers.
func (c *liveConn) send(ev model.LiveEvent) {
	select {
	case c.out <- ev:
	case <-c.done:
	default:
		c.logger.Warn("Live client too slow, closing connection")
		c.closeConn()
	}
}

func (c *liveConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.logger.Debug("Live write failed", zap.Error(err))
				c.closeConn()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeConn()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *liveConn) closeConn() {
	c.closeOnce.Do(func() {
		c.ws.Close()
	})
}
