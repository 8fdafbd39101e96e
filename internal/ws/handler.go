// Package ws streams diary and forecast events to browsers over WebSocket.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/HerbHall/sleepcast/internal/diary"
	"github.com/HerbHall/sleepcast/internal/event"
)

// Handler serves GET /api/v1/ws/forecast.
type Handler struct {
	hub     *Hub
	origins []string
	logger  *zap.Logger
	unsubs  []func()
}

// NewHandler creates a handler and subscribes it to diary events on bus.
// originPatterns are passed to the websocket upgrader; with none, only
// same-origin connections are accepted.
func NewHandler(bus event.Subscriber, logger *zap.Logger, originPatterns ...string) *Handler {
	h := &Handler{
		hub:     NewHub(logger),
		origins: originPatterns,
		logger:  logger,
	}
	if bus != nil {
		h.subscribe(bus)
	}
	return h
}

// RegisterRoutes registers the websocket route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/forecast", h.handleForecastStream)
}

// Hub returns the handler's hub.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// Close unsubscribes from the bus.
func (h *Handler) Close() {
	for _, u := range h.unsubs {
		u()
	}
	h.unsubs = nil
}

func (h *Handler) handleForecastStream(w http.ResponseWriter, r *http.Request) {
	// The server's read deadline would otherwise close idle viewers.
	if err := http.NewResponseController(w).SetReadDeadline(time.Time{}); err != nil {
		h.logger.Debug("clearing read deadline", zap.Error(err))
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan Message, sendBuffer),
		logger: h.logger,
	}
	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

func (h *Handler) subscribe(bus event.Subscriber) {
	h.unsubs = append(h.unsubs,
		bus.Subscribe(event.TopicForecastRefreshed, func(_ context.Context, ev event.Event) {
			snap, ok := ev.Payload.(*diary.Snapshot)
			if !ok {
				return
			}
			h.hub.Broadcast(Message{
				Type:      MessageForecastRefreshed,
				ID:        snap.ID,
				Timestamp: ev.Timestamp,
				Data: ForecastRefreshedData{
					Rows:        snap.Rows,
					DayLength:   snap.DayLength,
					SleepAnchor: snap.SleepAnchor,
					WakeAnchor:  snap.WakeAnchor,
				},
			})
		}),
		bus.Subscribe(event.TopicForecastRejected, func(_ context.Context, ev event.Event) {
			rej, ok := ev.Payload.(diary.RejectedEvent)
			if !ok {
				return
			}
			h.hub.Broadcast(Message{
				Type:      MessageForecastRejected,
				Timestamp: ev.Timestamp,
				Data:      ForecastRejectedData{Reason: rej.Reason},
			})
		}),
		bus.Subscribe(event.TopicPeriodRecorded, func(_ context.Context, ev event.Event) {
			pe, ok := ev.Payload.(diary.PeriodEvent)
			if !ok {
				return
			}
			msg := Message{
				Type:      MessagePeriodRecorded,
				Timestamp: ev.Timestamp,
				Data: PeriodRecordedData{
					Kind:     pe.Kind,
					Period:   pe.Period,
					Imported: pe.Imported,
					Live:     pe.Live,
				},
			}
			if pe.Period != nil {
				msg.ID = pe.Period.ID
			}
			h.hub.Broadcast(msg)
		}),
		bus.Subscribe(event.TopicPeriodDeleted, func(_ context.Context, ev event.Event) {
			pe, ok := ev.Payload.(diary.PeriodEvent)
			if !ok || pe.Period == nil {
				return
			}
			h.hub.Broadcast(Message{
				Type:      MessagePeriodDeleted,
				ID:        pe.Period.ID,
				Timestamp: ev.Timestamp,
			})
		}),
	)
	h.logger.Debug("subscribed to diary events for websocket broadcasting")
}
