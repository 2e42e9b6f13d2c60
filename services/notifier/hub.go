package notifsvc

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/chantio/chantio/core"
)

// Hub fans events out to the websocket connections of their recipients.
// A user may hold several connections (one per device); each one gets a copy.
// Events addressed to users without a connection are dropped.
type Hub struct {
	logger core.Logger

	register   chan *client
	unregister chan *client
	events     chan core.Event
	done       chan struct{}

	// clients is owned by the Run goroutine; no lock needed.
	clients map[string]map[*client]bool // userID -> connections
}

var _ core.Notifier = (*Hub)(nil)

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		events:     make(chan core.Event, 64),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*client]bool),
	}
}

// Run owns the client registry. It returns when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case cl := <-h.register:
			conns, ok := h.clients[cl.userID]
			if !ok {
				conns = make(map[*client]bool)
				h.clients[cl.userID] = conns
			}
			conns[cl] = true

		case cl := <-h.unregister:
			if conns, ok := h.clients[cl.userID]; ok {
				if conns[cl] {
					delete(conns, cl)
					close(cl.send)
					if len(conns) == 0 {
						delete(h.clients, cl.userID)
					}
				}
			}

		case evt := <-h.events:
			h.broadcast(evt)

		case <-h.done:
			for _, conns := range h.clients {
				for cl := range conns {
					close(cl.send)
				}
			}
			h.clients = make(map[string]map[*client]bool)
			return
		}
	}
}

// Stop disconnects all clients and terminates Run.
func (h *Hub) Stop() {
	close(h.done)
}

// Notify queues the event for delivery. It never blocks: if the hub's queue
// is full the event is dropped and logged.
func (h *Hub) Notify(evt core.Event) {
	select {
	case h.events <- evt:
	case <-h.done:
	default:
		h.logger.Warn("notifier: event queue full, dropping event", map[string]interface{}{"type": evt.Type})
	}
}

func (h *Hub) broadcast(evt core.Event) {
	frame, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("notifier: marshalling event", errors.Wrap(err, evt.Type))
		return
	}
	for _, userID := range evt.Recipients {
		for cl := range h.clients[userID] {
			select {
			case cl.send <- frame:
			default:
				// slow consumer; drop the connection
				delete(h.clients[userID], cl)
				close(cl.send)
				if len(h.clients[userID]) == 0 {
					delete(h.clients, userID)
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and attaches the connection to the hub.
// The caller must have authenticated userID already.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}
	cl := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 16),
	}
	select {
	case h.register <- cl:
	case <-h.done:
		_ = conn.Close()
		return errors.New("hub stopped")
	}

	go cl.writePump()
	go cl.readPump()
	return nil
}
