package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// Event is one message pushed to a user's live channel.
type Event struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Hub fans events out to a user's open websocket connections. Delivery is
// best-effort: no connections means no-op, and a failed write just drops
// that connection.
type Hub struct {
	logger *logrus.Logger

	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Subscribe upgrades the request and holds the connection open on the
// given user's channel until the client goes away.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	h.add(userID, conn)
	defer h.remove(userID, conn)

	// Hold until the peer closes; we never expect inbound payloads.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			conn.Close(websocket.StatusNormalClosure, "closed")
			return nil
		}
	}
}

// ItemAdded tells the user a new bank item finished linking.
func (h *Hub) ItemAdded(ctx context.Context, userID string) error {
	h.publish(ctx, userID, Event{
		Event:   "item-added",
		Message: "A new bank item has been added. Please refresh your UI.",
	})
	return nil
}

func (h *Hub) publish(ctx context.Context, userID string, event Event) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns[userID]))
	for conn := range h.conns[userID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := wsjson.Write(writeCtx, conn, event)
		cancel()
		if err != nil {
			h.logger.Warnf("drop live connection for user %s: %v", userID, err)
			h.remove(userID, conn)
			conn.Close(websocket.StatusNormalClosure, "write_failed")
		}
	}
}

func (h *Hub) add(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
}

func (h *Hub) remove(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[userID], conn)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}
