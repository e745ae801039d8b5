package live

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/GideonNut/moviemeter/pkg/models"
)

// Hub fans reconciled tally snapshots out to connected UI clients. Pushes
// are fire-and-forget: a slow or dead client is dropped, never waited on.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// TallyEvent is the wire shape pushed after each reconciled vote.
type TallyEvent struct {
	Type       string `json:"type"`
	MediaID    string `json:"media_id"`
	ContractID int64  `json:"contract_id"`
	Yes        int64  `json:"yes"`
	No         int64  `json:"no"`
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) Add(ws *websocket.Conn) {
	h.mu.Lock()
	h.clients[ws] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastTally pushes a fresh ledger snapshot for one media item.
func (h *Hub) BroadcastTally(mediaID string, contractID int64, tally models.Tally) {
	h.broadcastJSON(TallyEvent{
		Type:       "tally",
		MediaID:    mediaID,
		ContractID: contractID,
		Yes:        tally.Yes,
		No:         tally.No,
	})
}

func (h *Hub) broadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.clients, ws)
		}
	}
}
