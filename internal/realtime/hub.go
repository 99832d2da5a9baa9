package realtime

import (
	"strings"
	"sync"

	"github.com/livedesk/backend/internal/platform/logger"
)

// Hub is the process-scoped room registry and broadcast dispatcher.
// Membership is in-memory only and lost on restart; reconnecting clients
// must re-join explicitly.
type Hub struct {
	mu     sync.RWMutex
	log    *logger.Logger
	rooms  map[string]map[*Client]bool
	joined map[*Client]map[string]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:    log.With("component", "Hub"),
		rooms:  make(map[string]map[*Client]bool),
		joined: make(map[*Client]map[string]bool),
	}
}

// Join is idempotent: adding an already-joined client is a no-op.
func (h *Hub) Join(roomID string, client *Client) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	members, exists := h.rooms[roomID]
	if !exists {
		members = make(map[*Client]bool)
		h.rooms[roomID] = members
	}
	members[client] = true

	rooms, exists := h.joined[client]
	if !exists {
		rooms = make(map[string]bool)
		h.joined[client] = rooms
	}
	rooms[roomID] = true

	h.log.Debug("Client joined room", "clientID", client.ID, "room", roomID)
}

// Leave is idempotent: removing an absent client is a no-op.
func (h *Hub) Leave(roomID string, client *Client) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, client)
	h.log.Debug("Client left room", "clientID", client.ID, "room", roomID)
}

func (h *Hub) leaveLocked(roomID string, client *Client) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if rooms, ok := h.joined[client]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.joined, client)
		}
	}
}

// Members returns a snapshot of the room. Membership can change before the
// caller finishes delivering; callers must tolerate that staleness.
func (h *Hub) Members(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

func (h *Hub) InRoom(roomID string, client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[roomID]
	return ok && members[client]
}

// DropClient removes the client from every room it belongs to. Called
// unconditionally on disconnect.
func (h *Hub) DropClient(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.joined[client] {
		if members, ok := h.rooms[roomID]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	delete(h.joined, client)
	h.log.Debug("Client dropped from all rooms", "clientID", client.ID)
}

// ClearRoom removes every member from the room without closing their
// connections. Used when a conversation ends.
func (h *Hub) ClearRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[roomID] {
		h.leaveLocked(roomID, client)
	}
}

// Broadcast delivers the envelope to every client currently in the room.
// Delivery to a client that disconnected since the snapshot is a silent
// no-op; there is no acknowledgment and no retry.
func (h *Hub) Broadcast(roomID string, env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for c := range members {
		c.Send(env)
	}
}
