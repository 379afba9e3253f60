package roomserver

import (
	"sync"

	"github.com/interviewly/voicekit/internal/wire"
)

type room struct {
	id string

	mu      sync.RWMutex
	clients map[string]*client
}

func (r *room) add(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.clientID] = c
}

func (r *room) remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
}

func (r *room) empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients) == 0
}

func (r *room) broadcast(env *wire.Envelope) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		c.sendEnvelope(env)
	}
}

func (r *room) broadcastExcept(clientID string, env *wire.Envelope) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.clients {
		if id != clientID {
			c.sendEnvelope(env)
		}
	}
}

type registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func newRegistry() *registry {
	return &registry{rooms: make(map[string]*room)}
}

func (g *registry) getOrCreate(roomID string) *room {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if !ok {
		r = &room{id: roomID, clients: make(map[string]*client)}
		g.rooms[roomID] = r
	}
	return r
}

func (g *registry) get(roomID string) (*room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

// drop removes the client from its room and reaps the room when empty.
func (g *registry) drop(roomID, clientID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return
	}
	r.remove(clientID)
	if r.empty() {
		delete(g.rooms, roomID)
	}
}
