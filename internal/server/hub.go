package server

import "sync"

// Hub is the process-local room→connections routing table. It is an
// explicit object handed to the websocket handler, never a package
// singleton, so several server instances can each run their own hub
// while sharing authoritative state through the store.
//
// The hub also hands out one mutex per room so state read-modify-write
// cycles from sessions in the same process do not interleave. Cross-room
// there is no shared lock.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

type roomEntry struct {
	sessions map[*session]struct{}
	mutate   sync.Mutex
	// busy counts WithRoom calls in flight; an entry is only dropped
	// when it is zero, so a fresh entry can never mint a second mutate
	// lock while the old one is still held.
	busy int
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*roomEntry)}
}

func (h *Hub) Register(code string, s *session) {
	h.mu.Lock()
	entry := h.rooms[code]
	if entry == nil {
		entry = &roomEntry{sessions: make(map[*session]struct{})}
		h.rooms[code] = entry
	}
	entry.sessions[s] = struct{}{}
	h.mu.Unlock()
}

// Unregister drops a session; when a room's registered set becomes
// empty the routing entry is removed. Pure memory hygiene — the store's
// TTL drives actual room expiry.
func (h *Hub) Unregister(code string, s *session) {
	h.mu.Lock()
	if entry := h.rooms[code]; entry != nil {
		delete(entry.sessions, s)
		if len(entry.sessions) == 0 && entry.busy == 0 {
			delete(h.rooms, code)
		}
	}
	h.mu.Unlock()
}

// Each calls fn for every session registered to the room. fn must not
// block: delivery to one connection never stalls the others.
func (h *Hub) Each(code string, fn func(*session)) {
	h.mu.RLock()
	entry := h.rooms[code]
	var peers []*session
	if entry != nil {
		peers = make([]*session, 0, len(entry.sessions))
		for s := range entry.sessions {
			peers = append(peers, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range peers {
		fn(s)
	}
}

// WithRoom runs fn while holding the room's in-process mutation lock.
func (h *Hub) WithRoom(code string, fn func() error) error {
	h.mu.Lock()
	entry := h.rooms[code]
	if entry == nil {
		entry = &roomEntry{sessions: make(map[*session]struct{})}
		h.rooms[code] = entry
	}
	entry.busy++
	h.mu.Unlock()

	entry.mutate.Lock()
	err := fn()
	entry.mutate.Unlock()

	h.mu.Lock()
	entry.busy--
	if entry.busy == 0 && len(entry.sessions) == 0 && h.rooms[code] == entry {
		delete(h.rooms, code)
	}
	h.mu.Unlock()
	return err
}
