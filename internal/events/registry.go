package events

import (
	"sync"

	"waitlist/internal/metrics"

	"github.com/rs/zerolog"
)

// Connection is one live dashboard client owned by this process.
// Send must not block; an error means the connection is dead.
type Connection interface {
	Send(frame []byte) error
	Close()
}

// Registry tracks the live connections of each restaurant on this process.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	logger *zerolog.Logger
}

type room struct {
	mu    sync.Mutex
	conns map[Connection]struct{}
}

func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		rooms:  make(map[string]*room),
		logger: logger,
	}
}

func (r *Registry) room(restaurantID string, create bool) *room {
	r.mu.RLock()
	rm, ok := r.rooms[restaurantID]
	r.mu.RUnlock()
	if ok || !create {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[restaurantID]; !ok {
		rm = &room{conns: make(map[Connection]struct{})}
		r.rooms[restaurantID] = rm
	}
	return rm
}

// Add registers conn for restaurantID. A non-nil greeting is sent before any
// broadcast can reach the connection; if it fails the connection is not added.
func (r *Registry) Add(restaurantID string, conn Connection, greeting []byte) error {
	rm := r.room(restaurantID, true)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if greeting != nil {
		if err := conn.Send(greeting); err != nil {
			return err
		}
	}
	if _, exists := rm.conns[conn]; !exists {
		rm.conns[conn] = struct{}{}
		metrics.AddConnections(1)
	}
	return nil
}

// Remove unregisters conn and reports whether it was registered.
func (r *Registry) Remove(restaurantID string, conn Connection) bool {
	rm := r.room(restaurantID, false)
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.conns[conn]; !ok {
		return false
	}
	delete(rm.conns, conn)
	metrics.AddConnections(-1)
	return true
}

// Broadcast hands frame to every connection of the restaurant. Broadcasts for
// one restaurant are serialized so connections see frames in call order.
// Connections that fail are removed and closed. Returns the delivered count.
func (r *Registry) Broadcast(restaurantID string, frame []byte) int {
	rm := r.room(restaurantID, false)
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	delivered := 0
	for conn := range rm.conns {
		if err := conn.Send(frame); err != nil {
			delete(rm.conns, conn)
			metrics.AddConnections(-1)
			conn.Close()
			r.logger.Info().
				Err(err).
				Str("restaurant_id", restaurantID).
				Msg("dashboard connection removed")
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Registry) Count(restaurantID string) int {
	rm := r.room(restaurantID, false)
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.conns)
}
