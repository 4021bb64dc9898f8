package connection

import (
	"sync"

	"github.com/google/uuid"
)

type registry struct {
	mu   sync.RWMutex
	list map[uuid.UUID]*Conn
}

func newRegistry() *registry {
	return &registry{
		list: make(map[uuid.UUID]*Conn),
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

func (r *registry) add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list[c.id] = c
}

func (r *registry) delete(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.list, c.id)
}

func (r *registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.list))
	for _, c := range r.list {
		conns = append(conns, c)
	}
	return conns
}
