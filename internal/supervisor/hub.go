package supervisor

import "sync"

// hub fans engine.BatchSink.Publish calls out to every connection
// currently attached to the bridge, since the Change Pump does not
// know which supervisor connection (if any) is interested in a given
// device.
type hub struct {
	mu    sync.RWMutex
	conns map[*connHandler]struct{}
}

func newHub() *hub {
	return &hub{conns: make(map[*connHandler]struct{})}
}

func (h *hub) add(c *connHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *hub) remove(c *connHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Publish implements engine.BatchSink.
func (h *hub) Publish(deviceUID, tagName string, value any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		c.batcher.Publish(deviceUID, tagName, value)
	}
}
