package realtime

import (
	"strings"
	"sync"

	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/metrics"
)

// Hub indexes local websocket clients by topic.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	log     logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		topics:  make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeConnections.Inc()
}

// unregister removes c from every topic and closes its send queue. It returns the
// topics c was subscribed to. Calling it twice is safe.
func (h *Hub) unregister(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return nil
	}
	delete(h.clients, c)
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		h.removeLocked(c, topic)
		topics = append(topics, topic)
	}
	c.closeSend()
	metrics.RealtimeConnections.Dec()
	return topics
}

func (h *Hub) subscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Client]struct{})
		h.topics[topic] = set
	}
	set[c] = struct{}{}
	c.topics[topic] = struct{}{}
}

func (h *Hub) unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, topic)
}

func (h *Hub) removeLocked(c *Client, topic string) {
	delete(c.topics, topic)
	if set, ok := h.topics[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

// topicsOf returns a snapshot of c's subscriptions.
func (h *Hub) topicsOf(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// Dispatch queues payload for every local subscriber of topic. Clients whose
// queue is full are disconnected.
func (h *Hub) Dispatch(topic string, payload []byte) {
	h.mu.RLock()
	var slow []*Client
	delivered := 0
	for c := range h.topics[topic] {
		select {
		case c.send <- payload:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if delivered > 0 {
		metrics.RealtimeEventsDelivered.WithLabelValues(topicKind(topic)).Add(float64(delivered))
	}
	for _, c := range slow {
		h.log.Warn("dropping slow realtime client", map[string]interface{}{
			"userId": c.principal.UserID,
			"topic":  topic,
		})
		metrics.RealtimeClientsDropped.Inc()
		h.unregister(c)
	}
}

// sendTo queues payload for c if it is still connected and has room.
func (h *Hub) sendTo(c *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Len is the number of connected local clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func topicKind(topic string) string {
	kind, _, _ := strings.Cut(topic, ":")
	return kind
}
