// Package stream pushes confirmed social mutations to every open tab of a
// viewer, across gateway instances when Redis is configured.
package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const EventPostUpdated = "post.updated"

type Event struct {
	Type     string `json:"type"`
	PostID   string `json:"postId"`
	Likes    int    `json:"likes"`
	Saves    int    `json:"saves"`
	Comments int    `json:"comments"`
}

type Hub struct {
	redis   *redis.Client
	origin  string
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	log     *logrus.Entry
	cancel  context.CancelFunc
	done    chan struct{}
}

type Client struct {
	ViewerID string
	Send     chan []byte
}

// relayed is the Redis message; origin lets an instance skip its own
// publications, which it already delivered locally.
type relayed struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(redisClient *redis.Client, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		redis:   redisClient,
		origin:  uuid.NewString(),
		clients: map[string]map[*Client]struct{}{},
		log:     logger.WithField("component", "stream"),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if redisClient != nil {
		ready := make(chan struct{})
		go h.subscribeRedis(ctx, ready)
		<-ready
	} else {
		close(h.done)
	}
	return h
}

// Close stops the Redis subscription.
func (h *Hub) Close() {
	h.cancel()
	<-h.done
}

func (h *Hub) Register(viewerID string) *Client {
	client := &Client{
		ViewerID: viewerID,
		Send:     make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[viewerID] == nil {
		h.clients[viewerID] = map[*Client]struct{}{}
	}
	h.clients[viewerID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if viewerClients, ok := h.clients[client.ViewerID]; ok {
		if _, registered := viewerClients[client]; !registered {
			return
		}
		delete(viewerClients, client)
		if len(viewerClients) == 0 {
			delete(h.clients, client.ViewerID)
		}
		close(client.Send)
	}
}

// Publish delivers ev to the viewer's local connections and relays it to the
// other instances.
func (h *Hub) Publish(ctx context.Context, viewerID string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.deliver(viewerID, payload)

	if h.redis == nil {
		return nil
	}
	msg, err := json.Marshal(relayed{Origin: h.origin, Payload: payload})
	if err != nil {
		return err
	}
	if err := h.redis.Publish(ctx, redisChannel(viewerID), msg).Err(); err != nil {
		h.log.WithError(err).WithField("viewer", viewerID).Warn("redis publish")
		return err
	}
	return nil
}

func (h *Hub) deliver(viewerID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[viewerID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, ready chan<- struct{}) {
	defer close(h.done)
	pubsub := h.redis.PSubscribe(ctx, redisChannel("*"))
	defer pubsub.Close()
	// Receive waits for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.WithError(err).Warn("redis subscribe")
	}
	close(ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var in relayed
			if err := json.Unmarshal([]byte(msg.Payload), &in); err != nil {
				h.log.WithError(err).Debug("drop malformed relay message")
				continue
			}
			if in.Origin == h.origin {
				continue
			}
			h.deliver(viewerFromChannel(msg.Channel), in.Payload)
		}
	}
}

func redisChannel(viewerID string) string {
	return "social:" + viewerID + ":events"
}

func viewerFromChannel(ch string) string {
	// social:{viewer}:events
	const prefix = "social:"
	const suffix = ":events"
	if !strings.HasPrefix(ch, prefix) || !strings.HasSuffix(ch, suffix) || len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
