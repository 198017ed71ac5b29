package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// CityEventHub multiplexes Redis pub/sub messages to many SSE and websocket
// clients without spawning a Redis subscription per connection. Subscribers
// receive the whole stream or only one owner's city events.
type CityEventHub struct {
	redis       *redis.Client
	channelName string

	mu          sync.RWMutex
	subscribers map[chan []byte]eventFilter
}

// eventFilter scopes what a subscriber receives.
type eventFilter struct {
	owner    common.Address
	filtered bool
}

func NewCityEventHub(redis *redis.Client, channel string) *CityEventHub {
	hub := &CityEventHub{
		redis:       redis,
		channelName: channel,
		subscribers: make(map[chan []byte]eventFilter),
	}

	go hub.run()

	return hub
}

func (h *CityEventHub) run() {
	ctx := context.Background()

	for {
		pubsub := h.redis.Subscribe(ctx, h.channelName)
		ch := pubsub.Channel(redis.WithChannelSize(16384))

		for msg := range ch {
			h.broadcast([]byte(msg.Payload))
		}

		_ = pubsub.Close()

		// Avoid tight loop if Redis connection drops
		time.Sleep(time.Second)
	}
}

func (h *CityEventHub) broadcast(payload []byte) {
	// Decode the owner once per payload; only filtered subscribers need it.
	var event CityEvent
	decodable := json.Unmarshal(payload, &event) == nil

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub, filter := range h.subscribers {
		if filter.filtered {
			if !decodable || common.HexToAddress(event.Owner) != filter.owner {
				continue
			}
		}
		select {
		case sub <- payload:
		default:
			// Subscriber is too slow; drop message to keep hub responsive
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- payload:
			default:
			}
		}
	}
}

// Subscribe registers a listener for the whole event stream and returns a
// channel plus cleanup function.
func (h *CityEventHub) Subscribe() (<-chan []byte, func()) {
	return h.subscribe(eventFilter{})
}

// SubscribeOwner registers a listener that only receives events for one
// owner's city. Payloads that do not decode as city events are withheld
// from filtered listeners.
func (h *CityEventHub) SubscribeOwner(owner common.Address) (<-chan []byte, func()) {
	return h.subscribe(eventFilter{owner: owner, filtered: true})
}

func (h *CityEventHub) subscribe(filter eventFilter) (<-chan []byte, func()) {
	ch := make(chan []byte, 512)

	h.mu.Lock()
	h.subscribers[ch] = filter
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}

	return ch, unsubscribe
}
