// Package sse fans session events out to connected players. Events travel
// through redis pub/sub so every server instance sees every event.
package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/wager-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 100
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	PlayerID string
	Events   chan Event
	Done     chan struct{}
}

type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // playerID -> set of clients
	stops   map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		stops:   make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(playerID string) *Client {
	client := &Client{
		PlayerID: playerID,
		Events:   make(chan Event, clientBufferSize),
		Done:     make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[playerID] == nil {
		b.clients[playerID] = make(map[*Client]bool)
		if b.redis != nil {
			subCtx, stop := context.WithCancel(b.ctx)
			b.stops[playerID] = stop
			go b.subscribeToRedis(subCtx, playerID)
		}
	}
	b.clients[playerID][client] = true
	clientCount := len(b.clients[playerID])
	b.mu.Unlock()

	log.Info().
		Str("playerId", playerID).
		Int("clientCount", clientCount).
		Msg("event client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.clients[client.PlayerID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Done)

	if len(clients) == 0 {
		delete(b.clients, client.PlayerID)
		if stop, ok := b.stops[client.PlayerID]; ok {
			stop()
			delete(b.stops, client.PlayerID)
		}
	}

	log.Info().
		Str("playerId", client.PlayerID).
		Int("clientCount", len(clients)).
		Msg("event client unsubscribed")
}

// Publish sends event to every stream of playerID on any instance. Without
// redis the event only reaches streams on this instance.
func (b *Broker) Publish(ctx context.Context, playerID string, event Event) error {
	if b.redis == nil {
		b.broadcast(playerID, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.redis.Publish(ctx, redisclient.EventChannel(playerID), data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, playerID string) {
	channel := redisclient.EventChannel(playerID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("playerId", playerID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(playerID, event)
		}
	}
}

func (b *Broker) broadcast(playerID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[playerID] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("playerId", playerID).
				Str("eventType", event.Type).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.stops = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(playerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[playerID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
