package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"

	"rentmarket/pkg/models"
)

const (
	roomPrefix    = "conversation:"
	channelPrefix = "room:"
)

// Delivery is one realtime event addressed to every member of a room.
type Delivery struct {
	Room         string          `json:"room"`
	ExceptUserID string          `json:"exceptUserId,omitempty"`
	Envelope     models.Envelope `json:"envelope"`
}

// RoomFor names the room that carries a conversation's events.
func RoomFor(conversationID string) string {
	return roomPrefix + conversationID
}

// Broker moves deliveries between server instances. Without one the hub
// delivers in-process only.
type Broker interface {
	Publish(ctx context.Context, d Delivery) error
	// Subscribe blocks until ctx is done, calling fn for every delivery.
	Subscribe(ctx context.Context, fn func(Delivery)) error
}

// RedisBroker fans deliveries out over Redis pub/sub so every instance
// reaches its own sockets.
type RedisBroker struct {
	rdb *redis.Client
	log interface {
		Printf(string, ...any)
	}
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{
		rdb: rdb,
		log: log.New(log.Writer(), "[broker] ", log.LstdFlags),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	return b.rdb.Publish(ctx, channelPrefix+d.Room, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, fn func(Delivery)) error {
	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				b.log.Printf("drop malformed delivery on %s: %v", msg.Channel, err)
				continue
			}
			if d.Room == "" {
				d.Room = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			fn(d)
		}
	}
}
