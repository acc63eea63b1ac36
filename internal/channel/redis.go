// internal/channel/redis.go
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ConnectRedis initializes a Redis client and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// redisChannel is a session topic carried over Redis pub/sub. Redis gives
// exactly the transport contract the session layer assumes: delivery to all
// current subscribers, nothing for late joiners, no cross-publisher order.
type redisChannel struct {
	rdb    *redis.Client
	topic  string
	sub    *redis.PubSub
	events chan Event
	log    *logrus.Logger
}

// SubscribeRedis joins the named topic and starts decoding events.
func SubscribeRedis(ctx context.Context, rdb *redis.Client, topic string, log *logrus.Logger) (Channel, error) {
	sub := rdb.Subscribe(ctx, topic)
	// Wait for the subscription to be established before reporting
	// SUBSCRIBED to the session layer; its settle/resync timers key off it.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	c := &redisChannel{
		rdb:    rdb,
		topic:  topic,
		sub:    sub,
		events: make(chan Event, 64),
		log:    log,
	}
	go c.readPump()
	return c, nil
}

func (c *redisChannel) readPump() {
	defer close(c.events)
	for msg := range c.sub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			c.log.WithError(err).WithField("topic", c.topic).
				Warn("dropping undecodable session event")
			continue
		}
		select {
		case c.events <- ev:
		default:
			// Slow or stopped consumer; the transport is fire-and-forget,
			// so the event is dropped and resync repairs the gap.
		}
	}
}

func (c *redisChannel) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}
	if err := c.rdb.Publish(ctx, c.topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", c.topic, err)
	}
	return nil
}

func (c *redisChannel) Events() <-chan Event {
	return c.events
}

func (c *redisChannel) Close() error {
	return c.sub.Close()
}
