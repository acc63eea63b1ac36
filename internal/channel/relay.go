// internal/channel/relay.go
package channel

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// relayChannel carries a session topic over a WebSocket relay, for
// deployments where peers cannot reach Redis directly. The relay is a dumb
// fan-out: every frame written to a topic is echoed to all connected
// subscribers of that topic, the sender included.
type relayChannel struct {
	conn   *websocket.Conn
	topic  string
	events chan Event
	log    *logrus.Logger
	cancel context.CancelFunc
}

// relayFrame wraps an Event with its topic for multiplexing on the relay.
type relayFrame struct {
	Topic string `json:"topic"`
	Event Event  `json:"event"`
}

// DialRelay connects to the relay and subscribes to the named topic.
func DialRelay(ctx context.Context, relayURL, topic string, log *logrus.Logger) (Channel, error) {
	conn, _, err := websocket.Dial(ctx, relayURL, &websocket.DialOptions{
		Subprotocols: []string{"parlor"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay %s: %w", relayURL, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &relayChannel{
		conn:   conn,
		topic:  topic,
		events: make(chan Event, 64),
		log:    log,
		cancel: cancel,
	}

	// Announce the topic before anything else so the relay can route frames.
	if err := wsjson.Write(ctx, conn, relayFrame{Topic: topic}); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, fmt.Errorf("failed to subscribe to relay topic %s: %w", topic, err)
	}

	go c.readPump(readCtx)
	return c, nil
}

func (c *relayChannel) readPump(ctx context.Context) {
	defer close(c.events)
	for {
		var frame relayFrame
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			if ctx.Err() == nil {
				c.log.WithError(err).WithField("topic", c.topic).
					Info("relay connection closed")
			}
			return
		}
		if frame.Topic != c.topic {
			continue
		}
		select {
		case c.events <- frame.Event:
		default:
			// Fire-and-forget transport; resync repairs dropped events.
		}
	}
}

func (c *relayChannel) Publish(ctx context.Context, ev Event) error {
	if err := wsjson.Write(ctx, c.conn, relayFrame{Topic: c.topic, Event: ev}); err != nil {
		return fmt.Errorf("failed to publish to relay topic %s: %w", c.topic, err)
	}
	return nil
}

func (c *relayChannel) Events() <-chan Event {
	return c.events
}

func (c *relayChannel) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "leaving session")
}
