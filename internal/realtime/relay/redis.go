// Package relay forwards fanout events between coordinator replicas over
// Redis pub/sub so a client connected to any replica hears every change.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ideavolution/coordinator/internal/logger"
	"github.com/ideavolution/coordinator/internal/realtime"
	goredis "github.com/redis/go-redis/v9"
)

const publishQueueSize = 256

// Local is the replica's own delivery target
type Local interface {
	Dispatch(ctx context.Context, rooms []realtime.Room, ev realtime.Event)
	DeliverRaw(ctx context.Context, rooms []realtime.Room, raw []byte) int
}

// Envelope is the message published on the channel
type Envelope struct {
	Origin string          `json:"origin"`
	Rooms  []realtime.Room `json:"rooms"`
	Event  json.RawMessage `json:"event"`
}

// Relay implements realtime.Dispatcher. Events are delivered locally at once
// and published in the background; publish failures are logged and dropped.
type Relay struct {
	local   Local
	rdb     *goredis.Client
	channel string
	origin  string

	publish func(ctx context.Context, payload []byte) error
	queue   chan []byte
	wg      sync.WaitGroup
}

// Dial connects to Redis and returns a relay for channel
func Dial(ctx context.Context, addr, channel string, local Local) (*Relay, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, channel, local), nil
}

// New wraps an existing client
func New(rdb *goredis.Client, channel string, local Local) *Relay {
	r := &Relay{
		local:   local,
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		queue:   make(chan []byte, publishQueueSize),
	}
	r.publish = func(ctx context.Context, payload []byte) error {
		return r.rdb.Publish(ctx, r.channel, payload).Err()
	}
	return r
}

// Origin identifies this replica on the channel
func (r *Relay) Origin() string {
	return r.origin
}

// Dispatch implements realtime.Dispatcher
func (r *Relay) Dispatch(ctx context.Context, rooms []realtime.Room, ev realtime.Event) {
	r.local.Dispatch(ctx, rooms, ev)

	raw, err := json.Marshal(ev)
	if err != nil {
		logger.WarnKV(ctx, "Failed to encode relayed event", "event", ev.Event, "error", err)
		return
	}
	payload, err := json.Marshal(Envelope{Origin: r.origin, Rooms: rooms, Event: raw})
	if err != nil {
		logger.WarnKV(ctx, "Failed to encode relay envelope", "error", err)
		return
	}

	select {
	case r.queue <- payload:
	default:
		logger.WarnKV(ctx, "Dropping relayed event; publish queue full", "event", ev.Event)
	}
}

// Run publishes queued envelopes until ctx is done
func (r *Relay) Run(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case payload := <-r.queue:
				pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				if err := r.publish(pubCtx, payload); err != nil {
					logger.WarnKV(ctx, "Relay publish failed", "channel", r.channel, "error", err)
				}
				cancel()
			}
		}
	}()
}

// StartForwarder subscribes to the channel and delivers envelopes published
// by other replicas to the local hub
func (r *Relay) StartForwarder(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.handlePayload(ctx, msg.Payload)
			}
		}
	}()
	return nil
}

func (r *Relay) handlePayload(ctx context.Context, payload string) bool {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logger.WarnKV(ctx, "Ignoring malformed relay message", "error", err)
		return false
	}
	if env.Origin == r.origin || len(env.Event) == 0 {
		return false
	}
	r.local.DeliverRaw(ctx, env.Rooms, env.Event)
	return true
}

// Wait blocks until the publisher and forwarder have stopped
func (r *Relay) Wait() {
	r.wg.Wait()
}

// Close releases the Redis client
func (r *Relay) Close() error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
