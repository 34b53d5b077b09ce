package presence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "presence:"

func redisKey(partyID string) string {
	return keyPrefix + partyID
}

// RedisMirror copies presence transitions to Redis so other instances
// can see who is online. A single worker applies writes in order.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	queue  chan Snapshot
	done   chan struct{}
	logger zerolog.Logger
}

func NewRedisMirror(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisMirror {
	return &RedisMirror{
		client: client,
		ttl:    ttl,
		queue:  make(chan Snapshot, 1024),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "presence-mirror").Logger(),
	}
}

// Publish enqueues s. When the queue is full the write is skipped; the
// key's TTL bounds how long the stale value survives.
func (m *RedisMirror) Publish(s Snapshot) {
	select {
	case m.queue <- s:
	default:
		m.logger.Warn().Str("party_id", s.PartyID).Str("status", string(s.Status)).Msg("presence mirror queue full, skipping write")
	}
}

// Run applies queued writes until ctx is cancelled, then drains what is
// already queued.
func (m *RedisMirror) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case s := <-m.queue:
			m.write(ctx, s)
		case <-ctx.Done():
			m.drain()
			return
		}
	}
}

// Wait blocks until Run has returned.
func (m *RedisMirror) Wait() {
	<-m.done
}

func (m *RedisMirror) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case s := <-m.queue:
			m.write(ctx, s)
		default:
			return
		}
	}
}

func (m *RedisMirror) write(ctx context.Context, s Snapshot) {
	if err := m.Apply(ctx, s); err != nil {
		m.logger.Error().Err(err).Str("party_id", s.PartyID).Msg("presence mirror write failed")
	}
}

// Apply writes one snapshot. Offline deletes the key.
func (m *RedisMirror) Apply(ctx context.Context, s Snapshot) error {
	key := redisKey(s.PartyID)
	if s.Status == StatusOffline {
		return m.client.Del(ctx, key).Err()
	}
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"status", string(s.Status),
			"room", s.RoomID,
			"role", s.Role,
			"updatedAt", s.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, m.ttl)
		return nil
	})
	return err
}

// Lookup reads a party's mirrored presence. A missing key is offline.
func (m *RedisMirror) Lookup(ctx context.Context, partyID string) (Snapshot, error) {
	vals, err := m.client.HGetAll(ctx, redisKey(partyID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, err
	}
	if len(vals) == 0 {
		return Snapshot{PartyID: partyID, Status: StatusOffline}, nil
	}
	s := Snapshot{
		PartyID: partyID,
		Role:    vals["role"],
		Status:  Status(vals["status"]),
		RoomID:  vals["room"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, vals["updatedAt"]); err == nil {
		s.UpdatedAt = ts
	}
	return s, nil
}
