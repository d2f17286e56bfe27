package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

const (
	idempotencyKeyPrefix = "idempotency:reserve:"
	IdempotencyTTL       = 24 * time.Hour

	stateProcessing = "processing"
	stateSuccess    = "success"
)

// Idempotency deduplicates reservation requests carrying the same
// Idempotency-Key from the same holder.  Begin claims the key; it returns
// the id of the reservation created by an earlier successful request, or 0
// when the caller should go ahead and book.  A key that is still being
// processed yields a Conflict, and reusing a key for a different request
// yields InvalidRequest.
type Idempotency interface {
	Begin(ctx context.Context, holderID uint64, key, fingerprint string) (uint64, error)
	Succeed(ctx context.Context, holderID uint64, key, fingerprint string, reservationID uint64) error
	Fail(ctx context.Context, holderID uint64, key string) error
}

type idempotencyState struct {
	Status        string `json:"status"`
	Fingerprint   string `json:"fingerprint"`
	ReservationID uint64 `json:"reservation_id,omitempty"`
}

// resolve maps a stored state onto Begin's result.
func (s idempotencyState) resolve(fingerprint string) (uint64, error) {
	if s.Fingerprint != fingerprint {
		return 0, reservation.Errorf(reservation.CodeInvalidRequest, "idempotency key was used for a different request")
	}
	if s.Status == stateSuccess {
		return s.ReservationID, nil
	}
	return 0, reservation.Errorf(reservation.CodeConflict, "a request with this idempotency key is still in progress")
}

func idempotencyKey(holderID uint64, key string) string {
	return idempotencyKeyPrefix + strconv.FormatUint(holderID, 10) + ":" + key
}

// Fingerprint summarises the booking parameters bound to a key.
func Fingerprint(flightID uint64, class string, count uint32) string {
	return fmt.Sprintf("%d/%s/%d", flightID, class, count)
}

// RedisIdempotency keeps key state in Redis so every replica sees it.
type RedisIdempotency struct {
	client *redis.Client
}

func NewRedisIdempotency(client *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{client: client}
}

func (r *RedisIdempotency) Begin(ctx context.Context, holderID uint64, key, fingerprint string) (uint64, error) {
	k := idempotencyKey(holderID, key)
	raw, err := json.Marshal(idempotencyState{Status: stateProcessing, Fingerprint: fingerprint})
	if err != nil {
		return 0, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		data, err := r.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			_, err := r.client.SetArgs(ctx, k, raw, redis.SetArgs{Mode: "NX", TTL: IdempotencyTTL}).Result()
			if errors.Is(err, redis.Nil) {
				continue // lost the race, read the winner's state
			}
			if err != nil {
				return 0, fmt.Errorf("redis set: %w", err)
			}
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("redis get: %w", err)
		}

		var state idempotencyState
		if err := json.Unmarshal(data, &state); err != nil {
			// unreadable state is replaced rather than blocking the key for a day
			if err := r.client.Set(ctx, k, raw, IdempotencyTTL).Err(); err != nil {
				return 0, fmt.Errorf("redis set: %w", err)
			}
			return 0, nil
		}
		return state.resolve(fingerprint)
	}
}

func (r *RedisIdempotency) Succeed(ctx context.Context, holderID uint64, key, fingerprint string, reservationID uint64) error {
	raw, err := json.Marshal(idempotencyState{Status: stateSuccess, Fingerprint: fingerprint, ReservationID: reservationID})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, idempotencyKey(holderID, key), raw, IdempotencyTTL).Err()
}

func (r *RedisIdempotency) Fail(ctx context.Context, holderID uint64, key string) error {
	return r.client.Del(ctx, idempotencyKey(holderID, key)).Err()
}

// MemoryIdempotency is the single-process fallback used when Redis is
// disabled or unreachable.
type MemoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	state   idempotencyState
	expires time.Time
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryIdempotency) Begin(_ context.Context, holderID uint64, key, fingerprint string) (uint64, error) {
	k := idempotencyKey(holderID, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.entries[k]; ok && now.Before(e.expires) {
		return e.state.resolve(fingerprint)
	}
	m.sweep(now)
	m.entries[k] = memoryEntry{
		state:   idempotencyState{Status: stateProcessing, Fingerprint: fingerprint},
		expires: now.Add(IdempotencyTTL),
	}
	return 0, nil
}

func (m *MemoryIdempotency) Succeed(_ context.Context, holderID uint64, key, fingerprint string, reservationID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[idempotencyKey(holderID, key)] = memoryEntry{
		state:   idempotencyState{Status: stateSuccess, Fingerprint: fingerprint, ReservationID: reservationID},
		expires: m.now().Add(IdempotencyTTL),
	}
	return nil
}

func (m *MemoryIdempotency) Fail(_ context.Context, holderID uint64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, idempotencyKey(holderID, key))
	return nil
}

// sweep drops expired entries; callers hold m.mu.
func (m *MemoryIdempotency) sweep(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}
