package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "innkeep/internal/bookings/errors"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	lockRetryInterval = 20 * time.Millisecond
	unlockTimeout     = 2 * time.Second
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// guardedWriteScript writes the availability field, and the hold when one is
// given, only while the caller still owns the room lock.
//
// KEYS: lock, availability bucket, holds
// ARGV: token, range field, availability value, booking id, hold
var guardedWriteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if ARGV[4] ~= "" then
	redis.call("HSET", KEYS[3], ARGV[4], ARGV[5])
end
redis.call("HSET", KEYS[2], ARGV[2], ARGV[3])
return 1
`)

func lockKey(roomID string) string {
	return lockKeyPrefix + roomID
}

// RoomLock is an acquired per-room mutex. Its ownership ends at Unlock or at
// ExpiresAt, whichever comes first.
type RoomLock struct {
	cache     *RedisCache
	roomID    string
	key       string
	token     string
	expiresAt time.Time
}

func (l *RoomLock) RoomID() string {
	return l.roomID
}

func (l *RoomLock) ExpiresAt() time.Time {
	return l.expiresAt
}

// Bound limits ctx to the lock lifetime so work under the lock cannot outlive it.
func (l *RoomLock) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, l.expiresAt)
}

func (l *RoomLock) Unlock() {
	l.cache.unlock(l.roomID, l.key, l.token)
}

// LockRoom takes the per-room mutex. It polls until the lock is free or the
// configured wait elapses, in which case ErrRoomBusy is returned.
func (c *RedisCache) LockRoom(ctx context.Context, roomID string) (*RoomLock, error) {
	key := lockKey(roomID)
	token := uuid.NewString()
	deadline := time.Now().Add(c.lockWait)

	for {
		// Measured before SETNX so the local view of expiry is never later than Redis'.
		attempted := time.Now()
		acquired, err := c.rdb.SetNX(ctx, key, token, c.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock room %s: %w", roomID, err)
		}
		if acquired {
			return &RoomLock{
				cache:     c,
				roomID:    roomID,
				key:       key,
				token:     token,
				expiresAt: attempted.Add(c.lockTTL),
			}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("lock room %s: %w", roomID, bookingserrors.ErrRoomBusy)
		}

		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *RedisCache) unlock(roomID, key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()

	released, err := unlockScript.Run(ctx, c.rdb, []string{key}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Error("Failed to release room lock", "room_id", roomID, "error", err)
		return
	}
	if released == 0 {
		c.log.Warn("Room lock expired before release", "room_id", roomID, "lock_ttl", c.lockTTL)
	}
}

func (c *RedisCache) guardedWrite(ctx context.Context, lock *RoomLock, field, value, bookingID, hold string) error {
	keys := []string{lock.key, availabilityKey(lock.roomID), holdsKey(lock.roomID)}
	written, err := guardedWriteScript.Run(ctx, c.rdb, keys, lock.token, field, value, bookingID, hold).Int()
	if err != nil {
		return fmt.Errorf("write room %s under lock: %w", lock.roomID, err)
	}
	if written == 0 {
		return fmt.Errorf("write room %s: %w", lock.roomID, bookingserrors.ErrLockLost)
	}
	return nil
}
