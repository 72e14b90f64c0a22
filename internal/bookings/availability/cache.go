package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"innkeep/pkg/logger"
	"innkeep/pkg/model"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	availabilityKeyPrefix = "room_availability:"
	holdsKeyPrefix        = "room_holds:"
	lockKeyPrefix         = "room_lock:"
	failedCommitKeyPrefix = "commit_failed:"

	failedCommitTTL = 7 * 24 * time.Hour
	pruneScanCount  = 100

	valueAvailable   = "true"
	valueUnavailable = "false"
)

// RedisCache keeps one hash per room. Fields are date ranges, values are the
// last known availability answer. Entries carry no TTL.
type RedisCache struct {
	rdb      *redis.Client
	lockTTL  time.Duration
	lockWait time.Duration
	log      *logger.Logger
}

func NewRedisCache(rdb *redis.Client, lockTTL, lockWait time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{
		rdb:      rdb,
		lockTTL:  lockTTL,
		lockWait: lockWait,
		log:      log,
	}
}

func availabilityKey(roomID string) string {
	return availabilityKeyPrefix + roomID
}

func holdsKey(roomID string) string {
	return holdsKeyPrefix + roomID
}

func rangeField(checkIn, checkOut time.Time) string {
	return strconv.FormatInt(checkIn.UnixMilli(), 10) + "-" + strconv.FormatInt(checkOut.UnixMilli(), 10)
}

// Lookup returns the cached answer for the range. found is false on a miss.
func (c *RedisCache) Lookup(ctx context.Context, roomID string, checkIn, checkOut time.Time) (available bool, found bool, err error) {
	val, err := c.rdb.HGet(ctx, availabilityKey(roomID), rangeField(checkIn, checkOut)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("lookup availability for room %s: %w", roomID, err)
	}
	return val == valueAvailable, true, nil
}

// Store records an availability answer for the range. It fails with
// ErrLockLost once the lock has expired or been taken over.
func (c *RedisCache) Store(ctx context.Context, lock *RoomLock, checkIn, checkOut time.Time, available bool) error {
	val := valueUnavailable
	if available {
		val = valueAvailable
	}
	return c.guardedWrite(ctx, lock, rangeField(checkIn, checkOut), val, "", "")
}

// InvalidateRoom drops every cached range of the room with a single DEL.
func (c *RedisCache) InvalidateRoom(ctx context.Context, roomID string) error {
	if err := c.rdb.Del(ctx, availabilityKey(roomID)).Err(); err != nil {
		return fmt.Errorf("invalidate room %s: %w", roomID, err)
	}
	return nil
}

// Hold records a pending booking and marks its range unavailable in one
// step, provided the lock is still owned.
func (c *RedisCache) Hold(ctx context.Context, lock *RoomLock, hold model.Hold) error {
	if hold.RoomID != lock.roomID {
		return fmt.Errorf("hold %s is for room %s, lock is for room %s", hold.BookingID, hold.RoomID, lock.roomID)
	}
	if hold.HeldAt.IsZero() {
		hold.HeldAt = time.Now().UTC()
	}
	b, err := json.Marshal(hold)
	if err != nil {
		return fmt.Errorf("encode hold %s: %w", hold.BookingID, err)
	}
	return c.guardedWrite(ctx, lock, rangeField(hold.CheckIn, hold.CheckOut), valueUnavailable, hold.BookingID, string(b))
}

func (c *RedisCache) RemoveHold(ctx context.Context, roomID string, bookingIDs ...string) error {
	if len(bookingIDs) == 0 {
		return nil
	}
	if err := c.rdb.HDel(ctx, holdsKey(roomID), bookingIDs...).Err(); err != nil {
		return fmt.Errorf("remove holds on room %s: %w", roomID, err)
	}
	return nil
}

func (c *RedisCache) Holds(ctx context.Context, roomID string) ([]model.Hold, error) {
	raw, err := c.rdb.HGetAll(ctx, holdsKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list holds on room %s: %w", roomID, err)
	}

	holds := make([]model.Hold, 0, len(raw))
	for bookingID, val := range raw {
		var h model.Hold
		if err := json.Unmarshal([]byte(val), &h); err != nil {
			c.log.Warn("Skipping unreadable hold entry",
				"room_id", roomID,
				"booking_id", bookingID,
				"error", err,
			)
			continue
		}
		holds = append(holds, h)
	}
	return holds, nil
}

// PruneHolds drops holds whose stay ended before now, along with unreadable
// entries. It returns how many were removed.
func (c *RedisCache) PruneHolds(ctx context.Context, now time.Time) (int, error) {
	pruned := 0
	iter := c.rdb.Scan(ctx, 0, holdsKeyPrefix+"*", pruneScanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := c.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return pruned, fmt.Errorf("read holds %s: %w", key, err)
		}

		var stale []string
		for bookingID, val := range raw {
			var h model.Hold
			if err := json.Unmarshal([]byte(val), &h); err != nil || h.CheckOut.Before(now) {
				stale = append(stale, bookingID)
			}
		}
		if len(stale) == 0 {
			continue
		}

		removed, err := c.rdb.HDel(ctx, key, stale...).Result()
		if err != nil {
			return pruned, fmt.Errorf("prune holds %s: %w", key, err)
		}
		pruned += int(removed)
		c.log.Info("Pruned stale holds", "key", key, "booking_ids", stale)
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("scan holds: %w", err)
	}
	return pruned, nil
}

// MarkCommitFailed remembers a booking that was dead-lettered so reads can
// report it as failed instead of not found.
func (c *RedisCache) MarkCommitFailed(ctx context.Context, booking *model.Booking) error {
	b, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("encode failed commit %s: %w", booking.ID, err)
	}
	if err := c.rdb.Set(ctx, failedCommitKeyPrefix+booking.ID, b, failedCommitTTL).Err(); err != nil {
		return fmt.Errorf("mark commit failed %s: %w", booking.ID, err)
	}
	return nil
}

func (c *RedisCache) FailedCommit(ctx context.Context, bookingID string) (*model.Booking, bool, error) {
	val, err := c.rdb.Get(ctx, failedCommitKeyPrefix+bookingID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read failed commit %s: %w", bookingID, err)
	}
	var b model.Booking
	if err := json.Unmarshal(val, &b); err != nil {
		return nil, false, fmt.Errorf("decode failed commit %s: %w", bookingID, err)
	}
	return &b, true, nil
}

// HoldConflict returns the first hold overlapping the range, ignoring the given booking.
func HoldConflict(holds []model.Hold, ignoreBookingID string, start, end time.Time) *model.Hold {
	for i := range holds {
		if holds[i].BookingID == ignoreBookingID {
			continue
		}
		if RangesOverlap(holds[i].CheckIn, holds[i].CheckOut, start, end) {
			return &holds[i]
		}
	}
	return nil
}
