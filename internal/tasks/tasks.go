package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeSweepExpired = "bookings:sweep_expired"
	TypeReleaseRoom  = "availability:release_room"

	QueueMaintenance = "maintenance"
	QueueCritical    = "critical"
)

type ReleaseRoomPayload struct {
	RoomID     string   `json:"room_id"`
	BookingIDs []string `json:"booking_ids,omitempty"`
}

func NewReleaseRoomTask(payload ReleaseRoomPayload, maxRetry int) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeReleaseRoom, b)
	opts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(maxRetry),
	}

	return task, opts, nil
}

func ParseReleaseRoomTask(task *asynq.Task) (ReleaseRoomPayload, error) {
	var p ReleaseRoomPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", TypeReleaseRoom, err)
	}
	if p.RoomID == "" {
		return p, fmt.Errorf("%s payload has no room_id", TypeReleaseRoom)
	}
	return p, nil
}

// NewSweepTask builds the periodic sweep task. Unique keeps overlapping
// scheduler ticks from queuing more than one pending sweep.
func NewSweepTask(interval time.Duration) (*asynq.Task, []asynq.Option) {
	task := asynq.NewTask(TypeSweepExpired, nil)
	opts := []asynq.Option{
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(0),
		asynq.Unique(interval),
	}
	return task, opts
}

// Queues is the priority map used by workers that serve both task kinds.
func Queues() map[string]int {
	return map[string]int{
		QueueCritical:    6,
		QueueMaintenance: 3,
	}
}
