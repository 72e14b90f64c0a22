package tasks

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

func TestReleaseRoomTask_RoundTrip(t *testing.T) {
	task, opts, err := NewReleaseRoomTask(ReleaseRoomPayload{RoomID: "room-1", BookingIDs: []string{"b-1"}}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type() != TypeReleaseRoom {
		t.Errorf("expected type %s, got %s", TypeReleaseRoom, task.Type())
	}
	if len(opts) != 2 {
		t.Errorf("expected 2 options, got %d", len(opts))
	}

	p, err := ParseReleaseRoomTask(task)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if p.RoomID != "room-1" || len(p.BookingIDs) != 1 || p.BookingIDs[0] != "b-1" {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestParseReleaseRoomTask_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("{")},
		{"missing room", []byte(`{"booking_ids":["b-1"]}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseReleaseRoomTask(asynq.NewTask(TypeReleaseRoom, tt.payload)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewSweepTask_Options(t *testing.T) {
	task, opts := NewSweepTask(time.Minute)
	if task.Type() != TypeSweepExpired {
		t.Errorf("expected type %s, got %s", TypeSweepExpired, task.Type())
	}

	var queue string
	var unique time.Duration
	for _, o := range opts {
		switch o.Type() {
		case asynq.QueueOpt:
			queue, _ = o.Value().(string)
		case asynq.UniqueOpt:
			unique, _ = o.Value().(time.Duration)
		}
	}
	if queue != QueueMaintenance {
		t.Errorf("expected queue %s, got %q", QueueMaintenance, queue)
	}
	if unique != time.Minute {
		t.Errorf("expected unique window of 1m, got %s", unique)
	}
	if _, ok := Queues()[queue]; !ok {
		t.Errorf("queue %s missing from worker priorities", queue)
	}
}
