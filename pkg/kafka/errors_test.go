package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"transient kafka error", NewTransientError("x", nil), ErrorTypeTransient},
		{"wrapped permanent", fmt.Errorf("handler: %w", NewPermanentError("x", nil)), ErrorTypePermanent},
		{"business", NewBusinessError("x", nil), ErrorTypeBusiness},
		{"deadline", fmt.Errorf("insert: %w", context.DeadlineExceeded), ErrorTypeTransient},
		{"connection refused upper case", errors.New("dial tcp: Connection Refused"), ErrorTypeTransient},
		{"i/o timeout", errors.New("read tcp 10.0.0.1: i/o timeout"), ErrorTypeTransient},
		{"schema mismatch", errors.New("Schema Mismatch on field"), ErrorTypePermanent},
		{"unrecognised", errors.New("something odd"), ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	transient := NewTransientError("x", nil)

	if ShouldRetry(nil, 0, 3) {
		t.Error("nil error should not retry")
	}
	if !ShouldRetry(transient, 2, 3) {
		t.Error("transient error under the limit should retry")
	}
	if ShouldRetry(transient, 3, 3) {
		t.Error("transient error at the limit should not retry")
	}
	if ShouldRetry(NewPermanentError("x", nil), 0, 3) {
		t.Error("permanent error should not retry")
	}
}

func TestMessage_RetryCount(t *testing.T) {
	msg := Message{}
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	if got := msg.GetRetryCount(); got != 12 {
		t.Errorf("GetRetryCount() = %d, want 12", got)
	}
	if msg.Headers[HeaderRetryCount] != "12" {
		t.Errorf("retry-count header = %q", msg.Headers[HeaderRetryCount])
	}
}

func TestMessageBuilder(t *testing.T) {
	msg := NewMessage().
		WithKey("room-1").
		WithValue(map[string]string{"id": "b1"}).
		WithEventType("booking.reserved").
		WithSchemaVersion("1").
		Build()

	if msg.Key != "room-1" {
		t.Errorf("key = %q", msg.Key)
	}
	if msg.GetEventID() == "" {
		t.Error("expected generated event id")
	}
	if msg.Headers[HeaderTimestamp] == "" {
		t.Error("expected timestamp header")
	}
	var v map[string]string
	if err := msg.DecodeValue(&v); err != nil || v["id"] != "b1" {
		t.Errorf("DecodeValue() = %v, %v", v, err)
	}
}

func TestMessage_PublishedAt(t *testing.T) {
	before := time.Now()
	msg := NewMessage().WithKey("room-1").Build()

	at, ok := msg.PublishedAt()
	if !ok {
		t.Fatal("expected publish time")
	}
	if at.Before(before) || at.After(time.Now()) {
		t.Errorf("PublishedAt() = %v, want time of Build", at)
	}
	if !at.Equal(msg.Timestamp) {
		t.Errorf("PublishedAt() = %v loses precision against %v", at, msg.Timestamp)
	}

	for _, headers := range []map[string]string{{}, {HeaderTimestamp: "yesterday"}} {
		m := Message{Headers: headers}
		if _, ok := m.PublishedAt(); ok {
			t.Errorf("headers %v should have no publish time", headers)
		}
	}
}
