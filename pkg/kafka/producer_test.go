package kafka

import (
	"context"
	"errors"
	"testing"

	"innkeep/pkg/logger"

	"github.com/segmentio/kafka-go"
)

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "bookings.commit", logger.Discard())

	msg := NewMessage().WithKey("room-1").WithValue(map[string]string{"id": "b1"}).WithEventType("booking.reserved").Build()
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := w.messages()
	if len(got) != 1 {
		t.Fatalf("written = %d, want 1", len(got))
	}
	if string(got[0].Key) != "room-1" {
		t.Errorf("key = %q", got[0].Key)
	}
	if headerValue(got[0], HeaderEventType) != "booking.reserved" {
		t.Error("event-type header missing")
	}
}

func TestProducer_PublishErrors(t *testing.T) {
	brokerDown := errors.New("broker down")
	w := &fakeWriter{writeFunc: func(ctx context.Context, msgs ...kafka.Message) error { return brokerDown }}
	p := newProducer(w, "bookings.commit", logger.Discard())

	if err := p.Publish(context.Background(), Message{Value: []byte(`x`)}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("empty key error = %v", err)
	}
	if err := p.Publish(context.Background(), Message{Key: "k"}); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("empty value error = %v", err)
	}
	if err := p.Publish(context.Background(), Message{Key: "k", Value: []byte(`x`)}); !errors.Is(err, brokerDown) {
		t.Errorf("write error = %v, want broker down", err)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(context.Background(), Message{Key: "k", Value: []byte(`x`)}); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("closed error = %v", err)
	}
}
