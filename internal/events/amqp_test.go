package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dvsmart-go/internal/config"
	"dvsmart-go/internal/dvs"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := NewAMQPPublisher(ch, "")

	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	ev := dvs.Event{
		Type:           dvs.EventFileReorganized,
		AuditID:        "audit-1",
		JobExecutionID: 7,
		FileID:         "abc123",
		Status:         "SUCCESS",
		Path:           "ab/c1/23/doc.pdf",
		At:             at,
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(ch.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(ch.sent))
	}
	got := ch.sent[0]
	if got.exchange != DefaultExchange {
		t.Errorf("exchange = %q, want %q", got.exchange, DefaultExchange)
	}
	if got.key != "file.reorganized" {
		t.Errorf("routing key = %q, want file.reorganized", got.key)
	}
	if got.msg.DeliveryMode != amqp.Persistent {
		t.Error("message is not persistent")
	}
	if got.msg.ContentType != "application/json" {
		t.Errorf("content type = %q", got.msg.ContentType)
	}
	if got.msg.CorrelationId != "audit-1" {
		t.Errorf("correlation id = %q, want audit-1", got.msg.CorrelationId)
	}
	if !got.msg.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", got.msg.Timestamp, at)
	}

	var decoded dvs.Event
	if err := json.Unmarshal(got.msg.Body, &decoded); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if decoded.FileID != "abc123" || decoded.JobExecutionID != 7 || decoded.Path != ev.Path {
		t.Errorf("decoded event = %+v", decoded)
	}
	if !strings.Contains(string(got.msg.Body), `"auditId":"audit-1"`) {
		t.Errorf("body missing auditId field: %s", got.msg.Body)
	}
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	p := NewAMQPPublisher(ch, "custom")

	err := p.Publish(context.Background(), dvs.Event{Type: dvs.EventJobStarted})
	if !errors.Is(err, amqp.ErrClosed) {
		t.Errorf("Publish() error = %v, want amqp.ErrClosed", err)
	}
}

func TestAMQPPublisher_ConcurrentPublish(t *testing.T) {
	ch := &fakeChannel{}
	p := NewAMQPPublisher(ch, "custom")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Publish(context.Background(), dvs.Event{Type: dvs.EventFileDeleted})
		}()
	}
	wg.Wait()

	if len(ch.sent) != 20 {
		t.Errorf("sent %d messages, want 20", len(ch.sent))
	}
	for _, s := range ch.sent {
		if s.exchange != "custom" {
			t.Fatalf("exchange = %q, want custom", s.exchange)
		}
	}
}

func TestAMQPPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p := NewAMQPPublisher(ch, "")
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !ch.closed {
		t.Error("channel not closed")
	}
}

func TestNewPublisherFromConfig(t *testing.T) {
	for _, typ := range []string{"", "none"} {
		p, err := NewPublisherFromConfig(config.EventsConfig{Type: typ})
		if err != nil {
			t.Fatalf("NewPublisherFromConfig(%q) error = %v", typ, err)
		}
		if err := p.Publish(context.Background(), dvs.Event{Type: dvs.EventJobStarted}); err != nil {
			t.Errorf("nop Publish() error = %v", err)
		}
		if err := p.Close(); err != nil {
			t.Errorf("nop Close() error = %v", err)
		}
	}

	if _, err := NewPublisherFromConfig(config.EventsConfig{Type: "amqp"}); err == nil {
		t.Error("expected error for amqp without url")
	}
	if _, err := NewPublisherFromConfig(config.EventsConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unknown type")
	}
}
