package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("boom") }

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher must report zero counters")
	}
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for _, typ := range []string{"a", "b", "c"} {
		d.Emit(context.Background(), Event{EventType: typ})
	}
	d.Close()

	var got []string
	for i := 0; i < 3; i++ {
		ev := <-sink.Events()
		if ev.Timestamp.IsZero() {
			t.Fatal("timestamp should be stamped on emit")
		}
		got = append(got, ev.EventType)
	}
	if strings.Join(got, "") != "abc" {
		t.Fatalf("unexpected order %v", got)
	}
	if d.Delivered() != 3 {
		t.Fatalf("delivered = %d", d.Delivered())
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestDispatcherBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, panicSink{})
	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})
	d.Close()
	if d.SinkPanics() != 2 {
		t.Fatalf("expected 2 recovered panics, got %d", d.SinkPanics())
	}
}

func TestDispatcherCloseIdempotent(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, NoOpSink{})
	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "e2"})
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Category:  CategoryAuthAttempt,
		EventType: "login_success",
		UserID:    "u1",
		IP:        "127.0.0.1",
		Success:   true,
	})

	line := buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Fatal("expected newline terminated record")
	}
	for _, needle := range []string{`"event_type":"login_success"`, `"user_id":"u1"`, `"category":"auth_attempt"`} {
		if !strings.Contains(line, needle) {
			t.Fatalf("missing %s in %s", needle, line)
		}
	}
}

func TestZerologSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerologSink(zerolog.New(&buf))

	sink.Emit(context.Background(), Event{Category: CategoryAuthAttempt, EventType: "login_success", Success: true})
	sink.Emit(context.Background(), Event{Category: CategoryAuthAttempt, EventType: "login_failure", Error: "invalid credentials"})
	sink.Emit(context.Background(), Event{Category: CategoryAnomaly, EventType: "anomaly_detected", Metadata: map[string]string{"score": "0.80"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	want := []string{"info", "warn", "error"}
	for i, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d not JSON: %v", i, err)
		}
		if rec["level"] != want[i] {
			t.Fatalf("line %d level = %v, want %s", i, rec["level"], want[i])
		}
	}
}

func TestKafkaSinkPublishesJSON(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w, time.Second, nil)
	sink.Emit(context.Background(), Event{Category: CategoryRegistration, EventType: "register", UserID: "u1", Success: true})

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "u1" {
		t.Fatalf("key = %q", msg.Key)
	}
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.EventType != "register" || ev.Category != CategoryRegistration {
		t.Fatalf("unexpected payload %+v", ev)
	}
	if err := sink.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v", err)
	}
}

func TestKafkaSinkReportsErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	var got error
	sink := NewKafkaSink(w, time.Second, func(err error) { got = err })
	sink.Emit(context.Background(), Event{EventType: "x"})
	if got == nil {
		t.Fatal("expected error callback")
	}
}

func TestNewKafkaWriterValidation(t *testing.T) {
	if _, err := NewKafkaWriter(KafkaConfig{Topic: "audit"}); err == nil {
		t.Fatal("expected brokers error")
	}
	if _, err := NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatal("expected topic error")
	}
	w, err := NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "audit"})
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if w.Topic != "audit" {
		t.Fatalf("topic = %q", w.Topic)
	}
	_ = w.Close()
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{EventType: "x"})
	if (<-a.Events()).EventType != "x" || (<-b.Events()).EventType != "x" {
		t.Fatal("event not delivered to every sink")
	}
}
