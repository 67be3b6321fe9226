package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bimbridge/internal/domain"
	"bimbridge/internal/usecase/eventbus"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []domain.OutboundMessage
	failAt int // 1-based call that fails; 0 never fails
	calls  int
}

func (s *recordingSender) Send(_ context.Context, msg domain.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return domain.ErrNotConnected
	}
	s.frames = append(s.frames, msg)
	return nil
}

func (s *recordingSender) sent() []domain.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboundMessage(nil), s.frames...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collectEvents(t *testing.T, bus *eventbus.Bus) func() []domain.Event {
	t.Helper()
	var mu sync.Mutex
	var events []domain.Event
	bus.SubscribeAll(func(_ context.Context, ev domain.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	return func() []domain.Event {
		bus.Close()
		mu.Lock()
		defer mu.Unlock()
		return events
	}
}

func eventTypes(events []domain.Event) []domain.EventType {
	out := make([]domain.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestStreamSendsFramesInOrder(t *testing.T) {
	bus := eventbus.New(testLogger())
	events := collectEvents(t, bus)
	sender := &recordingSender{}
	s := NewStreamer(StreamerConfig{ChunkSize: 100}, bus, testLogger())

	err := s.Stream(context.Background(), sender, json.RawMessage(`"p1"`), elements(250))
	require.NoError(t, err)

	assert.Equal(t, Frames(json.RawMessage(`"p1"`), elements(250), 100), sender.sent())

	got := events()
	assert.ElementsMatch(t, []domain.EventType{domain.EventTransferStarted, domain.EventTransferCompleted}, eventTypes(got))
	for _, ev := range got {
		if ev.Type != domain.EventTransferCompleted {
			continue
		}
		var payload domain.TransferEvent
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		assert.Equal(t, 250, payload.Total)
		assert.Equal(t, 250, payload.Sent)
		assert.Len(t, payload.TransferID, 26)
	}
}

func TestStreamStopsAtFirstSendError(t *testing.T) {
	bus := eventbus.New(testLogger())
	events := collectEvents(t, bus)
	// Start and the first update succeed; the second update fails.
	sender := &recordingSender{failAt: 3}
	s := NewStreamer(StreamerConfig{ChunkSize: 100}, bus, testLogger())

	err := s.Stream(context.Background(), sender, nil, elements(250))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	sent := sender.sent()
	require.Len(t, sent, 2)
	assert.IsType(t, domain.FetchProgressStart{}, sent[0])
	assert.IsType(t, domain.FetchProgressUpdate{}, sent[1])
	assert.Equal(t, 3, sender.calls, "no send may be attempted after a failure")

	got := events()
	assert.Contains(t, eventTypes(got), domain.EventTransferAborted)
	assert.NotContains(t, eventTypes(got), domain.EventTransferCompleted)
	for _, ev := range got {
		if ev.Type != domain.EventTransferAborted {
			continue
		}
		var payload domain.TransferEvent
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		assert.Equal(t, 100, payload.Sent)
		assert.NotEmpty(t, payload.Error)
	}
}

func TestStreamEmptyTransfer(t *testing.T) {
	sender := &recordingSender{}
	s := NewStreamer(StreamerConfig{}, eventbus.Nop{}, testLogger())

	require.NoError(t, s.Stream(context.Background(), sender, nil, nil))
	assert.Equal(t, []domain.OutboundMessage{
		domain.FetchProgressStart{},
		domain.FetchProgressComplete{},
	}, sender.sent())
}

func TestStreamPacesUpdates(t *testing.T) {
	sender := &recordingSender{}
	s := NewStreamer(StreamerConfig{ChunkSize: 1, MaxUpdatesPerSecond: 20}, eventbus.Nop{}, testLogger())

	began := time.Now()
	require.NoError(t, s.Stream(context.Background(), sender, nil, elements(4)))

	// Burst of one: the first update is immediate, the next three wait 50ms each.
	assert.GreaterOrEqual(t, time.Since(began), 120*time.Millisecond)
	assert.Len(t, sender.sent(), 6)
}

func TestStreamPacingHonorsCancellation(t *testing.T) {
	sender := &recordingSender{}
	s := NewStreamer(StreamerConfig{ChunkSize: 1, MaxUpdatesPerSecond: 0.5}, eventbus.Nop{}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Stream(ctx, sender, nil, elements(3))
	require.Error(t, err)
	for _, f := range sender.sent() {
		_, isComplete := f.(domain.FetchProgressComplete)
		assert.False(t, isComplete)
	}
	assert.False(t, errors.Is(err, domain.ErrNotConnected))
}

type pinnedSender struct {
	recordingSender
	bound *recordingSender
}

func (s *pinnedSender) Bind() Sender { return s.bound }

func TestBind(t *testing.T) {
	plain := &recordingSender{}
	assert.Same(t, plain, Bind(plain))

	pinned := &pinnedSender{bound: &recordingSender{}}
	assert.Same(t, pinned.bound, Bind(pinned))
}
