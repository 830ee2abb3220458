package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kantor-dev/kantor-backend/internal/domain"
)

type stubTokens struct {
	tokens map[string]string
}

func (s *stubTokens) GetPushToken(_ context.Context, userID string) (*string, error) {
	token, ok := s.tokens[userID]
	if !ok {
		return nil, fmt.Errorf("GetPushToken: %w", domain.ErrNotFound)
	}
	if token == "" {
		return nil, nil
	}
	return &token, nil
}

type sentMessage struct {
	Token string
	Title string
	Body  string
}

type stubNotifier struct {
	mu       sync.Mutex
	sent     []sentMessage
	err      error
	delivery chan struct{}
}

func (s *stubNotifier) Send(_ context.Context, token, title, body string) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{Token: token, Title: title, Body: body})
	s.mu.Unlock()

	if s.delivery != nil {
		s.delivery <- struct{}{}
	}
	return s.err
}

func (s *stubNotifier) all() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

func TestDeliverWithRegisteredToken(t *testing.T) {
	tokens := &stubTokens{tokens: map[string]string{"u1": "device-1"}}
	notifier := &stubNotifier{}
	d := NewDispatcher(tokens, notifier, 8, slog.Default())

	d.deliver(context.Background(), Job{UserID: "u1", Title: "Purchase complete!", Body: "100 USD"})

	sent := notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "device-1", sent[0].Token)
	assert.Equal(t, "Purchase complete!", sent[0].Title)
	assert.Equal(t, "100 USD", sent[0].Body)
}

func TestDeliverWithoutTokenIsNoop(t *testing.T) {
	tokens := &stubTokens{tokens: map[string]string{"u1": ""}}
	notifier := &stubNotifier{}
	d := NewDispatcher(tokens, notifier, 8, slog.Default())

	d.deliver(context.Background(), Job{UserID: "u1", Title: "t", Body: "b"})
	d.deliver(context.Background(), Job{UserID: "unknown", Title: "t", Body: "b"})

	assert.Empty(t, notifier.all())
}

func TestDeliveryErrorIsSwallowed(t *testing.T) {
	tokens := &stubTokens{tokens: map[string]string{"u1": "device-1"}}
	notifier := &stubNotifier{err: errors.New("invalid registration token")}
	d := NewDispatcher(tokens, notifier, 8, slog.Default())

	// Must not panic or propagate; the commit already succeeded.
	d.deliver(context.Background(), Job{UserID: "u1", Title: "t", Body: "b"})

	require.Len(t, notifier.all(), 1)
}

func TestStartServesQueueUntilCancelled(t *testing.T) {
	tokens := &stubTokens{tokens: map[string]string{"u1": "device-1"}}
	notifier := &stubNotifier{delivery: make(chan struct{}, 4)}
	d := NewDispatcher(tokens, notifier, 8, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	d.Dispatch("u1", "first", "b")
	d.Dispatch("u1", "second", "b")

	for range 2 {
		select {
		case <-notifier.delivery:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop on cancel")
	}

	sent := notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, "first", sent[0].Title)
	assert.Equal(t, "second", sent[1].Title)
}

func TestDispatchDropsWhenQueueFull(t *testing.T) {
	tokens := &stubTokens{tokens: map[string]string{}}
	notifier := &stubNotifier{}
	d := NewDispatcher(tokens, notifier, 1, slog.Default())

	// No worker running; the second job must be dropped, not block.
	d.Dispatch("u1", "kept", "b")
	d.Dispatch("u1", "dropped", "b")

	require.Len(t, d.jobs, 1)
}
