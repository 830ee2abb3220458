// Package notify delivers best-effort settlement notifications. Delivery is
// decoupled from the ledger commit path: jobs go through a bounded queue
// served by a worker goroutine, and a failed or dropped notification can
// never fail or roll back the operation that produced it.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kantor-dev/kantor-backend/internal/domain"
)

// Notifier is the push transport collaborator.
type Notifier interface {
	Send(ctx context.Context, deviceToken, title, body string) error
}

type tokenSource interface {
	GetPushToken(ctx context.Context, userID string) (*string, error)
}

type Job struct {
	UserID string
	Title  string
	Body   string
}

type Dispatcher struct {
	tokens   tokenSource
	notifier Notifier
	jobs     chan Job
	logger   *slog.Logger
	timeout  time.Duration
}

func NewDispatcher(tokens tokenSource, notifier Notifier, queueSize int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tokens:   tokens,
		notifier: notifier,
		jobs:     make(chan Job, queueSize),
		logger:   logger,
		timeout:  5 * time.Second,
	}
}

// Dispatch enqueues a notification without blocking. When the queue is full
// the job is dropped with a log line; there is no retry or dead-letter in
// the base design.
func (d *Dispatcher) Dispatch(userID, title, body string) {
	select {
	case d.jobs <- Job{UserID: userID, Title: title, Body: body}:
	default:
		d.logger.Warn("notification queue full, dropping job", "user_id", userID, "title", title)
	}
}

// Start serves the queue until ctx is cancelled. Run it on its own
// goroutine from main.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("notification dispatcher started", "queue_size", cap(d.jobs))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopped")
			return
		case job := <-d.jobs:
			d.deliver(ctx, job)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, job Job) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	token, err := d.tokens.GetPushToken(ctx, job.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			d.logger.Warn("push token lookup failed", "user_id", job.UserID, "error", err)
		}
		return
	}
	if token == nil {
		// No device registered; nothing to deliver.
		return
	}

	if err := d.notifier.Send(ctx, *token, job.Title, job.Body); err != nil {
		d.logger.Warn("notification delivery failed",
			"user_id", job.UserID, "title", job.Title, "error", err)
		return
	}

	d.logger.Debug("notification delivered", "user_id", job.UserID, "title", job.Title)
}
