package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planidocs/exchange-api/pkg/config"
	"github.com/planidocs/exchange-api/pkg/jobs"
)

// Event names pushed to the notification layer after a commit.
const (
	EventListingValidated = "listing.validated"
	EventListingReverted  = "listing.reverted"
	EventProposalAccepted = "proposal.accepted"
	EventProposalRejected = "proposal.rejected"
	EventPeriodMerged     = "period.merged"
)

// ExchangeEvent is the payload handed to the notification dispatcher.
type ExchangeEvent struct {
	Type           string   `json:"type"`
	SourceID       string   `json:"source_id"`
	OwnerID        string   `json:"owner_id"`
	CounterpartyID string   `json:"counterparty_id,omitempty"`
	SlotKey        string   `json:"slot_key,omitempty"`
	Extra          []string `json:"extra,omitempty"`
}

// Notifier dispatches post-commit events on a background worker queue. It is
// strictly best-effort: the engine only guarantees that committed state is
// visible to subsequent reads, never that a push was delivered.
type Notifier struct {
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
}

// NewNotifier builds the dispatcher; the handler is where an integration
// (mail, websocket push) would plug in.
func NewNotifier(cfg config.NotificationsConfig, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{logger: logger, enabled: cfg.Enabled}
	if !cfg.Enabled {
		return n
	}
	n.queue = jobs.NewQueue("notifications", n.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return n
}

// Start launches the queue workers.
func (n *Notifier) Start(ctx context.Context) {
	if n.queue != nil {
		n.queue.Start(ctx)
	}
}

// Stop drains the queue workers.
func (n *Notifier) Stop() {
	if n.queue != nil {
		n.queue.Stop()
	}
}

// Publish enqueues an event. Failures are logged and dropped; a lost
// notification never affects committed exchange state.
func (n *Notifier) Publish(event ExchangeEvent) {
	if n == nil || !n.enabled || n.queue == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: event.Type, Payload: event}
	if err := n.queue.Enqueue(job); err != nil {
		n.logger.Warn("failed to enqueue notification", zap.String("event", event.Type), zap.Error(err))
	}
}

func (n *Notifier) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(ExchangeEvent)
	if !ok {
		n.logger.Warn("dropping malformed notification job", zap.String("job_id", job.ID))
		return nil
	}
	n.logger.Info("exchange event",
		zap.String("event", event.Type),
		zap.String("source_id", event.SourceID),
		zap.String("owner_id", event.OwnerID),
		zap.String("counterparty_id", event.CounterpartyID),
		zap.String("slot", event.SlotKey),
	)
	return nil
}
