package activitypub

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

// Signed bodies stop verifying after 12h, so the schedule ends well before that.
var retryBackoff = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	4 * time.Hour,
}

// DeliveryQueue stores failed deliveries between attempts.
type DeliveryQueue interface {
	RetryQueue
	PendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryQueueItem, error)
	UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt time.Time) error
	DeleteDelivery(ctx context.Context, id uuid.UUID) error
}

// SignerLookup returns the signer of the local actor owning keyID.
type SignerLookup func(ctx context.Context, keyID string) (Signer, error)

// RetryWorker periodically re-attempts queued deliveries with backoff.
type RetryWorker struct {
	queue      DeliveryQueue
	dispatcher *Dispatcher
	signers    SignerLookup
	interval   time.Duration
	batch      int
}

func NewRetryWorker(queue DeliveryQueue, dispatcher *Dispatcher, signers SignerLookup) *RetryWorker {
	return &RetryWorker{
		queue:      queue,
		dispatcher: dispatcher,
		signers:    signers,
		interval:   10 * time.Second,
		batch:      50,
	}
}

// Run processes the queue until ctx is done.
func (w *RetryWorker) Run(ctx context.Context) {
	log.Info("Starting ActivityPub delivery retry worker...")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessQueue(ctx)
		}
	}
}

// ProcessQueue makes one pass over the deliveries that are due.
func (w *RetryWorker) ProcessQueue(ctx context.Context) {
	items, err := w.queue.PendingDeliveries(ctx, w.batch)
	if err != nil {
		log.Errorf("DeliveryWorker: Failed to read queue: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}

	log.Infof("DeliveryWorker: Processing %d pending deliveries", len(items))
	for _, item := range items {
		w.attempt(ctx, item)
	}
}

func (w *RetryWorker) attempt(ctx context.Context, item domain.DeliveryQueueItem) {
	signer, err := w.signers(ctx, item.KeyID)
	if err != nil {
		log.Warnf("DeliveryWorker: Dropping delivery to %s, no signer for %s: %v", item.Inbox, item.KeyID, err)
		w.delete(ctx, item)
		return
	}

	err = w.dispatcher.Deliver(ctx, signer, item.Inbox, []byte(item.Activity))
	if err == nil {
		log.Infof("DeliveryWorker: Successfully delivered to %s", item.Inbox)
		w.delete(ctx, item)
		return
	}
	if !Retryable(err) {
		log.Warnf("DeliveryWorker: Dropping delivery to %s: %v", item.Inbox, err)
		w.delete(ctx, item)
		return
	}
	if item.Attempts >= len(retryBackoff) {
		log.Warnf("DeliveryWorker: Giving up on delivery to %s after %d attempts: %v", item.Inbox, item.Attempts+1, err)
		w.delete(ctx, item)
		return
	}

	next := time.Now().Add(retryBackoff[item.Attempts])
	log.Warnf("DeliveryWorker: Delivery to %s failed (attempt %d), retry at %s: %v",
		item.Inbox, item.Attempts+1, next.Format(time.Kitchen), err)
	if err := w.queue.UpdateDeliveryAttempt(ctx, item.Id, item.Attempts+1, next); err != nil {
		log.Errorf("DeliveryWorker: Could not update %s: %v", item.Id, err)
	}
}

func (w *RetryWorker) delete(ctx context.Context, item domain.DeliveryQueueItem) {
	if err := w.queue.DeleteDelivery(ctx, item.Id); err != nil {
		log.Errorf("DeliveryWorker: Could not remove %s: %v", item.Id, err)
	}
}
