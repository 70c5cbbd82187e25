package activitypub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Recipient is anything an activity can be delivered to.
type Recipient interface {
	IsLocal() bool
	InboxURL() string
	SharedInboxURL() string
}

// BroadcastReport counts delivery outcomes of one Broadcast call. It is
// meant for logs and tests; failures are never returned as errors.
type BroadcastReport struct {
	Delivered int
	Failed    int
}

// RetryQueue accepts deliveries that failed so they can be attempted later.
type RetryQueue interface {
	EnqueueDelivery(ctx context.Context, item *domain.DeliveryQueueItem) error
}

type DispatcherConfig struct {
	Client    *http.Client
	Workers   int
	Timeout   time.Duration
	UserAgent string
	Metrics   *Metrics
	Retry     RetryQueue
}

// Dispatcher signs activities and fans them out to remote inboxes.
type Dispatcher struct {
	client    *http.Client
	workers   int
	timeout   time.Duration
	userAgent string
	metrics   *Metrics
	retry     RetryQueue
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		client:    cfg.Client,
		workers:   cfg.Workers,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		metrics:   cfg.Metrics,
		retry:     cfg.Retry,
	}
	if d.timeout <= 0 {
		d.timeout = 10 * time.Second
	}
	if d.client == nil {
		d.client = NewHTTPClient(d.timeout)
	}
	if d.workers <= 0 {
		d.workers = 8
	}
	return d
}

// Inboxes returns the distinct delivery endpoints of the remote recipients,
// preferring shared inboxes, in first-seen order.
func Inboxes(recipients []Recipient) []string {
	seen := make(map[string]bool)
	var boxes []string
	for _, r := range recipients {
		if r == nil || r.IsLocal() {
			continue
		}
		inbox := r.SharedInboxURL()
		if inbox == "" {
			inbox = r.InboxURL()
		}
		if inbox == "" || seen[inbox] {
			continue
		}
		seen[inbox] = true
		boxes = append(boxes, inbox)
	}
	return boxes
}

// Broadcast signs activity once as sender and delivers it to every remote
// recipient concurrently. It returns after all deliveries have finished.
func (d *Dispatcher) Broadcast(ctx context.Context, sender Signer, activity interface{}, recipients []Recipient) BroadcastReport {
	boxes := Inboxes(recipients)
	if len(boxes) == 0 {
		return BroadcastReport{}
	}

	body, err := d.prepare(activity, sender)
	if err != nil {
		log.Errorf("Broadcast: Could not prepare activity from %s: %v", sender.KeyID(), err)
		return BroadcastReport{Failed: len(boxes)}
	}

	var delivered, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for _, inbox := range boxes {
		g.Go(func() error {
			if err := d.Deliver(ctx, sender, inbox, body); err != nil {
				failed.Add(1)
				log.Warnf("Broadcast: Delivery to %s failed: %v", inbox, err)
				if Retryable(err) {
					d.enqueueRetry(ctx, sender, inbox, body)
				}
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := BroadcastReport{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
	log.Infof("Broadcast: %d delivered, %d failed for %s", report.Delivered, report.Failed, sender.KeyID())
	return report
}

func (d *Dispatcher) prepare(activity interface{}, sender Signer) ([]byte, error) {
	doc, err := ToDocument(activity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode activity: %w", err)
	}
	doc["@context"] = Context()
	signed, err := Sign(doc, sender)
	if err != nil {
		return nil, err
	}
	return serialize(signed)
}

// Deliver posts an already serialized activity to one inbox with a fresh
// HTTP signature.
func (d *Dispatcher) Deliver(ctx context.Context, sender Signer, inbox string, body []byte) error {
	start := time.Now()
	err := d.deliver(ctx, sender, inbox, body)
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	d.metrics.delivery(result, time.Since(start).Seconds())
	return err
}

func (d *Dispatcher) deliver(ctx context.Context, sender Signer, inbox string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	if err := SignRequest(req, body, sender); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Inbox: inbox, Status: resp.StatusCode}
	}
	return nil
}

// DeliveryError is a delivery the remote inbox answered with a non-2xx status.
type DeliveryError struct {
	Inbox  string
	Status int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("inbox %s returned status %d", e.Inbox, e.Status)
}

// Retryable reports whether a failed delivery may succeed later: network
// errors, server errors, timeouts and rate limiting. Other statuses are final.
func Retryable(err error) bool {
	var de *DeliveryError
	if !errors.As(err, &de) {
		return err != nil
	}
	return de.Status >= 500 || de.Status == http.StatusRequestTimeout || de.Status == http.StatusTooManyRequests
}

func (d *Dispatcher) enqueueRetry(ctx context.Context, sender Signer, inbox string, body []byte) {
	if d.retry == nil {
		return
	}
	item := &domain.DeliveryQueueItem{
		Id:          uuid.New(),
		Inbox:       inbox,
		KeyID:       sender.KeyID(),
		Activity:    string(body),
		Attempts:    1,
		NextRetryAt: time.Now().Add(retryBackoff[0]),
		CreatedAt:   time.Now(),
	}
	// queued independently of the caller's deadline
	if err := d.retry.EnqueueDelivery(context.WithoutCancel(ctx), item); err != nil {
		log.Errorf("Broadcast: Could not queue retry for %s: %v", inbox, err)
		return
	}
	d.metrics.retryQueued()
}
