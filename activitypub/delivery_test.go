package activitypub

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryQueue is an in-process DeliveryQueue.
type memoryQueue struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.DeliveryQueueItem
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{items: make(map[uuid.UUID]domain.DeliveryQueueItem)}
}

func (q *memoryQueue) EnqueueDelivery(_ context.Context, item *domain.DeliveryQueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[item.Id] = *item
	return nil
}

func (q *memoryQueue) PendingDeliveries(_ context.Context, limit int) ([]domain.DeliveryQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []domain.DeliveryQueueItem
	for _, item := range q.items {
		if !item.NextRetryAt.After(time.Now()) && len(due) < limit {
			due = append(due, item)
		}
	}
	return due, nil
}

func (q *memoryQueue) UpdateDeliveryAttempt(_ context.Context, id uuid.UUID, attempts int, next time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := q.items[id]
	item.Attempts, item.NextRetryAt = attempts, next
	q.items[id] = item
	return nil
}

func (q *memoryQueue) DeleteDelivery(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, id)
	return nil
}

func (q *memoryQueue) all() []domain.DeliveryQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.DeliveryQueueItem
	for _, item := range q.items {
		out = append(out, item)
	}
	return out
}

// recordingInbox accepts deliveries and checks both signatures on each.
type recordingInbox struct {
	mu       sync.Mutex
	keys     staticKeys
	pub      *rsa.PublicKey
	received []map[string]interface{}
	valid    []SignatureValidity
	ldValid  []bool
}

func (r *recordingInbox) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	validity, _ := VerifyRequest(req.Context(), req, body, r.keys)
	_, doc, err := ParseActivity(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.received = append(r.received, doc)
	r.valid = append(r.valid, validity)
	r.ldValid = append(r.ldValid, Verify(doc, NewKeyVerifier(r.pub)))
	r.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func testActivity(actor string) Activity {
	return Activity{
		ID:     Id(actor + "like/1"),
		Type:   KindLike,
		Actor:  Id(actor),
		Object: json.RawMessage(`"https://remote.example/articles/1"`),
		To:     Audience{PublicVisibility},
	}
}

func TestInboxesPreferSharedAndSkipLocal(t *testing.T) {
	recipients := []Recipient{
		&domain.User{Inbox: "https://a.example/@/x/inbox", SharedInbox: "https://a.example/inbox"},
		&domain.User{Inbox: "https://a.example/@/y/inbox", SharedInbox: "https://a.example/inbox"},
		&domain.User{Inbox: "https://b.example/users/z/inbox"},
		&domain.Blog{Inbox: "https://example.com/~/notes/inbox", Local: true},
		&domain.User{Inbox: "https://b.example/users/z/inbox"},
	}
	assert.Equal(t, []string{"https://a.example/inbox", "https://b.example/users/z/inbox"}, Inboxes(recipients))
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	signer, pub := testSigner(t, "https://example.com/@/alice/")
	ok := &recordingInbox{keys: staticKeys{keys: map[string]*rsa.PublicKey{signer.KeyID(): pub}}, pub: pub}
	good := httptest.NewServer(ok)
	defer good.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	gone := httptest.NewServer(http.NotFoundHandler())
	gone.Close()

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	queue := newMemoryQueue()
	d := NewDispatcher(DispatcherConfig{Timeout: 2 * time.Second, Workers: 2, Metrics: metrics, Retry: queue})

	recipients := []Recipient{
		&domain.User{Inbox: good.URL + "/inbox"},
		&domain.User{Inbox: failing.URL + "/inbox"},
		&domain.User{Inbox: gone.URL + "/inbox"},
	}
	report := d.Broadcast(context.Background(), signer, testActivity("https://example.com/@/alice/"), recipients)

	assert.Equal(t, BroadcastReport{Delivered: 1, Failed: 2}, report)
	require.Len(t, ok.received, 1)
	assert.Equal(t, Valid, ok.valid[0])
	assert.True(t, ok.ldValid[0], "linked-data signature should verify")
	assert.Equal(t, "Like", ok.received[0]["type"])
	assert.NotNil(t, ok.received[0]["@context"])

	queued := queue.all()
	assert.Len(t, queued, 2)
	for _, item := range queued {
		assert.Equal(t, signer.KeyID(), item.KeyID)
		assert.Equal(t, 1, item.Attempts)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Deliveries.WithLabelValues("delivered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Deliveries.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RetryQueued))
}

func TestOnlyTransientFailuresAreQueued(t *testing.T) {
	signer, _ := testSigner(t, "https://example.com/@/alice/")
	statuses := []int{
		http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone,
		http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusServiceUnavailable,
	}
	var recipients []Recipient
	byURL := make(map[string]int)
	for _, status := range statuses {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		defer srv.Close()
		recipients = append(recipients, &domain.User{Inbox: srv.URL + "/inbox"})
		byURL[srv.URL+"/inbox"] = status
	}

	queue := newMemoryQueue()
	d := NewDispatcher(DispatcherConfig{Timeout: 2 * time.Second, Retry: queue})
	report := d.Broadcast(context.Background(), signer, testActivity("https://example.com/@/alice/"), recipients)
	assert.Equal(t, len(statuses), report.Failed)

	var queued []int
	for _, item := range queue.all() {
		queued = append(queued, byURL[item.Inbox])
	}
	assert.ElementsMatch(t, []int{http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusServiceUnavailable}, queued)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("connection refused")))
	assert.True(t, Retryable(&DeliveryError{Status: http.StatusBadGateway}))
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", &DeliveryError{Status: http.StatusTooManyRequests})))
	assert.False(t, Retryable(&DeliveryError{Status: http.StatusGone}))
	assert.False(t, Retryable(&DeliveryError{Status: http.StatusUnauthorized}))
	assert.False(t, Retryable(nil))
}

func TestBroadcastNoRemoteRecipients(t *testing.T) {
	signer, _ := testSigner(t, "https://example.com/@/alice/")
	d := NewDispatcher(DispatcherConfig{})

	report := d.Broadcast(context.Background(), signer, testActivity("https://example.com/@/alice/"),
		[]Recipient{&domain.User{Inbox: "https://example.com/@/bob/inbox", Local: true}})
	assert.Equal(t, BroadcastReport{}, report)
}

func TestRetryWorkerDeliversAndBacksOff(t *testing.T) {
	signer, pub := testSigner(t, "https://example.com/@/alice/")
	ok := &recordingInbox{keys: staticKeys{keys: map[string]*rsa.PublicKey{signer.KeyID(): pub}}, pub: pub}
	good := httptest.NewServer(ok)
	defer good.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer gone.Close()

	doc, err := ToDocument(testActivity("https://example.com/@/alice/"))
	require.NoError(t, err)
	signed, err := Sign(doc, signer)
	require.NoError(t, err)
	body, err := serialize(signed)
	require.NoError(t, err)

	queue := newMemoryQueue()
	past := time.Now().Add(-time.Second)
	deliverable := domain.DeliveryQueueItem{Id: uuid.New(), Inbox: good.URL, KeyID: signer.KeyID(), Activity: string(body), Attempts: 1, NextRetryAt: past}
	retried := domain.DeliveryQueueItem{Id: uuid.New(), Inbox: failing.URL, KeyID: signer.KeyID(), Activity: string(body), Attempts: 1, NextRetryAt: past}
	exhausted := domain.DeliveryQueueItem{Id: uuid.New(), Inbox: failing.URL, KeyID: signer.KeyID(), Activity: string(body), Attempts: len(retryBackoff), NextRetryAt: past}
	orphan := domain.DeliveryQueueItem{Id: uuid.New(), Inbox: good.URL, KeyID: "https://example.com/@/ghost/#main-key", Activity: string(body), Attempts: 1, NextRetryAt: past}
	rejected := domain.DeliveryQueueItem{Id: uuid.New(), Inbox: gone.URL, KeyID: signer.KeyID(), Activity: string(body), Attempts: 1, NextRetryAt: past}
	for _, item := range []domain.DeliveryQueueItem{deliverable, retried, exhausted, orphan, rejected} {
		require.NoError(t, queue.EnqueueDelivery(context.Background(), &item))
	}

	signers := func(_ context.Context, keyID string) (Signer, error) {
		if keyID == signer.KeyID() {
			return signer, nil
		}
		return nil, domain.ErrNotFound
	}
	w := NewRetryWorker(queue, NewDispatcher(DispatcherConfig{Timeout: 2 * time.Second}), signers)
	w.ProcessQueue(context.Background())

	left := queue.all()
	require.Len(t, left, 1)
	assert.Equal(t, retried.Id, left[0].Id)
	assert.Equal(t, 2, left[0].Attempts)
	assert.True(t, left[0].NextRetryAt.After(time.Now().Add(retryBackoff[1]-time.Minute)))

	require.Len(t, ok.received, 1)
	assert.True(t, ok.ldValid[0], "queued body should still carry its signature")
}

func TestRetryBackoffEndsBeforeSignatureExpiry(t *testing.T) {
	var total time.Duration
	for _, d := range retryBackoff {
		total += d
	}
	assert.Less(t, total, signatureMaxSkew)
}
