package activitypub

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/domain"
)

// DefaultTransportTrusted are the kinds accepted on the HTTP signature alone
// when the body carries no usable Linked-Data signature.
var DefaultTransportTrusted = []Kind{KindDelete, KindUndo}

type InboxConfig struct {
	Store    Store
	Resolver *Resolver
	// Outbox, when set, answers new follows of local actors with an Accept.
	Outbox           *Outbox
	TransportTrusted []Kind
	Metrics          *Metrics
}

// Inbox verifies incoming activities and applies them to the local store.
type Inbox struct {
	store    Store
	resolver *Resolver
	outbox   *Outbox
	trusted  map[Kind]bool
	metrics  *Metrics
	pending  sync.WaitGroup
}

func NewInbox(cfg InboxConfig) *Inbox {
	trusted := cfg.TransportTrusted
	if trusted == nil {
		trusted = DefaultTransportTrusted
	}
	i := &Inbox{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		outbox:   cfg.Outbox,
		trusted:  make(map[Kind]bool, len(trusted)),
		metrics:  cfg.Metrics,
	}
	for _, k := range trusted {
		i.trusted[k] = true
	}
	return i
}

// Receive authenticates an inbox POST and processes its activity. Any
// signature problem yields ErrRejected without further detail.
func (i *Inbox) Receive(ctx context.Context, req *http.Request, body []byte) (InboxResult, error) {
	validity, keyOwner := VerifyRequest(ctx, req, body, i.resolver)
	i.metrics.signature(validity)
	if !validity.IsSecure() {
		log.Debugf("Inbox: Rejected request signed by %q: signature %s", keyOwner, validity)
		return nil, ErrRejected
	}

	act, doc, err := ParseActivity(body)
	if err != nil {
		log.Debugf("Inbox: Unusable body from %s: %v", keyOwner, err)
		return nil, err
	}

	if !i.authentic(ctx, act, doc, keyOwner) {
		log.Debugf("Inbox: Rejected %s %s from %s relayed by %s", act.Type, act.ID, act.Actor, keyOwner)
		i.metrics.inbox(act.Type, "rejected")
		return nil, ErrRejected
	}

	log.Infof("Inbox: Received %s from %s", act.Type, act.Actor)
	return i.Process(ctx, act)
}

// authentic checks that the activity really comes from its actor: either
// through a Linked-Data signature by the actor, or, for transport-trusted
// kinds, through an HTTP signature made with the actor's own key.
func (i *Inbox) authentic(ctx context.Context, act *Activity, doc map[string]interface{}, keyOwner Id) bool {
	if creator, ok := SignatureCreator(doc); ok && KeyOwner(creator) == act.Actor {
		key, err := i.resolver.PublicKey(ctx, creator, false)
		if err == nil && Verify(doc, NewKeyVerifier(key)) {
			return true
		}
	}
	return i.trusted[act.Type] && keyOwner == act.Actor
}

// Process applies an already authenticated activity in one transaction.
func (i *Inbox) Process(ctx context.Context, act *Activity) (InboxResult, error) {
	h, ok := routes[route{act.Type, act.ObjectKind()}]
	if !ok {
		log.Infof("Inbox: Ignoring %s of %q from %s", act.Type, act.ObjectKind(), act.Actor)
		i.metrics.inbox(act.Type, "ignored")
		return Other{}, nil
	}

	result, err := i.apply(ctx, h, act)
	if errors.Is(err, domain.ErrDuplicate) {
		// a concurrent delivery of the same activity won the insert
		log.Debugf("Inbox: Duplicate while applying %s, retrying", act.ID)
		result, err = i.apply(ctx, h, act)
	}
	if err != nil {
		i.metrics.inbox(act.Type, "error")
		log.Warnf("Inbox: Failed to apply %s %s: %v", act.Type, act.ID, err)
		return nil, err
	}

	i.metrics.inbox(act.Type, ResultName(result))
	i.afterCommit(ctx, result)
	return result, nil
}

// Wait blocks until post-commit deliveries started by Process are done.
func (i *Inbox) Wait() {
	i.pending.Wait()
}

func (i *Inbox) apply(ctx context.Context, h handler, act *Activity) (InboxResult, error) {
	var result InboxResult
	err := i.store.WithTx(ctx, func(tx Tx) error {
		r, err := h(i, ctx, tx, act)
		result = r
		return err
	})
	if err != nil {
		return nil, persistence("apply "+string(act.Type), err)
	}
	return result, nil
}

func (i *Inbox) afterCommit(ctx context.Context, result InboxResult) {
	f, ok := result.(Followed)
	if !ok || i.outbox == nil {
		return
	}
	// the first delivery already sent the Accept
	if f.Replayed {
		log.Debugf("Inbox: Follow %s was already accepted", f.Follow.ApURL)
		return
	}
	i.pending.Add(1)
	go func() {
		defer i.pending.Done()
		if err := i.outbox.Accept(context.WithoutCancel(ctx), f.Follow); err != nil {
			log.Warnf("Inbox: Could not accept follow %s: %v", f.Follow.ApURL, err)
		}
	}()
}
