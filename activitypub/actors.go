package activitypub

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

const actorStaleAfter = 24 * time.Hour

// Actor is a resolved user or blog. Exactly one field is set.
type Actor struct {
	User *domain.User
	Blog *domain.Blog
}

func (a Actor) found() bool { return a.User != nil || a.Blog != nil }

func (a Actor) Id() uuid.UUID {
	if a.User != nil {
		return a.User.Id
	}
	return a.Blog.Id
}

func (a Actor) ApURL() string {
	if a.User != nil {
		return a.User.ApURL
	}
	return a.Blog.ApURL
}

func (a Actor) IsLocal() bool {
	if a.User != nil {
		return a.User.Local
	}
	return a.Blog.Local
}

func (a Actor) PublicKeyPEM() string {
	if a.User != nil {
		return a.User.PublicKey
	}
	return a.Blog.PublicKey
}

func (a Actor) privateKey() string {
	if a.User != nil {
		return a.User.PrivateKey
	}
	return a.Blog.PrivateKey
}

func (a Actor) lastFetched() time.Time {
	if a.User != nil {
		return a.User.LastFetchedAt
	}
	return a.Blog.LastFetchedAt
}

// Recipient returns the actor as a broadcast target.
func (a Actor) Recipient() Recipient {
	if a.User != nil {
		return a.User
	}
	return a.Blog
}

// Resolver finds actors and objects by id: local store first, then a fetch
// through the Fetcher whose validated result is persisted.
type Resolver struct {
	store       Store
	fetcher     Fetcher
	localDomain string
	metrics     *Metrics
}

func NewResolver(store Store, fetcher Fetcher, localDomain string, metrics *Metrics) *Resolver {
	return &Resolver{
		store:       store,
		fetcher:     fetcher,
		localDomain: localDomain,
		metrics:     metrics,
	}
}

// IsLocal reports whether id belongs to this instance. Local ids are never fetched.
func (r *Resolver) IsLocal(id Id) bool {
	return id.Host() == r.localDomain
}

// User resolves id to a person actor.
func (r *Resolver) User(ctx context.Context, tx Tx, id Id) (*domain.User, error) {
	a, err := r.Actor(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if a.User == nil {
		return nil, unresolved(id, "expected a person actor", nil)
	}
	return a.User, nil
}

// Actor resolves id to a user or blog. Cached remote actors older than a
// day are refreshed; if that fails the cached copy is used.
func (r *Resolver) Actor(ctx context.Context, tx Tx, id Id) (Actor, error) {
	cached, err := r.cachedActor(ctx, tx, id)
	if err != nil {
		return Actor{}, persistence("actor lookup", err)
	}
	if cached.found() && (cached.IsLocal() || time.Since(cached.lastFetched()) < actorStaleAfter) {
		r.metrics.resolution("cache")
		return cached, nil
	}
	if r.IsLocal(id) {
		return Actor{}, unresolved(id, "unknown local actor", nil)
	}

	fresh, err := r.fetchActor(ctx, tx, id, cached)
	if err != nil {
		if cached.found() {
			log.Warnf("Resolver: Refresh of %s failed, using cached copy: %v", id, err)
			return cached, nil
		}
		return Actor{}, err
	}
	return fresh, nil
}

// Refresh refetches a remote actor regardless of cache age.
func (r *Resolver) Refresh(ctx context.Context, tx Tx, id Id) (Actor, error) {
	cached, err := r.cachedActor(ctx, tx, id)
	if err != nil {
		return Actor{}, persistence("actor lookup", err)
	}
	if r.IsLocal(id) {
		if !cached.found() {
			return Actor{}, unresolved(id, "unknown local actor", nil)
		}
		return cached, nil
	}
	return r.fetchActor(ctx, tx, id, cached)
}

// PublicKey implements KeyResolver on top of the actor cache.
func (r *Resolver) PublicKey(ctx context.Context, keyID string, refresh bool) (*rsa.PublicKey, error) {
	owner := KeyOwner(keyID)
	var keyPEM string
	err := r.store.WithTx(ctx, func(tx Tx) error {
		resolve := r.Actor
		if refresh {
			resolve = r.Refresh
		}
		a, err := resolve(ctx, tx, owner)
		if err != nil {
			return err
		}
		keyPEM = a.PublicKeyPEM()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ParsePublicKey(keyPEM)
}

func (r *Resolver) cachedActor(ctx context.Context, tx Tx, id Id) (Actor, error) {
	u, found, err := lookup(tx.UserByApURL(ctx, string(id)))
	if err != nil || found {
		return Actor{User: u}, err
	}
	b, _, err := lookup(tx.BlogByApURL(ctx, string(id)))
	return Actor{Blog: b}, err
}

func (r *Resolver) fetchActor(ctx context.Context, tx Tx, id Id, cached Actor) (Actor, error) {
	body, err := r.fetcher.Fetch(ctx, id)
	if err != nil {
		r.metrics.resolution("failed")
		return Actor{}, unresolved(id, "fetch failed", err)
	}

	var obj ActorObject
	if err := json.Unmarshal(body, &obj); err != nil {
		r.metrics.resolution("failed")
		return Actor{}, unresolved(id, "invalid actor document", err)
	}
	if err := validateActor(id, &obj); err != nil {
		r.metrics.resolution("failed")
		return Actor{}, err
	}

	var a Actor
	switch {
	case obj.IsPerson() && cached.Blog == nil:
		u := userFromActor(&obj)
		if cached.User != nil {
			u.Id, u.CreatedAt = cached.User.Id, cached.User.CreatedAt
			err = tx.UpdateUser(ctx, u)
		} else {
			err = tx.InsertUser(ctx, u)
		}
		a.User = u
	case obj.IsGroup() && cached.User == nil:
		b := blogFromActor(&obj)
		if cached.Blog != nil {
			b.Id, b.CreatedAt = cached.Blog.Id, cached.Blog.CreatedAt
			err = tx.UpdateBlog(ctx, b)
		} else {
			err = tx.InsertBlog(ctx, b)
		}
		a.Blog = b
	default:
		r.metrics.resolution("failed")
		return Actor{}, unresolved(id, "unexpected actor type "+string(obj.Type), nil)
	}
	if err != nil {
		return Actor{}, persistence("store actor", err)
	}

	r.metrics.resolution("fetched")
	log.Debugf("Resolver: Fetched %s %s", obj.Type, id)
	return a, nil
}

// FetchObject fetches a remote object and checks that it is the one asked for.
func (r *Resolver) FetchObject(ctx context.Context, id Id) (json.RawMessage, ObjectKind, error) {
	if r.IsLocal(id) {
		return nil, "", unresolved(id, "unknown local object", nil)
	}
	body, err := r.fetcher.Fetch(ctx, id)
	if err != nil {
		r.metrics.resolution("failed")
		return nil, "", unresolved(id, "fetch failed", err)
	}
	var head struct {
		ID Id `json:"id"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		r.metrics.resolution("failed")
		return nil, "", unresolved(id, "invalid document", err)
	}
	if head.ID != id {
		r.metrics.resolution("failed")
		return nil, "", unresolved(id, "document id does not match", nil)
	}
	r.metrics.resolution("fetched")
	return body, objectKind(body), nil
}

func validateActor(id Id, obj *ActorObject) error {
	if obj.ID != id {
		return unresolved(id, "document id does not match", nil)
	}
	if obj.Inbox == "" {
		return unresolved(id, "actor has no inbox", nil)
	}
	if obj.PublicKey.Owner != "" && Id(obj.PublicKey.Owner) != id {
		return unresolved(id, "public key belongs to another actor", nil)
	}
	if _, err := ParsePublicKey(obj.PublicKey.PublicKeyPem); err != nil {
		return unresolved(id, "unusable public key", err)
	}
	return nil
}

func userFromActor(obj *ActorObject) *domain.User {
	now := time.Now()
	u := &domain.User{
		Id:            uuid.New(),
		Username:      obj.PreferredUsername,
		DisplayName:   obj.Name,
		Summary:       obj.Summary,
		Domain:        obj.ID.Host(),
		ApURL:         string(obj.ID),
		Inbox:         obj.Inbox,
		Outbox:        obj.Outbox,
		FollowersURL:  obj.Followers,
		PublicKey:     obj.PublicKey.PublicKeyPem,
		LastFetchedAt: now,
		CreatedAt:     now,
	}
	if u.Username == "" {
		u.Username = extractUsername(string(obj.ID))
	}
	if obj.Endpoints != nil {
		u.SharedInbox = obj.Endpoints.SharedInbox
	}
	return u
}

func blogFromActor(obj *ActorObject) *domain.Blog {
	now := time.Now()
	b := &domain.Blog{
		Id:            uuid.New(),
		Name:          obj.PreferredUsername,
		Title:         obj.Name,
		Summary:       obj.Summary,
		Domain:        obj.ID.Host(),
		ApURL:         string(obj.ID),
		Inbox:         obj.Inbox,
		Outbox:        obj.Outbox,
		FollowersURL:  obj.Followers,
		PublicKey:     obj.PublicKey.PublicKeyPem,
		LastFetchedAt: now,
		CreatedAt:     now,
	}
	if b.Name == "" {
		b.Name = extractUsername(string(obj.ID))
	}
	if obj.Endpoints != nil {
		b.SharedInbox = obj.Endpoints.SharedInbox
	}
	return b
}

// sameOrigin reports whether two ids live on the same host.
func sameOrigin(a, b Id) bool {
	ha := a.Host()
	return ha != "" && ha == b.Host()
}

// extractUsername extracts the last path segment of an actor URI
// Examples:
// - "https://example.com/users/alice" -> "alice"
// - "https://example.com/@/alice/" -> "alice"
func extractUsername(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return strings.TrimPrefix(parts[len(parts)-1], "@")
}
