package activitypub_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/deemkeen/quill/activitypub"
	"github.com/deemkeen/quill/db"
	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves documents from memory instead of the network.
type stubFetcher struct {
	mu   sync.Mutex
	docs map[activitypub.Id][]byte
}

func (f *stubFetcher) Fetch(_ context.Context, id activitypub.Id) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("fetch %s: 404", id)
	}
	return doc, nil
}

func (f *stubFetcher) serve(t *testing.T, id activitypub.Id, v interface{}) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	f.mu.Lock()
	f.docs[id] = b
	f.mu.Unlock()
}

// remoteInbox records every activity delivered to the remote instance.
type remoteInbox struct {
	mu       sync.Mutex
	received []map[string]interface{}
}

func (r *remoteInbox) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.received = append(r.received, doc)
	r.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (r *remoteInbox) all() []map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]interface{}(nil), r.received...)
}

type remoteActor struct {
	id     activitypub.Id
	signer *activitypub.KeySigner
}

type fixture struct {
	db      *db.DB
	inbox   *activitypub.Inbox
	outbox  *activitypub.Outbox
	fetcher *stubFetcher
	remote  *remoteInbox
	server  *httptest.Server
	alice   *domain.User
	blog    *domain.Blog
	post    *domain.Post
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	database, err := db.Open(db.DriverSqlite, filepath.Join(t.TempDir(), "quill.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	alice, err := database.CreateLocalUser(ctx, "example.com", "alice", "Alice", activitypub.GenerateKeypair())
	require.NoError(t, err)
	blog, err := database.CreateLocalBlog(ctx, "example.com", "notes", "Notes", alice, activitypub.GenerateKeypair())
	require.NoError(t, err)

	remote := &remoteInbox{}
	server := httptest.NewServer(remote)
	t.Cleanup(server.Close)

	fetcher := &stubFetcher{docs: make(map[activitypub.Id][]byte)}
	store := database.Federation()
	metrics := activitypub.NewMetrics(prometheus.NewRegistry())
	resolver := activitypub.NewResolver(store, fetcher, "example.com", metrics)
	dispatcher := activitypub.NewDispatcher(activitypub.DispatcherConfig{Timeout: 2 * time.Second, Metrics: metrics})
	outbox := activitypub.NewOutbox(store, resolver, dispatcher, "example.com")
	inbox := activitypub.NewInbox(activitypub.InboxConfig{Store: store, Resolver: resolver, Outbox: outbox, Metrics: metrics})
	t.Cleanup(inbox.Wait)

	post, err := outbox.PublishPost(ctx, alice, blog, activitypub.PostDraft{Title: "First post", Content: "<p>hello</p>", Tags: []string{"go"}})
	require.NoError(t, err)

	return &fixture{
		db:      database,
		inbox:   inbox,
		outbox:  outbox,
		fetcher: fetcher,
		remote:  remote,
		server:  server,
		alice:   alice,
		blog:    blog,
		post:    post,
	}
}

// person publishes a remote Person document and returns its signer.
func (f *fixture) person(t *testing.T, id string) remoteActor {
	t.Helper()
	keys := activitypub.GenerateKeypair()
	signer, err := activitypub.SignerFromPEM(id, keys.PrivatePEM)
	require.NoError(t, err)
	f.fetcher.serve(t, activitypub.Id(id), activitypub.ActorObject{
		ID:                activitypub.Id(id),
		Type:              activitypub.ObjectPerson,
		PreferredUsername: "user",
		Inbox:             f.server.URL + "/inbox",
		PublicKey:         activitypub.PublicKey{ID: signer.KeyID(), Owner: id, PublicKeyPem: keys.PublicPEM},
	})
	return remoteActor{id: activitypub.Id(id), signer: signer}
}

func (f *fixture) group(t *testing.T, id string) {
	t.Helper()
	f.fetcher.serve(t, activitypub.Id(id), activitypub.ActorObject{
		ID:                activitypub.Id(id),
		Type:              activitypub.ObjectGroup,
		PreferredUsername: "news",
		Inbox:             f.server.URL + "/inbox",
		PublicKey:         activitypub.PublicKey{ID: id + "#main-key", Owner: id, PublicKeyPem: activitypub.GenerateKeypair().PublicPEM},
	})
}

// send posts act to the shared inbox signed by from. ldSign adds a
// Linked-Data signature as well.
func (f *fixture) send(t *testing.T, from remoteActor, act activitypub.Activity, ldSign bool) (activitypub.InboxResult, error) {
	t.Helper()
	req, body := f.signed(t, from, act, ldSign)
	return f.inbox.Receive(context.Background(), req, body)
}

// signed builds the inbox request send would post.
func (f *fixture) signed(t *testing.T, from remoteActor, act activitypub.Activity, ldSign bool) (*http.Request, []byte) {
	t.Helper()
	doc, err := activitypub.ToDocument(act)
	require.NoError(t, err)
	doc["@context"] = activitypub.Context()
	if ldSign {
		doc, err = activitypub.Sign(doc, from.signer)
		require.NoError(t, err)
	}
	body, err := json.Marshal(doc)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, "https://example.com/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, activitypub.SignRequest(req, body, from.signer))
	return req, body
}

func (f *fixture) stats(t *testing.T) *domain.Stats {
	t.Helper()
	s, err := f.db.Stats(context.Background())
	require.NoError(t, err)
	return s
}

func link(id string) json.RawMessage {
	b, _ := json.Marshal(id)
	return b
}

func object(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func like(id string, actor activitypub.Id, target string) activitypub.Activity {
	return activitypub.Activity{ID: activitypub.Id(id), Type: activitypub.KindLike, Actor: actor, Object: link(target)}
}

func TestReceiveLikeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	act := like("https://remote.example/@/bob/like/1", bob.id, f.post.ApURL)

	first, err := f.send(t, bob, act, true)
	require.NoError(t, err)
	liked, ok := first.(activitypub.Liked)
	require.True(t, ok, "expected Liked, got %T", first)
	assert.Equal(t, f.post.Id, liked.Like.PostId)

	second, err := f.send(t, bob, act, true)
	require.NoError(t, err)
	assert.Equal(t, liked.Like.Id, second.(activitypub.Liked).Like.Id)

	again := like("https://remote.example/@/bob/like/2", bob.id, f.post.ApURL)
	third, err := f.inbox.Process(context.Background(), &again)
	require.NoError(t, err)
	assert.Equal(t, liked.Like.Id, third.(activitypub.Liked).Like.Id)

	assert.Equal(t, 1, f.stats(t).Likes)
	assert.Equal(t, 1, f.stats(t).RemoteUsers)
}

// knownActor stores from as a remote user by liking a second post.
func (f *fixture) knownActor(t *testing.T, from remoteActor) *domain.User {
	t.Helper()
	ctx := context.Background()
	other, err := f.outbox.PublishPost(ctx, f.alice, f.blog, activitypub.PostDraft{Title: "Second post", Content: "<p>again</p>"})
	require.NoError(t, err)
	_, err = f.send(t, from, like(string(from.id)+"like/warmup", from.id, other.ApURL), true)
	require.NoError(t, err)
	u, err := f.db.UserByApURL(ctx, string(from.id))
	require.NoError(t, err)
	return u
}

func TestConcurrentDuplicateLike(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	f.knownActor(t, bob)
	act := like("https://remote.example/@/bob/like/1", bob.id, f.post.ApURL)

	const n = 8
	reqs := make([]*http.Request, n)
	bodies := make([][]byte, n)
	for k := range reqs {
		reqs[k], bodies[k] = f.signed(t, bob, act, true)
	}

	results := make([]activitypub.InboxResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			results[k], errs[k] = f.inbox.Receive(context.Background(), reqs[k], bodies[k])
		}(k)
	}
	wg.Wait()

	var id uuid.UUID
	for k := 0; k < n; k++ {
		require.NoError(t, errs[k], "delivery %d", k)
		liked, ok := results[k].(activitypub.Liked)
		require.True(t, ok, "delivery %d: expected Liked, got %T", k, results[k])
		if k == 0 {
			id = liked.Like.Id
		}
		assert.Equal(t, id, liked.Like.Id, "delivery %d", k)
	}
	assert.Equal(t, 2, f.stats(t).Likes)
}

// racingStore commits a competing like outside the transaction the first
// time InsertLike is called, then fails that insert as a duplicate.
type racingStore struct {
	activitypub.Store
	db     *db.DB
	once   sync.Once
	winner *domain.Like
}

func (s *racingStore) WithTx(ctx context.Context, fn func(tx activitypub.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx activitypub.Tx) error {
		return fn(racingTx{Tx: tx, store: s})
	})
}

type racingTx struct {
	activitypub.Tx
	store *racingStore
}

func (tx racingTx) InsertLike(ctx context.Context, l *domain.Like) error {
	raced := false
	tx.store.once.Do(func() { raced = true })
	if !raced {
		return tx.Tx.InsertLike(ctx, l)
	}
	winner := *l
	winner.Id = uuid.New()
	if err := tx.store.db.InsertLike(ctx, &winner); err != nil {
		return err
	}
	tx.store.winner = &winner
	return fmt.Errorf("%w: like %s", domain.ErrDuplicate, l.ApURL)
}

func TestDuplicateInsertReturnsWinningLike(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	f.knownActor(t, bob)

	store := &racingStore{Store: f.db.Federation(), db: f.db}
	metrics := activitypub.NewMetrics(prometheus.NewRegistry())
	resolver := activitypub.NewResolver(store, f.fetcher, "example.com", metrics)
	inbox := activitypub.NewInbox(activitypub.InboxConfig{Store: store, Resolver: resolver, Metrics: metrics})

	act := like("https://remote.example/@/bob/like/1", bob.id, f.post.ApURL)
	result, err := inbox.Process(context.Background(), &act)
	require.NoError(t, err)
	liked, ok := result.(activitypub.Liked)
	require.True(t, ok, "expected Liked, got %T", result)
	require.NotNil(t, store.winner)
	assert.Equal(t, store.winner.Id, liked.Like.Id)
	assert.Equal(t, 2, f.stats(t).Likes)
}

func TestReceiveRejectsBadSignatures(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	mallory := f.person(t, "https://evil.example/@/mallory/")
	act := like("https://remote.example/@/bob/like/1", bob.id, f.post.ApURL)

	body := object(t, act)
	req := httptest.NewRequest(http.MethodPost, "https://example.com/inbox", bytes.NewReader(body))
	_, err := f.inbox.Receive(context.Background(), req, body)
	assert.ErrorIs(t, err, activitypub.ErrRejected, "unsigned request")

	_, err = f.send(t, bob, act, false)
	assert.ErrorIs(t, err, activitypub.ErrRejected, "Like without linked-data signature")

	_, err = f.send(t, mallory, act, false)
	assert.ErrorIs(t, err, activitypub.ErrRejected, "relayed by another actor")

	forged := act
	forged.ID = "https://remote.example/@/bob/like/forged"
	_, err = f.send(t, mallory, forged, true)
	assert.ErrorIs(t, err, activitypub.ErrRejected, "signed by another actor")

	assert.Equal(t, 0, f.stats(t).Likes)
}

func TestReceiveMalformedBody(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	body := []byte(`{"type":"Like","actor":"https://remote.example/@/bob/"}`)

	req, err := http.NewRequest(http.MethodPost, "https://example.com/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, activitypub.SignRequest(req, body, bob.signer))

	_, err = f.inbox.Receive(context.Background(), req, body)
	assert.ErrorIs(t, err, activitypub.ErrMalformed)
}

func TestLikeFromForeignOriginIsForbidden(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	act := like("https://elsewhere.example/likes/1", bob.id, f.post.ApURL)

	_, err := f.inbox.Process(context.Background(), &act)
	assert.ErrorIs(t, err, activitypub.ErrForbidden)
}

func TestUndoLikeWithTransportSignature(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	act := like("https://remote.example/@/bob/like/1", bob.id, f.post.ApURL)
	_, err := f.send(t, bob, act, true)
	require.NoError(t, err)

	undo := activitypub.Activity{ID: act.ID + "/undo", Type: activitypub.KindUndo, Actor: bob.id, Object: object(t, act)}
	result, err := f.send(t, bob, undo, false)
	require.NoError(t, err)
	assert.Equal(t, activitypub.Other{}, result)
	assert.Equal(t, 0, f.stats(t).Likes)

	result, err = f.send(t, bob, undo, false)
	require.NoError(t, err, "undo of an unknown like is a no-op")
	assert.Equal(t, activitypub.Other{}, result)
}

func TestUndoByAnotherActorIsForbidden(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	carol := f.person(t, "https://remote.example/@/carol/")
	act := like("https://remote.example/@/bob/like/1", bob.id, f.post.ApURL)
	_, err := f.inbox.Process(context.Background(), &act)
	require.NoError(t, err)

	undo := activitypub.Activity{ID: "https://remote.example/@/carol/undo/1", Type: activitypub.KindUndo, Actor: carol.id, Object: link(string(act.ID))}
	_, err = f.inbox.Process(context.Background(), &undo)
	assert.ErrorIs(t, err, activitypub.ErrForbidden)
	assert.Equal(t, 1, f.stats(t).Likes)
}

func TestFollowFromUnresolvableActor(t *testing.T) {
	f := newFixture(t)
	act := activitypub.Activity{
		ID:     "https://dead.example/@/zed/follow/1",
		Type:   activitypub.KindFollow,
		Actor:  "https://dead.example/@/zed/",
		Object: link(f.alice.ApURL),
	}

	_, err := f.inbox.Process(context.Background(), &act)
	var re *activitypub.ResolutionError
	require.True(t, errors.As(err, &re), "expected ResolutionError, got %v", err)
	assert.Equal(t, activitypub.Id("https://dead.example/@/zed/"), re.Id)
	assert.Equal(t, 0, f.stats(t).Follows)
}

func TestFollowLocalUserSendsAccept(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	act := activitypub.Activity{ID: "https://remote.example/@/bob/follow/1", Type: activitypub.KindFollow, Actor: bob.id, Object: link(f.alice.ApURL)}

	result, err := f.send(t, bob, act, true)
	require.NoError(t, err)
	followed, ok := result.(activitypub.Followed)
	require.True(t, ok, "expected Followed, got %T", result)
	assert.Equal(t, f.alice.Id, followed.Follow.FollowingId)

	f.inbox.Wait()
	received := f.remote.all()
	require.Len(t, received, 1)
	assert.Equal(t, "Accept", received[0]["type"])
	assert.Equal(t, f.alice.ApURL, received[0]["actor"])
	inner, ok := received[0]["object"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(act.ID), inner["id"])

	replay, err := f.send(t, bob, act, true)
	require.NoError(t, err)
	assert.True(t, replay.(activitypub.Followed).Replayed)
	assert.Equal(t, followed.Follow.Id, replay.(activitypub.Followed).Follow.Id)
	f.inbox.Wait()
	assert.Len(t, f.remote.all(), 1, "a redelivered follow is not accepted twice")

	refollow := act
	refollow.ID = "https://remote.example/@/bob/follow/2"
	_, err = f.inbox.Process(context.Background(), &refollow)
	require.NoError(t, err)
	f.inbox.Wait()

	current, err := f.db.FollowBetween(context.Background(), followed.Follow.FollowerId, f.alice.Id)
	require.NoError(t, err)
	assert.Equal(t, string(refollow.ID), current.ApURL)
	assert.Equal(t, 1, f.stats(t).Follows)
}

func TestFollowOfRemoteTargetIsIgnored(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	act := activitypub.Activity{ID: "https://remote.example/@/bob/follow/1", Type: activitypub.KindFollow, Actor: bob.id, Object: link("https://third.example/@/dan/")}

	result, err := f.inbox.Process(context.Background(), &act)
	require.NoError(t, err)
	assert.Equal(t, activitypub.Other{}, result)
	assert.Equal(t, 0, f.stats(t).Follows)
}

func note(id string, author activitypub.Id, inReplyTo string) activitypub.Note {
	return activitypub.Note{
		ID:           activitypub.Id(id),
		Type:         activitypub.ObjectNote,
		Content:      "<p>reply</p>",
		InReplyTo:    activitypub.Id(inReplyTo),
		AttributedTo: activitypub.Audience{author},
		To:           activitypub.Audience{activitypub.PublicVisibility},
	}
}

func create(t *testing.T, id string, actor activitypub.Id, obj interface{}) activitypub.Activity {
	return activitypub.Activity{ID: activitypub.Id(id), Type: activitypub.KindCreate, Actor: actor, Object: object(t, obj)}
}

func TestCreateCommentThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.person(t, "https://remote.example/@/bob/")
	carol := f.person(t, "https://other.example/@/carol/")

	top := note("https://remote.example/notes/1", bob.id, f.post.ApURL)
	act := create(t, "https://remote.example/notes/1/activity", bob.id, top)
	result, err := f.send(t, bob, act, true)
	require.NoError(t, err)
	commented, ok := result.(activitypub.Commented)
	require.True(t, ok, "expected Commented, got %T", result)
	assert.Equal(t, f.post.Id, commented.Comment.PostId)
	assert.Nil(t, commented.Comment.InResponseToId)
	assert.True(t, commented.Comment.PublicVisibility)

	reply := note("https://other.example/notes/9", carol.id, string(top.ID))
	replyAct := create(t, "https://other.example/notes/9/activity", carol.id, reply)
	result, err = f.inbox.Process(ctx, &replyAct)
	require.NoError(t, err)
	nested := result.(activitypub.Commented).Comment
	require.NotNil(t, nested.InResponseToId)
	assert.Equal(t, commented.Comment.Id, *nested.InResponseToId)
	assert.Equal(t, f.post.Id, nested.PostId)
}

func TestCreateCommentFetchesUnknownParent(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	carol := f.person(t, "https://other.example/@/carol/")

	parent := note("https://remote.example/notes/1", bob.id, f.post.ApURL)
	f.fetcher.serve(t, parent.ID, parent)

	reply := note("https://other.example/notes/9", carol.id, string(parent.ID))
	act := create(t, "https://other.example/notes/9/activity", carol.id, reply)
	result, err := f.inbox.Process(context.Background(), &act)
	require.NoError(t, err)

	c := result.(activitypub.Commented).Comment
	require.NotNil(t, c.InResponseToId)
	stored, err := f.db.CommentByApURL(context.Background(), string(parent.ID))
	require.NoError(t, err)
	assert.Equal(t, stored.Id, *c.InResponseToId)
	assert.Equal(t, 2, f.stats(t).Comments)
}

func TestCreateStandaloneNoteIsIgnored(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	act := create(t, "https://remote.example/notes/1/activity", bob.id, note("https://remote.example/notes/1", bob.id, ""))

	result, err := f.inbox.Process(context.Background(), &act)
	require.NoError(t, err)
	assert.Equal(t, activitypub.Other{}, result)
}

func TestRemoteArticleLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.person(t, "https://remote.example/@/bob/")
	carol := f.person(t, "https://remote.example/@/carol/")
	f.group(t, "https://remote.example/~/news/")

	article := activitypub.Article{
		ID:           "https://remote.example/~/news/hello-world/",
		Type:         activitypub.ObjectArticle,
		Name:         "Hello World",
		Content:      "<p>hi</p>",
		AttributedTo: activitypub.Audience{bob.id, "https://remote.example/~/news/"},
		Published:    "2024-03-01T12:00:00Z",
		Tag:          []activitypub.Hashtag{{Type: "Hashtag", Name: "#golang"}},
		Icon:         &activitypub.Image{Type: "Image", URL: "https://remote.example/cover.png", Content: "cover"},
		To:           activitypub.Audience{activitypub.PublicVisibility},
	}
	result, err := f.send(t, bob, create(t, string(article.ID)+"activity", bob.id, article), true)
	require.NoError(t, err)
	post := result.(activitypub.Posted).Post
	assert.Equal(t, "hello-world", post.Slug)
	require.NotNil(t, post.CoverId)

	tags, err := f.db.PostTags(ctx, post.Id)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "golang", tags[0].Tag)

	article.Name = "Hello again"
	update := activitypub.Activity{ID: "https://remote.example/~/news/hello-world/update-1", Type: activitypub.KindUpdate, Actor: bob.id, Object: object(t, article)}
	result, err = f.inbox.Process(ctx, &update)
	require.NoError(t, err)
	assert.Equal(t, "Hello again", result.(activitypub.Posted).Post.Title)

	hijack := update
	hijack.Actor = carol.id
	_, err = f.inbox.Process(ctx, &hijack)
	assert.ErrorIs(t, err, activitypub.ErrForbidden)

	del := activitypub.Activity{ID: "https://remote.example/~/news/hello-world/#delete", Type: activitypub.KindDelete, Actor: bob.id,
		Object: object(t, activitypub.Tombstone{ID: article.ID, Type: activitypub.ObjectTombstone})}
	_, err = f.send(t, bob, del, false)
	require.NoError(t, err)
	_, err = f.db.PostByApURL(ctx, string(article.ID))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArticleWithoutBlogIsUnresolved(t *testing.T) {
	f := newFixture(t)
	bob := f.person(t, "https://remote.example/@/bob/")
	article := activitypub.Article{
		ID:           "https://remote.example/articles/1",
		Type:         activitypub.ObjectArticle,
		Name:         "Orphan",
		AttributedTo: activitypub.Audience{bob.id},
	}

	_, err := f.inbox.Process(context.Background(), &activitypub.Activity{
		ID: "https://remote.example/articles/1/activity", Type: activitypub.KindCreate, Actor: bob.id, Object: object(t, article),
	})
	var re *activitypub.ResolutionError
	assert.True(t, errors.As(err, &re), "expected ResolutionError, got %v", err)
	assert.Equal(t, 1, f.stats(t).Posts, "only the local post exists")
}

func TestDeleteActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.person(t, "https://remote.example/@/bob/")
	act := like("https://remote.example/@/bob/like/1", bob.id, f.post.ApURL)
	_, err := f.send(t, bob, act, true)
	require.NoError(t, err)

	del := activitypub.Activity{ID: "https://remote.example/@/bob/#delete", Type: activitypub.KindDelete, Actor: bob.id, Object: link(string(bob.id))}
	_, err = f.send(t, bob, del, true)
	require.NoError(t, err)
	assert.Equal(t, 0, f.stats(t).RemoteUsers)
	assert.Equal(t, 0, f.stats(t).Likes)

	local := activitypub.Activity{ID: activitypub.Id(f.alice.ApURL + "#delete"), Type: activitypub.KindDelete,
		Actor: activitypub.Id(f.alice.ApURL), Object: link(f.alice.ApURL)}
	_, err = f.inbox.Process(ctx, &local)
	assert.ErrorIs(t, err, activitypub.ErrForbidden)
}

func TestUnhandledActivityIsOther(t *testing.T) {
	f := newFixture(t)
	act := activitypub.Activity{ID: "https://remote.example/block/1", Type: "Block", Actor: "https://remote.example/@/bob/", Object: link(f.alice.ApURL)}

	result, err := f.inbox.Process(context.Background(), &act)
	require.NoError(t, err)
	assert.Equal(t, activitypub.Other{}, result)
}
