package activitypub_test

import (
	"context"
	"testing"

	"github.com/deemkeen/quill/activitypub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishPostReachesBlogFollowers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.person(t, "https://remote.example/@/bob/")
	follow := activitypub.Activity{ID: "https://remote.example/@/bob/follow/1", Type: activitypub.KindFollow, Actor: bob.id, Object: link(f.blog.ApURL)}
	_, err := f.inbox.Process(ctx, &follow)
	require.NoError(t, err)
	f.inbox.Wait()

	post, err := f.outbox.PublishPost(ctx, f.alice, f.blog, activitypub.PostDraft{Title: "First post", Content: "<p>again</p>"})
	require.NoError(t, err)
	assert.NotEqual(t, f.post.Slug, post.Slug, "slugs stay unique per blog")

	received := f.remote.all()
	require.Len(t, received, 2, "accept and create")
	create := received[1]
	assert.Equal(t, "Create", create["type"])
	assert.Equal(t, post.ApURL+"activity", create["id"])
	article, ok := create["object"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Article", article["type"])
	assert.Contains(t, article["attributedTo"], f.blog.ApURL)
	assert.NotNil(t, create["signature"])
}

func TestLikeRemoteArticleNotifiesAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.person(t, "https://remote.example/@/bob/")
	f.group(t, "https://remote.example/~/news/")
	article := activitypub.Article{
		ID:           "https://remote.example/~/news/hello/",
		Type:         activitypub.ObjectArticle,
		Name:         "Hello",
		AttributedTo: activitypub.Audience{bob.id, "https://remote.example/~/news/"},
		To:           activitypub.Audience{activitypub.PublicVisibility},
	}
	result, err := f.inbox.Process(ctx, &activitypub.Activity{ID: "https://remote.example/~/news/hello/activity", Type: activitypub.KindCreate, Actor: bob.id, Object: object(t, article)})
	require.NoError(t, err)
	post := result.(activitypub.Posted).Post

	like, err := f.outbox.Like(ctx, f.alice, post)
	require.NoError(t, err)
	again, err := f.outbox.Like(ctx, f.alice, post)
	require.NoError(t, err)
	assert.Equal(t, like.Id, again.Id)

	received := f.remote.all()
	require.Len(t, received, 1, "liking twice sends one Like")
	assert.Equal(t, "Like", received[0]["type"])
	assert.Equal(t, string(article.ID), received[0]["object"])

	require.NoError(t, f.outbox.Unlike(ctx, f.alice, post))
	received = f.remote.all()
	require.Len(t, received, 2)
	assert.Equal(t, "Undo", received[1]["type"])
	assert.Equal(t, 0, f.stats(t).Likes)
}

func TestFollowRemoteStaysPendingUntilAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.person(t, "https://remote.example/@/bob/")

	follow, err := f.outbox.Follow(ctx, f.alice, bob.id)
	require.NoError(t, err)
	assert.False(t, follow.Accepted)

	received := f.remote.all()
	require.Len(t, received, 1)
	assert.Equal(t, "Follow", received[0]["type"])
	assert.Equal(t, follow.ApURL, received[0]["id"])

	accept := activitypub.Activity{ID: "https://remote.example/@/bob/accept/1", Type: activitypub.KindAccept, Actor: bob.id, Object: link(follow.ApURL)}
	_, err = f.send(t, bob, accept, true)
	require.NoError(t, err)

	stored, err := f.db.FollowByApURL(ctx, follow.ApURL)
	require.NoError(t, err)
	assert.True(t, stored.Accepted)
}

func TestAcceptFromWrongActorIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.person(t, "https://remote.example/@/bob/")
	carol := f.person(t, "https://remote.example/@/carol/")

	follow, err := f.outbox.Follow(ctx, f.alice, bob.id)
	require.NoError(t, err)

	accept := activitypub.Activity{ID: "https://remote.example/@/carol/accept/1", Type: activitypub.KindAccept, Actor: carol.id, Object: link(follow.ApURL)}
	_, err = f.inbox.Process(ctx, &accept)
	assert.ErrorIs(t, err, activitypub.ErrForbidden)
}

func TestFollowLocalIsAcceptedImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	follow, err := f.outbox.Follow(ctx, f.alice, activitypub.Id(f.blog.ApURL))
	require.NoError(t, err)
	assert.True(t, follow.Accepted)
	assert.Empty(t, f.remote.all())

	require.NoError(t, f.outbox.Unfollow(ctx, f.alice, activitypub.Id(f.blog.ApURL)))
	assert.Equal(t, 0, f.stats(t).Follows)
}

func TestUpdatePostRequiresAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mallory, err := f.db.CreateLocalUser(ctx, "example.com", "mallory", "Mallory", activitypub.GenerateKeypair())
	require.NoError(t, err)

	_, err = f.outbox.UpdatePost(ctx, mallory, f.post, activitypub.PostDraft{Title: "Mine now"})
	assert.ErrorIs(t, err, activitypub.ErrForbidden)

	updated, err := f.outbox.UpdatePost(ctx, f.alice, f.post, activitypub.PostDraft{Title: "Edited", Content: "<p>new</p>"})
	require.NoError(t, err)
	assert.NotNil(t, updated.EditedAt)
}

func TestLocalSigner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	signer, err := f.outbox.LocalSigner(ctx, activitypub.KeyIDFor(f.alice.ApURL))
	require.NoError(t, err)
	assert.Equal(t, activitypub.KeyIDFor(f.alice.ApURL), signer.KeyID())

	_, err = f.outbox.LocalSigner(ctx, "https://remote.example/@/bob/#main-key")
	assert.Error(t, err)
}

func TestLocalDocuments(t *testing.T) {
	f := newFixture(t)

	person := activitypub.UserDocument(f.alice)
	assert.Equal(t, activitypub.ObjectPerson, person.Type)
	assert.Equal(t, "Alice", person.Name)
	assert.Equal(t, activitypub.KeyIDFor(f.alice.ApURL), person.PublicKey.ID)
	assert.Equal(t, f.alice.SharedInbox, person.Endpoints.SharedInbox)

	group := activitypub.BlogDocument(f.blog)
	assert.True(t, group.IsGroup())
	assert.Equal(t, "notes", group.PreferredUsername)
	assert.Equal(t, f.blog.FollowersURL, group.Followers)

	article, err := f.outbox.Article(context.Background(), f.post)
	require.NoError(t, err)
	assert.Equal(t, activitypub.Id(f.post.ApURL), article.ID)
	assert.Equal(t, "First post", article.Name)
	assert.Equal(t, activitypub.Audience{activitypub.Id(f.alice.ApURL), activitypub.Id(f.blog.ApURL)}, article.AttributedTo)
	require.Len(t, article.Tag, 1)
	assert.Equal(t, "#go", article.Tag[0].Name)
	assert.NotNil(t, article.Context)
}
