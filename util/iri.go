package util

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// UserURL is the ActivityPub id of a local user, e.g. https://example.com/@/alice/
func UserURL(domain string, username string) string {
	return fmt.Sprintf("https://%s/@/%s/", domain, username)
}

// BlogURL is the ActivityPub id of a local blog, e.g. https://example.com/~/tech/
func BlogURL(domain string, name string) string {
	return fmt.Sprintf("https://%s/~/%s/", domain, name)
}

func PostURL(domain string, blog string, slug string) string {
	return fmt.Sprintf("https://%s/~/%s/%s/", domain, blog, slug)
}

func CommentURL(postURL string, id uuid.UUID) string {
	return fmt.Sprintf("%scomment/%s", postURL, id)
}

func TagURL(domain string, tag string) string {
	return fmt.Sprintf("https://%s/tag/%s", domain, tag)
}

func SharedInboxURL(domain string) string {
	return fmt.Sprintf("https://%s/inbox", domain)
}

func InboxURL(actorURL string) string     { return actorURL + "inbox" }
func OutboxURL(actorURL string) string    { return actorURL + "outbox" }
func FollowersURL(actorURL string) string { return actorURL + "followers" }

// ActivityURL builds an id for an activity published by actorURL, e.g.
// https://example.com/@/alice/like/<uuid>
func ActivityURL(actorURL string, kind string) string {
	return fmt.Sprintf("%s%s/%s", actorURL, kind, uuid.New())
}

// Slugify turns a title into a lowercase, dash separated url segment
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
		default:
			dash = true
		}
	}
	return b.String()
}
