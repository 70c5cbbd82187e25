package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is a person actor. Local users own a private key; remote users are
// cached copies of actors fetched from other instances.
type User struct {
	Id            uuid.UUID
	Username      string
	DisplayName   string
	Summary       string
	Domain        string
	ApURL         string
	Inbox         string
	SharedInbox   string
	Outbox        string
	FollowersURL  string
	PublicKey     string
	PrivateKey    string
	Local         bool
	LastFetchedAt time.Time
	CreatedAt     time.Time
}

func (u *User) IsLocal() bool          { return u.Local }
func (u *User) InboxURL() string       { return u.Inbox }
func (u *User) SharedInboxURL() string { return u.SharedInbox }

// Fqn is the user@domain handle used by webfinger.
func (u *User) Fqn() string {
	return fmt.Sprintf("%s@%s", u.Username, u.Domain)
}

func (u *User) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tApURL: %s \n\tLocal: %t \n\tCREATED_AT: %s", u.Id, u.Username, u.ApURL, u.Local, u.CreatedAt)
}

// Blog is a group actor that posts are published in.
type Blog struct {
	Id            uuid.UUID
	Name          string
	Title         string
	Summary       string
	Domain        string
	ApURL         string
	Inbox         string
	SharedInbox   string
	Outbox        string
	FollowersURL  string
	PublicKey     string
	PrivateKey    string
	Local         bool
	LastFetchedAt time.Time
	CreatedAt     time.Time
}

func (b *Blog) IsLocal() bool          { return b.Local }
func (b *Blog) InboxURL() string       { return b.Inbox }
func (b *Blog) SharedInboxURL() string { return b.SharedInbox }

func (b *Blog) Fqn() string {
	return fmt.Sprintf("%s@%s", b.Name, b.Domain)
}
