package domain

import (
	"time"

	"github.com/google/uuid"
)

// Follow represents a follow relationship. FollowingId points at either a
// user or a blog.
type Follow struct {
	Id          uuid.UUID
	FollowerId  uuid.UUID
	FollowingId uuid.UUID
	ApURL       string
	Accepted    bool
	CreatedAt   time.Time
}

// Like represents a like on a post
type Like struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	PostId    uuid.UUID
	ApURL     string
	CreatedAt time.Time
}

// Reshare represents an Announce of a post
type Reshare struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	PostId    uuid.UUID
	ApURL     string
	CreatedAt time.Time
}

type NotificationKind string

const (
	NotificationFollow  NotificationKind = "follow"
	NotificationLike    NotificationKind = "like"
	NotificationReshare NotificationKind = "reshare"
	NotificationComment NotificationKind = "comment"
	NotificationMention NotificationKind = "mention"
)

// Notification tells a local user that a remote actor interacted with them.
type Notification struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Kind      NotificationKind
	ObjectId  uuid.UUID
	ActorId   uuid.UUID
	Read      bool
	CreatedAt time.Time
}

// NotificationView is a notification joined with the names the monitor shows.
type NotificationView struct {
	Notification
	Recipient string
	ActorURL  string
}

// Stats are the instance counters shown in the admin monitor.
type Stats struct {
	LocalUsers  int
	RemoteUsers int
	Blogs       int
	Posts       int
	Comments    int
	Follows     int
	Likes       int
	Reshares    int
}

// DeliveryQueueItem is a signed activity whose delivery to one inbox failed
// and is waiting for another attempt.
type DeliveryQueueItem struct {
	Id          uuid.UUID
	Inbox       string
	KeyID       string
	Activity    string
	Attempts    int
	NextRetryAt time.Time
	CreatedAt   time.Time
}
