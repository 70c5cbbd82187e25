package domain

import (
	"time"

	"github.com/google/uuid"
)

type Post struct {
	Id               uuid.UUID
	BlogId           uuid.UUID
	Slug             string
	Title            string
	Subtitle         string
	Content          string
	Source           string
	License          string
	Published        bool
	ApURL            string
	CoverId          *uuid.UUID
	PublicVisibility bool
	Audience         []string
	CreatedAt        time.Time
	EditedAt         *time.Time
}

// Tag is a hashtag or a plain tag attached to a post
type Tag struct {
	Id        uuid.UUID
	Tag       string
	IsHashtag bool
	PostId    uuid.UUID
}

// Media is a remote image, used as post cover
type Media struct {
	Id             uuid.UUID
	RemoteURL      string
	AltText        string
	Sensitive      bool
	ContentWarning string
	OwnerId        uuid.UUID
	CreatedAt      time.Time
}

type Comment struct {
	Id               uuid.UUID
	Content          string
	InResponseToId   *uuid.UUID
	PostId           uuid.UUID
	AuthorId         uuid.UUID
	ApURL            string
	Sensitive        bool
	SpoilerText      string
	PublicVisibility bool
	Audience         []string
	CreatedAt        time.Time
}
