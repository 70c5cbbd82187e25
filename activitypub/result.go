package activitypub

import "github.com/deemkeen/quill/domain"

// InboxResult is the local effect of a processed activity. The set of
// variants is closed: Commented, Followed, Liked, Reshared, Posted, Other.
type InboxResult interface {
	inboxResult()
}

type Commented struct{ Comment *domain.Comment }

// Followed reports a follow of a local actor. Replayed is set when the
// activity was already stored and nothing changed.
type Followed struct {
	Follow   *domain.Follow
	Replayed bool
}

type Liked struct{ Like *domain.Like }
type Reshared struct{ Reshare *domain.Reshare }
type Posted struct{ Post *domain.Post }

// Other covers activities with no reportable entity: undo, delete, accept,
// actor updates and anything the engine does not handle.
type Other struct{}

func (Commented) inboxResult() {}
func (Followed) inboxResult()  {}
func (Liked) inboxResult()     {}
func (Reshared) inboxResult()  {}
func (Posted) inboxResult()    {}
func (Other) inboxResult()     {}

// ResultName is used for logs and metric labels.
func ResultName(r InboxResult) string {
	switch r.(type) {
	case Commented:
		return "commented"
	case Followed:
		return "followed"
	case Liked:
		return "liked"
	case Reshared:
		return "reshared"
	case Posted:
		return "posted"
	default:
		return "other"
	}
}
