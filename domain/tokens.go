package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ApiToken authorizes API calls on behalf of a local user. Scopes look like
// "read", "write", "read:posts" or "write:follows".
type ApiToken struct {
	Id        uuid.UUID
	Value     string
	Scopes    []string
	UserId    uuid.UUID
	CreatedAt time.Time
}

// Can reports whether the token grants the given access ("read" or "write")
// on endpoint. A write scope also grants read.
func (t *ApiToken) Can(access string, endpoint string) bool {
	for _, scope := range t.Scopes {
		what, on, scoped := strings.Cut(scope, ":")
		if scoped && on != endpoint {
			continue
		}
		if what == access || (what == "write" && access == "read") {
			return true
		}
	}
	return false
}

func (t *ApiToken) CanRead(endpoint string) bool  { return t.Can("read", endpoint) }
func (t *ApiToken) CanWrite(endpoint string) bool { return t.Can("write", endpoint) }
