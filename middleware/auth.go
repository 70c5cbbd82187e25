package middleware

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/deemkeen/quill/util"
	gossh "golang.org/x/crypto/ssh"
)

// AdminKeys is the set of public keys allowed into the monitor. Entries are
// either authorized_keys lines or the hex sha256 of such a line without its
// comment.
type AdminKeys struct {
	hashes map[string]bool
}

func NewAdminKeys(entries []string) *AdminKeys {
	k := &AdminKeys{hashes: make(map[string]bool)}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if pk, _, _, _, err := gossh.ParseAuthorizedKey([]byte(entry)); err == nil {
			k.hashes[util.PkToHash(util.PublicKeyToString(pk))] = true
			continue
		}
		k.hashes[strings.ToLower(entry)] = true
	}
	return k
}

func (k *AdminKeys) Len() int {
	return len(k.hashes)
}

func (k *AdminKeys) Allowed(pk ssh.PublicKey) bool {
	if pk == nil {
		return false
	}
	return k.hashes[util.PkToHash(util.PublicKeyToString(pk))]
}

// PublicKeyHandler rejects non-admin keys during the handshake.
func (k *AdminKeys) PublicKeyHandler() ssh.PublicKeyHandler {
	return func(ctx ssh.Context, pk ssh.PublicKey) bool {
		allowed := k.Allowed(pk)
		if !allowed {
			log.Debugf("Auth: Rejected key %s from %s", gossh.FingerprintSHA256(pk), ctx.RemoteAddr())
		}
		return allowed
	}
}

func AuthMiddleware(keys *AdminKeys) wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			if !keys.Allowed(s.PublicKey()) {
				log.Warnf("Auth: %s@%s has no admin key", s.User(), s.RemoteAddr())
				wish.Fatalln(s, "this key is not allowed to open the monitor")
				return
			}
			util.LogPublicKey(s)
			h(s)
		}
	}
}
