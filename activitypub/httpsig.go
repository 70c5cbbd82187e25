package activitypub

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-fed/httpsig"
)

var signedHeaders = []string{"(request-target)", "host", "date", "digest"}

// KeyResolver looks up the public key behind a key id. With refresh set
// it bypasses any cached copy.
type KeyResolver interface {
	PublicKey(ctx context.Context, keyID string, refresh bool) (*rsa.PublicKey, error)
}

// Digest computes the Digest header value for a request body
func Digest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

// SignRequest sets Date, Digest and Host on req and signs them together with
// the request target.
func SignRequest(req *http.Request, body []byte, signer Signer) error {
	req.Header.Set("Date", now().UTC().Format(http.TimeFormat))
	req.Header.Set("Digest", Digest(body))
	req.Header.Set("Host", req.URL.Host)

	s, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	// Digest is already set, so the library must not add it again.
	return s.SignRequest(signer.PrivateKey(), signer.KeyID(), req, nil)
}

// VerifyRequest checks the HTTP signature of an incoming request and
// returns its validity along with the actor owning the signing key.
func VerifyRequest(ctx context.Context, req *http.Request, body []byte, keys KeyResolver) (SignatureValidity, Id) {
	if req.Header.Get("Signature") == "" {
		return Absent, ""
	}

	date, err := http.ParseTime(req.Header.Get("Date"))
	if err != nil {
		return Outdated, ""
	}
	if skew := now().Sub(date); skew > signatureMaxSkew || skew < -signatureMaxSkew {
		return Outdated, ""
	}

	// net/http moves Host out of the header map on the server side
	if req.Header.Get("Host") == "" && req.Host != "" {
		req.Header.Set("Host", req.Host)
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return Invalid, ""
	}
	keyID := verifier.KeyId()
	owner := KeyOwner(keyID)

	key, err := keys.PublicKey(ctx, keyID, false)
	if err != nil {
		return Invalid, owner
	}
	if err := verifier.Verify(key, httpsig.RSA_SHA256); err != nil {
		// the actor may have rotated its key since we cached it
		key, err = keys.PublicKey(ctx, keyID, true)
		if err != nil || verifier.Verify(key, httpsig.RSA_SHA256) != nil {
			return Invalid, owner
		}
	}

	digest := req.Header.Get("Digest")
	if digest == "" || !headerSigned(req.Header.Get("Signature"), "digest") {
		return ValidNoDigest, owner
	}
	if !digestMatches(digest, body) {
		return Invalid, owner
	}
	return Valid, owner
}

// headerSigned reports whether name is listed in the headers parameter of a
// Signature header. Without that parameter only Date is signed.
func headerSigned(signature string, name string) bool {
	for _, param := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || k != "headers" {
			continue
		}
		for _, h := range strings.Fields(strings.Trim(v, `"`)) {
			if strings.EqualFold(h, name) {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(name, "date")
}

func digestMatches(header string, body []byte) bool {
	matched := false
	for _, part := range strings.Split(header, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return false
		}
		var sum []byte
		switch strings.ToUpper(algo) {
		case "SHA-256":
			h := sha256.Sum256(body)
			sum = h[:]
		case "SHA-512":
			h := sha512.Sum512(body)
			sum = h[:]
		default:
			continue
		}
		expected, err := base64.StdEncoding.DecodeString(value)
		if err != nil || subtle.ConstantTimeCompare(expected, sum) != 1 {
			return false
		}
		matched = true
	}
	return matched
}
