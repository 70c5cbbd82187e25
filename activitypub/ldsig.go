package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

const (
	signatureType    = "RsaSignature2017"
	identityContext  = "https://w3id.org/identity/v1"
	signatureMaxSkew = 12 * time.Hour
)

var now = time.Now

// Sign attaches an RsaSignature2017 block to doc and returns it. The
// signature covers the serialized options and the serialized document
// without its signature member.
func Sign(doc map[string]interface{}, signer Signer) (map[string]interface{}, error) {
	created := now().UTC().Format(time.RFC3339)

	tbs, err := toBeSigned(doc, created)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign([]byte(tbs))
	if err != nil {
		return nil, fmt.Errorf("failed to sign document: %w", err)
	}

	doc["signature"] = map[string]interface{}{
		"type":           signatureType,
		"creator":        signer.KeyID(),
		"created":        created,
		"signatureValue": base64.StdEncoding.EncodeToString(sig),
	}
	return doc, nil
}

// Verifier checks a raw signature over data.
type Verifier interface {
	Verify(data []byte, signature []byte) bool
}

// Verify checks the signature block of doc. Any missing or malformed
// piece, or a creation time more than 12h away from now, fails.
func Verify(doc map[string]interface{}, verifier Verifier) bool {
	block, ok := doc["signature"].(map[string]interface{})
	if !ok {
		return false
	}
	value, ok := block["signatureValue"].(string)
	if !ok {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return false
	}
	created, ok := block["created"].(string)
	if !ok {
		return false
	}
	at, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return false
	}
	if skew := now().Sub(at); skew > signatureMaxSkew || skew < -signatureMaxSkew {
		return false
	}

	tbs, err := toBeSigned(doc, created)
	if err != nil {
		return false
	}
	return verifier.Verify([]byte(tbs), sig)
}

// SignatureCreator returns the key id named in doc's signature block.
func SignatureCreator(doc map[string]interface{}) (string, bool) {
	block, ok := doc["signature"].(map[string]interface{})
	if !ok {
		return "", false
	}
	creator, ok := block["creator"].(string)
	return creator, ok && creator != ""
}

func toBeSigned(doc map[string]interface{}, created string) (string, error) {
	options := map[string]interface{}{
		"@context": identityContext,
		"created":  created,
	}
	optionsJSON, err := serialize(options)
	if err != nil {
		return "", err
	}

	body := doc
	if _, signed := doc["signature"]; signed {
		body = make(map[string]interface{}, len(doc))
		for k, v := range doc {
			if k != "signature" {
				body[k] = v
			}
		}
	}
	docJSON, err := serialize(body)
	if err != nil {
		return "", err
	}

	return hashHex(optionsJSON) + hashHex(docJSON), nil
}

// serialize renders compact JSON with sorted keys and no HTML escaping.
// There is no JSON-LD canonicalization: the hash is over these exact bytes.
// U+2028 and U+2029 are still written as \u2028 and \u2029, and invalid
// UTF-8 becomes \ufffd, so a peer that emits those raw hashes differently.
func serialize(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
