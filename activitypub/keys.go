package activitypub

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
)

const keyBits = 2048

// Keypair holds an actor's PEM encoded RSA keys. PublicPEM is PKIX, PrivatePEM is PKCS#8.
type Keypair struct {
	PublicPEM  string
	PrivatePEM string
}

// GenerateKeypair creates a fresh RSA keypair. There is no partial result:
// failing to generate or encode a key panics.
func GenerateKeypair() *Keypair {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		panic(err)
	}

	priv, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		panic(err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		panic(err)
	}

	return &Keypair{
		PublicPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})),
		PrivatePEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: priv})),
	}
}

// ParsePrivateKey converts a PKCS#8 or PKCS#1 PEM string to *rsa.PrivateKey
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if block.Type == "RSA PRIVATE KEY" {
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return rsaKey, nil
}

// ParsePublicKey converts a PKIX or PKCS#1 PEM string to *rsa.PublicKey
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if block.Type == "RSA PUBLIC KEY" {
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return key, nil
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPubKey, nil
}

// Signer produces signatures on behalf of one actor key.
type Signer interface {
	// KeyID is the public key id, e.g. "https://example.com/@/alice/#main-key"
	KeyID() string
	Sign(data []byte) ([]byte, error)
	PrivateKey() crypto.PrivateKey
}

// KeySigner signs with an RSA key using RSA-SHA256 PKCS#1 v1.5
type KeySigner struct {
	keyID string
	key   *rsa.PrivateKey
}

func NewKeySigner(keyID string, key *rsa.PrivateKey) *KeySigner {
	return &KeySigner{keyID: keyID, key: key}
}

// SignerFromPEM builds the signer of an actor from its ap_url and private key PEM
func SignerFromPEM(actorURL string, privatePEM string) (*KeySigner, error) {
	key, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	return NewKeySigner(KeyIDFor(actorURL), key), nil
}

func (s *KeySigner) KeyID() string                 { return s.keyID }
func (s *KeySigner) PrivateKey() crypto.PrivateKey { return s.key }

func (s *KeySigner) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
}

// KeyVerifier checks RSA-SHA256 signatures against one public key
type KeyVerifier struct {
	key *rsa.PublicKey
}

func NewKeyVerifier(key *rsa.PublicKey) *KeyVerifier {
	return &KeyVerifier{key: key}
}

func (v *KeyVerifier) PublicKey() *rsa.PublicKey { return v.key }

func (v *KeyVerifier) Verify(data []byte, signature []byte) bool {
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest[:], signature) == nil
}

// KeyIDFor returns the main key id of an actor
func KeyIDFor(actorURL string) string {
	return actorURL + "#main-key"
}

// KeyOwner strips the fragment from a key id, leaving the actor id
func KeyOwner(keyID string) Id {
	owner, _, _ := strings.Cut(keyID, "#")
	return Id(owner)
}
