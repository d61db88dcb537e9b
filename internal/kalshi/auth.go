// Package kalshi provides authentication and a signed REST client for the
// Kalshi exchange API.
package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Auth header names expected by the exchange.
const (
	HeaderKey       = "KALSHI-ACCESS-KEY"
	HeaderTimestamp = "KALSHI-ACCESS-TIMESTAMP"
	HeaderSignature = "KALSHI-ACCESS-SIGNATURE"
)

var (
	// ErrNoAPIKey is returned when the API key id credential is absent.
	ErrNoAPIKey = errors.New("kalshi: api key id is not configured")

	// ErrNoPrivateKey is returned when the private key material is absent.
	ErrNoPrivateKey = errors.New("kalshi: private signing key is not configured")
)

// KeyFormatError reports a private key that is not in the supported PKCS#8
// container. Only PKCS#8 is accepted; other containers must be converted.
type KeyFormatError struct {
	Reason string
}

func (e *KeyFormatError) Error() string {
	return fmt.Sprintf(
		"kalshi: unsupported private key container (%s); convert the key to PKCS#8 with: openssl pkcs8 -topk8 -nocrypt -in old.pem -out key.pem",
		e.Reason,
	)
}

// Keys lazily imports the configured PEM private key and caches it for the
// process lifetime. Parsing is pure, so the key object is created at most
// once and shared by all requests.
type Keys struct {
	pem string

	once sync.Once
	key  *rsa.PrivateKey
	err  error
}

// NewKeys creates a Keys over the given PEM-encoded key material.
func NewKeys(pemData string) *Keys {
	return &Keys{pem: pemData}
}

// Configured reports whether key material was supplied at all.
func (k *Keys) Configured() bool {
	return strings.TrimSpace(k.pem) != ""
}

// Get returns the cached private key, importing it on first call.
func (k *Keys) Get() (*rsa.PrivateKey, error) {
	k.once.Do(func() {
		k.key, k.err = parsePrivateKey(k.pem)
	})
	return k.key, k.err
}

// parsePrivateKey strips the PEM armor, base64-decodes the body and parses
// it as a PKCS#8 RSA private key.
func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(pemData) == "" {
		return nil, ErrNoPrivateKey
	}

	var b64 strings.Builder
	for _, line := range strings.Split(pemData, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		b64.WriteString(line)
	}

	der, err := base64.StdEncoding.DecodeString(b64.String())
	if err != nil {
		return nil, &KeyFormatError{Reason: "body is not base64"}
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, &KeyFormatError{Reason: "not PKCS#8"}
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, &KeyFormatError{Reason: "not an RSA key"}
	}

	return rsaKey, nil
}

// Signer produces per-request authentication headers. Every call signs a
// fresh timestamp; signatures are never reused across requests.
type Signer struct {
	keyID string
	keys  *Keys
}

// NewSigner creates a Signer for the given key id and key cache.
func NewSigner(keyID string, keys *Keys) *Signer {
	return &Signer{keyID: keyID, keys: keys}
}

// Configured reports whether both credentials are present.
func (s *Signer) Configured() bool {
	return s.keyID != "" && s.keys.Configured()
}

// Sign generates the three exchange auth headers for a request.
// Message format: timestamp_ms + method + path (query string excluded).
func (s *Signer) Sign(method, path string) (map[string]string, error) {
	if s.keyID == "" {
		return nil, ErrNoAPIKey
	}

	key, err := s.keys.Get()
	if err != nil {
		return nil, err
	}

	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	timestampMs := time.Now().UnixMilli()
	message := fmt.Sprintf("%d%s%s", timestampMs, method, path)
	hashed := sha256.Sum256([]byte(message))

	signature, err := rsa.SignPSS(
		rand.Reader,
		key,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}

	return map[string]string{
		HeaderKey:       s.keyID,
		HeaderTimestamp: fmt.Sprintf("%d", timestampMs),
		HeaderSignature: base64.StdEncoding.EncodeToString(signature),
	}, nil
}
