// Package urlsign produces CloudFront custom-policy signed origin URLs.
package urlsign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultExpiry is the lifetime used by SignDefault.
const DefaultExpiry = 6 * time.Hour

// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("urlsign: invalid url")

// Signer signs URLs with one RSA key pair registered at the CDN.
type Signer struct {
	key       *rsa.PrivateKey
	keyPairID string
	now       func() time.Time
}

// New parses privateKeyPEM (PKCS#1 or PKCS#8) and returns a Signer.
func New(privateKeyPEM, keyPairID string) (*Signer, error) {
	if keyPairID == "" {
		return nil, errors.New("urlsign: key pair id is required")
	}
	key, err := parseRSAPrivate(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("urlsign: parse private key: %w", err)
	}
	return &Signer{key: key, keyPairID: keyPairID, now: time.Now}, nil
}

// Sign appends Policy, Signature and Key-Pair-Id to rawURL. The policy grants
// access to every object on the URL's host until expiry.
func (s *Signer) Sign(rawURL string, expiry time.Time) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return "", ErrInvalidURL
	}

	policy := hostPolicy(strings.ToLower(u.Hostname()), expiry)
	digest := sha1.Sum(policy)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA1, digest[:])
	if err != nil {
		return "", fmt.Errorf("urlsign: sign policy: %w", err)
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep +
		"Policy=" + urlSafeBase64(policy) +
		"&Signature=" + urlSafeBase64(sig) +
		"&Key-Pair-Id=" + s.keyPairID, nil
}

// SignDefault signs rawURL with an expiry DefaultExpiry from now.
func (s *Signer) SignDefault(rawURL string) (string, error) {
	return s.Sign(rawURL, s.now().Add(DefaultExpiry))
}

// hostPolicy renders the policy document exactly as the CDN SDKs do,
// including the space after "Statement":.
func hostPolicy(host string, expiry time.Time) []byte {
	return []byte(`{"Statement": [{"Resource":"https://` + host +
		`/*","Condition":{"DateLessThan":{"AWS:EpochTime":` +
		strconv.FormatInt(expiry.Unix(), 10) + `}}}]}`)
}

// urlSafeBase64 is standard base64 with + = / replaced by - _ ~.
func urlSafeBase64(b []byte) string {
	return strings.NewReplacer("+", "-", "=", "_", "/", "~").
		Replace(base64.StdEncoding.EncodeToString(b))
}

func parseRSAPrivate(raw string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid private PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}
