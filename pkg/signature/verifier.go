// Package signature verifies webhook authenticity at the HTTP boundary.
//
// Two verifier variants exist: a timestamped HMAC signature of the raw body
// and a plain shared-secret header. Both compare constant-time. A verifier
// built from an empty secret passes everything through; config logs that at
// startup.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is returned for any verification failure. Callers map
// it to HTTP 401 without exposing which check failed.
var ErrInvalidSignature = errors.New("invalid signature")

// DefaultMaxSkew bounds how old (or future-dated) an HMAC timestamp may be.
const DefaultMaxSkew = 5 * time.Minute

// Verifier validates one request's raw body against its signature header.
type Verifier interface {
	Verify(header string, body []byte) error
}

// HMACVerifier checks headers of the form "t=<unix_seconds>,v1=<hex>",
// where v1 = HMAC_SHA256(secret, "<t>.<body>").
type HMACVerifier struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

// NewHMAC builds an HMAC verifier with the default skew bound.
func NewHMAC(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), maxSkew: DefaultMaxSkew, now: time.Now}
}

// Verify checks the timestamped signature. Passes through when no secret is
// configured.
func (v *HMACVerifier) Verify(header string, body []byte) error {
	if len(v.secret) == 0 {
		return nil
	}
	if header == "" {
		return fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	ts, sig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew > v.maxSkew || skew < -v.maxSkew {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(sig))) != 1 {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}

func parseSignatureHeader(header string) (ts int64, sig string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
			}
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", fmt.Errorf("%w: malformed signature header", ErrInvalidSignature)
	}
	return ts, sig, nil
}

// SharedSecretVerifier compares a header value constant-time against a
// configured secret.
type SharedSecretVerifier struct {
	secret []byte
}

// NewSharedSecret builds a shared-secret verifier.
func NewSharedSecret(secret string) *SharedSecretVerifier {
	return &SharedSecretVerifier{secret: []byte(secret)}
}

// Verify checks the header value. Passes through when no secret is
// configured. The body is unused in this variant.
func (v *SharedSecretVerifier) Verify(header string, _ []byte) error {
	if len(v.secret) == 0 {
		return nil
	}
	if subtle.ConstantTimeCompare(v.secret, []byte(header)) != 1 {
		return fmt.Errorf("%w: secret mismatch", ErrInvalidSignature)
	}
	return nil
}

// Sign produces an HMAC header for body at time t. Used by tests and by
// internal event staging.
func Sign(secret string, t time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", t.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", t.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
