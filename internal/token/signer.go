package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrRejected covers every way a token can be bad: forged signature,
// mangled structure, missing timestamp or age past the caller's window.
// Callers must treat a rejected token exactly like an absent one.
var ErrRejected = errors.New("token rejected")

var nowFunc = time.Now

// Signer produces timestamped, tamper-evident tokens from a server-wide
// secret. Tokens carry their issue time so every verification is forced
// to state how old a token it is willing to accept.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign wraps payload as payload.timestamp.signature, each part
// base64url encoded.
func (s *Signer) Sign(payload string) string {
	ts := strconv.FormatInt(nowFunc().Unix(), 10)
	body := encode(payload) + "." + encode(ts)
	return body + "." + encode(s.mac(body))
}

// Verify checks the signature and the embedded timestamp and returns the
// original payload. maxAge counts from the moment of signing.
func (s *Signer) Verify(tok string, maxAge time.Duration) (string, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: malformed", ErrRejected)
	}

	body := parts[0] + "." + parts[1]
	sig, err := decode(parts[2])
	if err != nil || !hmac.Equal([]byte(sig), []byte(s.mac(body))) {
		return "", fmt.Errorf("%w: bad signature", ErrRejected)
	}

	tsRaw, err := decode(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad timestamp", ErrRejected)
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad timestamp", ErrRejected)
	}

	age := nowFunc().Sub(time.Unix(ts, 0))
	if age < 0 || age > maxAge {
		return "", fmt.Errorf("%w: expired", ErrRejected)
	}

	payload, err := decode(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad payload", ErrRejected)
	}
	return payload, nil
}

func (s *Signer) mac(body string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(body))
	return string(h.Sum(nil))
}

func encode(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}

func decode(v string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(v)
	return string(b), err
}
