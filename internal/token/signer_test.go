package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s := NewSigner("test-secret")

	tok := s.Sign("hello world")
	payload, err := s.Verify(tok, 30*time.Second)

	assert.NoError(t, err)
	assert.Equal(t, "hello world", payload)
}

func TestVerifyZeroMaxAgeImmediately(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	nowTime := time.Unix(1700000000, 0)
	nowFunc = func() time.Time { return nowTime }

	s := NewSigner("test-secret")
	tok := s.Sign("payload")

	payload, err := s.Verify(tok, 0)
	assert.NoError(t, err)
	assert.Equal(t, "payload", payload)
}

func TestVerifyExpired(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	nowTime := time.Unix(1700000000, 0)
	nowFunc = func() time.Time { return nowTime }

	s := NewSigner("test-secret")
	tok := s.Sign("payload")

	nowTime = nowTime.Add(31 * time.Second)

	_, err := s.Verify(tok, 30*time.Second)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestVerifyFutureTimestampRejected(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	nowTime := time.Unix(1700000000, 0)
	nowFunc = func() time.Time { return nowTime }

	s := NewSigner("test-secret")
	tok := s.Sign("payload")

	nowTime = nowTime.Add(-5 * time.Second)

	_, err := s.Verify(tok, 30*time.Second)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestVerifyTamperedPayload(t *testing.T) {
	s := NewSigner("test-secret")
	tok := s.Sign("payload")

	parts := strings.Split(tok, ".")
	parts[0] = encode("other")
	_, err := s.Verify(strings.Join(parts, "."), time.Minute)

	assert.ErrorIs(t, err, ErrRejected)
}

func TestVerifyWrongKey(t *testing.T) {
	tok := NewSigner("secret-a").Sign("payload")

	_, err := NewSigner("secret-b").Verify(tok, time.Minute)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestVerifyGarbage(t *testing.T) {
	s := NewSigner("test-secret")

	for _, tok := range []string{"", "x", "a.b", "a.b.c.d", "!!.??.##"} {
		_, err := s.Verify(tok, time.Minute)
		assert.ErrorIs(t, err, ErrRejected, tok)
	}
}
