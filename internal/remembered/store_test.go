package remembered

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompositeKeyNoCollisions(t *testing.T) {
	// "a-b" + "c" must not collide with "a" + "b-c", and neither may
	// collide with components that contain the prefix characters.
	a := compositeKey([]string{"a-b", "c"})
	b := compositeKey([]string{"a", "b-c"})
	c := compositeKey([]string{"a", "b", "c"})
	d := compositeKey([]string{"1:a", "b"})
	e := compositeKey([]string{"1", ":ab"})

	seen := map[string]bool{}
	for _, k := range []string{a, b, c, d, e} {
		assert.False(t, seen[k], k)
		seen[k] = true
	}
}

func TestRememberAndGet(t *testing.T) {
	ctx := context.TODO()
	s := NewMemStore()

	err := s.Remember(ctx, "OpenIDAllow", 3*24*time.Hour, "", "fas", "alice", "https://rp.example")
	assert.NoError(t, err)

	rec, err := s.Get(ctx, "OpenIDAllow", "fas", "alice", "https://rp.example")
	assert.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestGetMissing(t *testing.T) {
	s := NewMemStore()

	rec, err := s.Get(context.TODO(), "OpenIDAllow", "fas", "nobody", "https://rp.example")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, rec)
}

func TestExpiredRecordDeletedOnGet(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	nowTime := time.Unix(1700000000, 0)
	nowFunc = func() time.Time { return nowTime }

	ctx := context.TODO()
	s := NewMemStore()

	err := s.Remember(ctx, "OpenIDAllow", 3*24*time.Hour, "", "fas", "alice", "https://rp.example")
	assert.NoError(t, err)

	nowTime = nowTime.Add(3*24*time.Hour + time.Second)

	rec, err := s.Get(ctx, "OpenIDAllow", "fas", "alice", "https://rp.example")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, rec)

	// No resurrection even if the clock rolls back.
	nowTime = nowTime.Add(-24 * time.Hour)
	_, err = s.Get(ctx, "OpenIDAllow", "fas", "alice", "https://rp.example")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRememberForeverNeverExpires(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	nowTime := time.Unix(1700000000, 0)
	nowFunc = func() time.Time { return nowTime }

	ctx := context.TODO()
	s := NewMemStore()

	err := s.RememberForever(ctx, "authses", "payload", "mod", "sesid")
	assert.NoError(t, err)

	nowTime = nowTime.Add(10 * 365 * 24 * time.Hour)

	rec, err := s.Get(ctx, "authses", "mod", "sesid")
	assert.NoError(t, err)
	assert.Equal(t, "payload", rec.Data)
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	nowTime := time.Unix(1700000000, 0)
	nowFunc = func() time.Time { return nowTime }

	ctx := context.TODO()
	s := NewMemStore()

	assert.NoError(t, s.Remember(ctx, "authses", time.Minute, "a", "k1"))
	assert.NoError(t, s.Remember(ctx, "authses", time.Hour, "b", "k2"))
	assert.NoError(t, s.RememberForever(ctx, "authses", "c", "k3"))

	nowTime = nowTime.Add(30 * time.Minute)

	removed, err := s.Cleanup(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.Get(ctx, "authses", "k2")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "authses", "k3")
	assert.NoError(t, err)
}

func TestOverwriteUpdatesExpiry(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	nowTime := time.Unix(1700000000, 0)
	nowFunc = func() time.Time { return nowTime }

	ctx := context.TODO()
	s := NewMemStore()

	assert.NoError(t, s.Remember(ctx, "authses", time.Minute, "old", "k"))
	assert.NoError(t, s.Remember(ctx, "authses", time.Hour, "new", "k"))

	nowTime = nowTime.Add(10 * time.Minute)

	rec, err := s.Get(ctx, "authses", "k")
	assert.NoError(t, err)
	assert.Equal(t, "new", rec.Data)
}
