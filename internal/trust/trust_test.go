package trust

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FedOAuth/FedOAuth/internal/remembered"
)

func TestCheckOperatorLists(t *testing.T) {
	d := NewDecider(remembered.NewMemStore(),
		[]string{"https://good.example.com/"},
		[]string{"https://evil.example.com/"})

	ctx := context.TODO()
	assert.Equal(t, Allow, d.Check(ctx, "local", "alice", "https://good.example.com/"))
	assert.Equal(t, Deny, d.Check(ctx, "local", "alice", "https://evil.example.com/"))
	assert.Equal(t, Ask, d.Check(ctx, "local", "alice", "https://other.example.com/"))
}

func TestDenyListWinsOverRememberedDecision(t *testing.T) {
	store := remembered.NewMemStore()
	d := NewDecider(store, nil, []string{"https://evil.example.com/"})

	ctx := context.TODO()
	require.NoError(t, remembered.RememberForDays(ctx, store, allowType, 7, "",
		"local", "alice", "https://evil.example.com/"))

	assert.Equal(t, Deny, d.Check(ctx, "local", "alice", "https://evil.example.com/"))
}

func TestRememberedDecisionAllows(t *testing.T) {
	d := NewDecider(remembered.NewMemStore(), nil, nil)
	ctx := context.TODO()

	root := "https://rp.example.com/"
	assert.Equal(t, Ask, d.Check(ctx, "local", "alice", root))

	require.NoError(t, d.Remember(ctx, "local", "alice", root, 3))
	assert.Equal(t, Allow, d.Check(ctx, "local", "alice", root))

	// Scoped to the user and module that decided.
	assert.Equal(t, Ask, d.Check(ctx, "local", "bob", root))
	assert.Equal(t, Ask, d.Check(ctx, "directory", "alice", root))
}

func TestRememberRejectsOutOfRangeDays(t *testing.T) {
	d := NewDecider(remembered.NewMemStore(), nil, nil)
	ctx := context.TODO()

	root := "https://rp.example.com/"
	require.NoError(t, d.Remember(ctx, "local", "alice", root, 0))
	assert.Equal(t, Ask, d.Check(ctx, "local", "alice", root))

	require.NoError(t, d.Remember(ctx, "local", "alice", root, -2))
	assert.Equal(t, Ask, d.Check(ctx, "local", "alice", root))

	require.NoError(t, d.Remember(ctx, "local", "alice", root, 30))
	assert.Equal(t, Ask, d.Check(ctx, "local", "alice", root))

	require.NoError(t, d.Remember(ctx, "local", "alice", root, maxRememberDays))
	assert.Equal(t, Allow, d.Check(ctx, "local", "alice", root))
}
