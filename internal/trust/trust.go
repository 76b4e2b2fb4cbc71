// Package trust remembers whether a user accepted a relying party's
// trust root, so protocol builders can skip re-asking for a while.
package trust

import (
	"context"
	"errors"

	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/remembered"
)

// Remembered-record type for positive trust-root decisions. Presence
// is the signal; the payload stays empty.
const allowType = "OpenIDAllow"

// Longest a user may remember a decision for.
const maxRememberDays = 7

type Decision int

const (
	// Ask means no standing decision exists; the user decides now.
	Ask Decision = iota
	Allow
	Deny
)

// Decider resolves trust-root decisions: operator allow/deny lists
// first, then the user's remembered choice, then Ask.
type Decider struct {
	store      remembered.Store
	trusted    map[string]bool
	nonTrusted map[string]bool
}

func NewDecider(store remembered.Store, trustedRoots, nonTrustedRoots []string) *Decider {
	d := &Decider{
		store:      store,
		trusted:    map[string]bool{},
		nonTrusted: map[string]bool{},
	}
	for _, r := range trustedRoots {
		d.trusted[r] = true
	}
	for _, r := range nonTrustedRoots {
		d.nonTrusted[r] = true
	}
	return d
}

func (d *Decider) Check(ctx context.Context, module, username, trustRoot string) Decision {
	if d.nonTrusted[trustRoot] {
		logger.Warn("blacklisted trust root attempted", map[string]any{
			"trust_root": trustRoot,
		})
		return Deny
	}
	if d.trusted[trustRoot] {
		return Allow
	}

	_, err := d.store.Get(ctx, allowType, module, username, trustRoot)
	if err == nil {
		logger.Debug("user previously remembered root as trusted", map[string]any{
			"trust_root": trustRoot,
		})
		return Allow
	}
	if !errors.Is(err, remembered.ErrNotFound) {
		logger.Error("trust lookup failed", map[string]any{
			"trust_root": trustRoot, "error": err.Error(),
		})
	}
	return Ask
}

// Remember stores a positive decision for the given number of days.
// Out-of-range day counts are treated as "do not remember".
func (d *Decider) Remember(ctx context.Context, module, username, trustRoot string, days int) error {
	if days <= 0 || days > maxRememberDays {
		return nil
	}
	return remembered.RememberForDays(ctx, d.store, allowType, days, "",
		module, username, trustRoot)
}
