package auth

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/remembered"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

// Remembered-record type for auth-session continuation.
const authSessionType = "authses"

var nowFunc = time.Now

// Base carries the behavior every backend shares: backend-scoped
// transaction keys, login-success bookkeeping and the auth-session
// continuation that lets users skip re-entering credentials within the
// configured window.
type Base struct {
	name             string
	emailAuthDomains []string
	reauthTimeout    time.Duration
	remembered       remembered.Store
}

func NewBase(name string, emailAuthDomains []string, reauthTimeout time.Duration, rem remembered.Store) Base {
	return Base{
		name:             name,
		emailAuthDomains: emailAuthDomains,
		reauthTimeout:    reauthTimeout,
		remembered:       rem,
	}
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) keyLoggedIn() string  { return b.name + "_loggedin" }
func (b *Base) keyUser() string      { return b.name + "_user" }
func (b *Base) keyLastLogin() string { return b.name + "_last_login" }
func (b *Base) authSesCookie() string {
	return b.name + "_auth_ses"
}

// SaveSuccess stores the identity under backend-scoped transaction
// keys. With remember set it additionally opens an auth-session
// continuation: a remembered record plus a signed session-id cookie
// with the reauth timeout as TTL.
func (b *Base) SaveSuccess(trc *transaction.Context, id *Identity, remember bool) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}

	values := trc.Values()
	values[b.keyLoggedIn()] = true
	values[b.keyUser()] = string(raw)
	values[b.keyLastLogin()] = nowFunc().Format(time.RFC3339)

	if remember {
		authsesid := strings.ReplaceAll(uuid.NewString(), "-", "")
		err := b.remembered.Remember(trc.Request().Context(),
			authSessionType,
			b.reauthTimeout,
			string(raw),
			b.name, authsesid)
		if err != nil {
			return err
		}
		trc.SetCookie(b.authSesCookie(),
			trc.Signer().Sign(authsesid),
			b.reauthTimeout)
		logger.Debug("auth session remembered", map[string]any{
			"module": b.name,
		})
	}

	return trc.Save()
}

// LoggedIn first checks the live transaction flags, then falls back to
// the continuation cookie. Any failure on the fallback path clears the
// stale cookie and reports not logged in.
func (b *Base) LoggedIn(trc *transaction.Context) bool {
	if trc.Tr().GetBool(b.keyLoggedIn()) {
		return true
	}

	raw, err := trc.Request().Cookie(b.authSesCookie())
	if err != nil || raw.Value == "" {
		return false
	}

	// The timeout that matters is the one configured as of this
	// request, not whenever the cookie was set.
	authsesid, err := trc.Signer().Verify(raw.Value, b.reauthTimeout)
	if err != nil {
		b.dropAuthSession(trc)
		return false
	}

	rec, err := b.remembered.Get(trc.Request().Context(),
		authSessionType, b.name, authsesid)
	if err != nil {
		b.dropAuthSession(trc)
		return false
	}

	var id Identity
	if err := json.Unmarshal([]byte(rec.Data), &id); err != nil {
		b.dropAuthSession(trc)
		return false
	}

	// Re-populate the transaction without re-issuing the cookie, so
	// the continuation keeps its original expiry.
	if err := b.SaveSuccess(trc, &id, false); err != nil {
		logger.Error("failed to restore auth session", map[string]any{
			"module": b.name, "error": err.Error(),
		})
		return false
	}
	return true
}

func (b *Base) dropAuthSession(trc *transaction.Context) {
	trc.ClearCookie(b.authSesCookie())
}

// User returns the identity stored for this backend in the current
// transaction.
func (b *Base) User(trc *transaction.Context) (*Identity, error) {
	if !b.LoggedIn(trc) {
		return nil, ErrUnauthorized
	}
	raw := trc.Tr().GetString(b.keyUser())
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// LastLogin returns the completion time of this backend's login.
func (b *Base) LastLogin(trc *transaction.Context) (time.Time, error) {
	if !b.LoggedIn(trc) {
		return time.Time{}, ErrUnauthorized
	}
	return time.Parse(time.RFC3339, trc.Tr().GetString(b.keyLastLogin()))
}

func (b *Base) AllowsEmailAuthDomain(domain string) bool {
	for _, d := range b.emailAuthDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// WillingToSign is the shared body of WillingToSignForEmail; concrete
// modules pass their own username.
func (b *Base) WillingToSign(trc *transaction.Context, email, username string) (bool, error) {
	if !b.LoggedIn(trc) {
		return false, ErrUnauthorized
	}
	user, domain, ok := strings.Cut(email, "@")
	if !ok {
		return false, ErrMalformedEmail
	}
	if !b.AllowsEmailAuthDomain(domain) {
		logger.Info("domain not allowed", map[string]any{
			"module": b.name, "domain": domain,
		})
		return false, nil
	}
	// Backends that know their users' full addresses should override;
	// by default the local part must match the username.
	return user == username, nil
}
