package transaction

import (
	"net/http"
	"time"

	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/token"
)

const (
	// Form field / query parameter carrying the transaction id.
	ParamName = "transaction"

	// Query parameter OAuth-style upstreams echo verbatim on their
	// callback. A signed transaction key stored there survives however
	// long the user spends at the upstream.
	StateParam = "state"

	// Cookie carrying a signed transaction key across redirects that
	// cannot echo parameters back. Deliberately very short lived.
	PersistentCookie = "persistent_transaction"

	// Per-transaction theft-check cookie name prefix: tr<key>.
	cookiePrefix = "tr"

	// How old a persistent_transaction token may be at pickup.
	persistentMaxAge = 30 * time.Second

	// Lifetime of the persistent_transaction cookie itself.
	persistentCookieTTL = 60 * time.Second
)

// Options are the collaborator handles a request context needs.
type Options struct {
	Signer        *token.Signer
	Store         Store
	CookiesSecure bool
	// Lifetime of the tr<key> cookie, refreshed on every request that
	// resolves an existing transaction.
	Timeout time.Duration
}

type pendingCookie struct {
	name   string
	value  string
	maxAge time.Duration
	clear  bool
	// refresh marks the tr<key> refresh write, which is suppressed
	// when the transaction was deleted during the request.
	refresh bool
}

// Context is the per-request transaction façade. The transaction is
// resolved lazily on first access; cookie mutations are collected and
// applied in one pass by Finalize after all handler logic ran.
type Context struct {
	req  *http.Request
	opts Options

	tr       *Transaction
	isNew    bool
	resolved bool

	deleted     bool
	deleteAfter bool

	pending []pendingCookie
}

func NewContext(req *http.Request, opts Options) *Context {
	return &Context{req: req, opts: opts}
}

// Request exposes the inbound request to auth backends that read their
// own form fields and cookies.
func (c *Context) Request() *http.Request {
	return c.req
}

// Signer exposes the token codec shared by all signed-cookie users.
func (c *Context) Signer() *token.Signer {
	return c.opts.Signer
}

// Tr returns the current transaction, resolving or creating it on
// first call.
func (c *Context) Tr() *Transaction {
	c.resolve()
	return c.tr
}

// ID returns the opaque transaction key.
func (c *Context) ID() string {
	return c.Tr().Key
}

// IsNew reports whether this request minted the transaction.
func (c *Context) IsNew() bool {
	c.resolve()
	return c.isNew
}

// Values is shorthand for Tr().Values.
func (c *Context) Values() map[string]any {
	return c.Tr().Values
}

func (c *Context) resolve() {
	if c.resolved {
		return
	}
	c.resolved = true

	trid := c.candidateID()
	if trid != "" {
		stored, err := c.opts.Store.Get(c.req.Context(), trid)
		if err != nil {
			logger.Error("transaction lookup failed", map[string]any{
				"key": trid, "error": err.Error(),
			})
		}
		if stored != nil {
			if c.cookie(cookiePrefix+stored.Key) == stored.Check() {
				c.tr = stored
			} else {
				logger.Warn("transaction stealing attempted", map[string]any{
					"key": stored.Key,
				})
			}
		}
	}

	if c.tr == nil {
		c.isNew = true
		c.tr = New()
		// Persist synchronously so concurrent sub-requests can already
		// reference the transaction.
		if err := c.opts.Store.Save(c.req.Context(), c.tr); err != nil {
			logger.Error("failed to persist new transaction", map[string]any{
				"key": c.tr.Key, "error": err.Error(),
			})
		}
		logger.Debug("created new transaction", map[string]any{"key": c.tr.Key})
	}

	// Refresh the theft-check cookie so an active multi-step flow does
	// not expire mid-flow.
	c.pending = append(c.pending, pendingCookie{
		name:    cookiePrefix + c.tr.Key,
		value:   c.tr.Check(),
		maxAge:  c.opts.Timeout,
		refresh: true,
	})
}

// candidateID reads the claimed transaction id: posted form field,
// then query parameter, then a signed state parameter, then the signed
// persistent_transaction cookie.
func (c *Context) candidateID() string {
	if v := c.req.PostFormValue(ParamName); v != "" {
		return v
	}
	if v := c.req.URL.Query().Get(ParamName); v != "" {
		return v
	}
	if raw := c.req.URL.Query().Get(StateParam); raw != "" {
		// Not every state value is ours; anything that does not verify
		// is simply not a transaction claim.
		if trid, err := c.opts.Signer.Verify(raw, c.opts.Timeout); err == nil {
			return trid
		}
	}
	if raw := c.cookie(PersistentCookie); raw != "" {
		trid, err := c.opts.Signer.Verify(raw, persistentMaxAge)
		if err != nil {
			// Treated as absent, but clear it so we stop checking.
			c.ClearCookie(PersistentCookie)
			logger.Warn("invalid persistent transaction token", map[string]any{
				"error": err.Error(),
			})
			return ""
		}
		return trid
	}
	return ""
}

func (c *Context) cookie(name string) string {
	ck, err := c.req.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// Save persists the current transaction state. Idempotent.
func (c *Context) Save() error {
	if c.tr == nil || c.deleted {
		return nil
	}
	return c.opts.Store.Save(c.req.Context(), c.tr)
}

// Delete removes the stored record and clears the in-memory reference.
// The tr<key> refresh scheduled earlier is suppressed and the browser
// cookie cleared.
func (c *Context) Delete() error {
	if c.tr == nil {
		return nil
	}
	logger.Debug("deleting transaction", map[string]any{"key": c.tr.Key})
	err := c.opts.Store.Delete(c.req.Context(), c.tr.Key)
	c.ClearCookie(cookiePrefix + c.tr.Key)
	c.deleted = true
	return err
}

// DeleteAfterRequest arranges for the transaction to be deleted once
// the response is being written, letting the rest of the handler keep
// using it.
func (c *Context) DeleteAfterRequest() {
	c.deleteAfter = true
}

// SetCookie schedules a deferred cookie write, applied by Finalize.
func (c *Context) SetCookie(name, value string, maxAge time.Duration) {
	c.pending = append(c.pending, pendingCookie{
		name:   name,
		value:  value,
		maxAge: maxAge,
	})
}

// ClearCookie schedules removal of a cookie.
func (c *Context) ClearCookie(name string) {
	c.pending = append(c.pending, pendingCookie{name: name, clear: true})
}

// PersistTransaction stores a signed token of the transaction key in a
// short-lived cookie, for flows returning from an external party that
// cannot echo the transaction parameter back. Avoid unless required:
// it breaks multi-tab operation, which is why the window is so small.
func (c *Context) PersistTransaction() {
	c.SetCookie(PersistentCookie,
		c.opts.Signer.Sign(c.ID()),
		persistentCookieTTL)
}

// Finalize applies the collected cookie mutations. Later mutations of
// the same cookie win, so a failed flow can still clear cookies that
// earlier steps scheduled.
func (c *Context) Finalize(w http.ResponseWriter) {
	if c.deleteAfter && c.tr != nil && !c.deleted {
		if err := c.Delete(); err != nil {
			logger.Error("failed to delete transaction", map[string]any{
				"key": c.tr.Key, "error": err.Error(),
			})
		}
	}

	final := map[string]pendingCookie{}
	order := []string{}
	for _, pc := range c.pending {
		if pc.refresh && c.deleted {
			continue
		}
		if _, seen := final[pc.name]; !seen {
			order = append(order, pc.name)
		}
		final[pc.name] = pc
	}

	for _, name := range order {
		pc := final[name]
		ck := &http.Cookie{
			Name:     pc.name,
			Value:    pc.value,
			Path:     "/",
			HttpOnly: true,
			Secure:   c.opts.CookiesSecure,
			SameSite: http.SameSiteLaxMode,
		}
		if pc.clear {
			ck.Value = ""
			ck.MaxAge = -1
		} else if pc.maxAge > 0 {
			ck.MaxAge = int(pc.maxAge.Seconds())
		}
		http.SetCookie(w, ck)
	}
}
