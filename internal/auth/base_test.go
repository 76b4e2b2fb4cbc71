package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FedOAuth/FedOAuth/internal/remembered"
	"github.com/FedOAuth/FedOAuth/internal/token"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

type baseFixture struct {
	trStore  transaction.Store
	remStore remembered.Store
	signer   *token.Signer
}

func newBaseFixture() *baseFixture {
	return &baseFixture{
		trStore:  transaction.NewMemStore(),
		remStore: remembered.NewMemStore(),
		signer:   token.NewSigner("test-secret"),
	}
}

func (f *baseFixture) context(req *http.Request) *transaction.Context {
	return transaction.NewContext(req, transaction.Options{
		Signer:  f.signer,
		Store:   f.trStore,
		Timeout: 30 * time.Minute,
	})
}

func (f *baseFixture) base(name string, domains ...string) Base {
	return NewBase(name, domains, 30*time.Minute, f.remStore)
}

func responseCookies(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	res := http.Response{Header: w.Header()}
	out := map[string]*http.Cookie{}
	for _, ck := range res.Cookies() {
		out[ck.Name] = ck
	}
	return out
}

func TestSaveSuccessMarksTransaction(t *testing.T) {
	f := newBaseFixture()
	b := f.base("local")
	trc := f.context(httptest.NewRequest(http.MethodPost, "/authenticate/local/", nil))

	require.NoError(t, b.SaveSuccess(trc, &Identity{Username: "alice"}, false))

	assert.Equal(t, true, trc.Tr().GetBool("local_loggedin"))
	assert.True(t, b.LoggedIn(trc))

	user, err := b.User(trc)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	last, err := b.LastLogin(trc)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, time.Minute)

	// Without remember there is no continuation cookie.
	w := httptest.NewRecorder()
	trc.Finalize(w)
	assert.Nil(t, responseCookies(w)["local_auth_ses"])
}

func TestSaveSuccessRememberIssuesContinuation(t *testing.T) {
	f := newBaseFixture()
	b := f.base("local")
	trc := f.context(httptest.NewRequest(http.MethodPost, "/authenticate/local/", nil))

	require.NoError(t, b.SaveSuccess(trc, &Identity{Username: "alice"}, true))

	w := httptest.NewRecorder()
	trc.Finalize(w)

	ck := responseCookies(w)["local_auth_ses"]
	require.NotNil(t, ck)
	assert.NotEmpty(t, ck.Value)
	assert.Equal(t, int((30 * time.Minute).Seconds()), ck.MaxAge)

	authsesid, err := f.signer.Verify(ck.Value, time.Minute)
	require.NoError(t, err)

	rec, err := f.remStore.Get(context.TODO(), "authses", "local", authsesid)
	require.NoError(t, err)
	assert.Contains(t, rec.Data, `"alice"`)
}

func TestLoggedInContinuationRestoresIdentity(t *testing.T) {
	f := newBaseFixture()
	b := f.base("local")

	first := f.context(httptest.NewRequest(http.MethodPost, "/authenticate/local/", nil))
	id := &Identity{
		Username:   "alice",
		Attributes: map[Attribute]string{AttrEmail: "alice@example.com"},
		Groups:     []string{"admins"},
	}
	require.NoError(t, b.SaveSuccess(first, id, true))
	w := httptest.NewRecorder()
	first.Finalize(w)
	ck := responseCookies(w)["local_auth_ses"]
	require.NotNil(t, ck)

	// A later request, fresh transaction, only the continuation cookie.
	req := httptest.NewRequest(http.MethodGet, "/test/", nil)
	req.AddCookie(&http.Cookie{Name: "local_auth_ses", Value: ck.Value})
	second := f.context(req)

	assert.True(t, b.LoggedIn(second))

	user, err := b.User(second)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Attributes[AttrEmail])
	assert.Equal(t, []string{"admins"}, user.Groups)

	// Restoration keeps the original continuation, no new cookie.
	w2 := httptest.NewRecorder()
	second.Finalize(w2)
	assert.Nil(t, responseCookies(w2)["local_auth_ses"])
}

func TestLoggedInForgedContinuationCleared(t *testing.T) {
	f := newBaseFixture()
	b := f.base("local")

	req := httptest.NewRequest(http.MethodGet, "/test/", nil)
	req.AddCookie(&http.Cookie{Name: "local_auth_ses", Value: "forged.token.value"})
	trc := f.context(req)

	assert.False(t, b.LoggedIn(trc))

	w := httptest.NewRecorder()
	trc.Finalize(w)
	ck := responseCookies(w)["local_auth_ses"]
	require.NotNil(t, ck)
	assert.Equal(t, -1, ck.MaxAge)
}

func TestLoggedInContinuationRecordGone(t *testing.T) {
	f := newBaseFixture()
	b := f.base("local")

	// A validly signed session id with no backing record, as after a
	// cleanup sweep reaped the expired entry.
	req := httptest.NewRequest(http.MethodGet, "/test/", nil)
	req.AddCookie(&http.Cookie{Name: "local_auth_ses", Value: f.signer.Sign("gonesession")})
	trc := f.context(req)

	assert.False(t, b.LoggedIn(trc))

	w := httptest.NewRecorder()
	trc.Finalize(w)
	ck := responseCookies(w)["local_auth_ses"]
	require.NotNil(t, ck)
	assert.Equal(t, -1, ck.MaxAge)
}

func TestWillingToSign(t *testing.T) {
	f := newBaseFixture()
	b := f.base("local", "example.com")

	trc := f.context(httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := b.WillingToSign(trc, "alice@example.com", "alice")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, b.SaveSuccess(trc, &Identity{Username: "alice"}, false))

	_, err = b.WillingToSign(trc, "not-an-email", "alice")
	assert.ErrorIs(t, err, ErrMalformedEmail)

	ok, err := b.WillingToSign(trc, "alice@elsewhere.org", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.WillingToSign(trc, "bob@example.com", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.WillingToSign(trc, "alice@example.com", "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowsEmailAuthDomain(t *testing.T) {
	f := newBaseFixture()
	b := f.base("local", "example.com", "example.org")

	assert.True(t, b.AllowsEmailAuthDomain("example.com"))
	assert.True(t, b.AllowsEmailAuthDomain("example.org"))
	assert.False(t, b.AllowsEmailAuthDomain("elsewhere.net"))

	none := f.base("other")
	assert.False(t, none.AllowsEmailAuthDomain("example.com"))
}
