package transaction

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FedOAuth/FedOAuth/internal/token"
)

func testOptions(store Store) Options {
	return Options{
		Signer:  token.NewSigner("test-secret"),
		Store:   store,
		Timeout: 30 * time.Minute,
	}
}

func responseCookies(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	res := http.Response{Header: w.Header()}
	out := map[string]*http.Cookie{}
	for _, ck := range res.Cookies() {
		out[ck.Name] = ck
	}
	return out
}

func TestFreshRequestCreatesTransaction(t *testing.T) {
	store := NewMemStore()
	req := httptest.NewRequest(http.MethodGet, "/authenticate/", nil)
	trc := NewContext(req, testOptions(store))

	tr := trc.Tr()
	require.NotNil(t, tr)
	assert.True(t, trc.IsNew())
	assert.NotEmpty(t, tr.Check())

	// Persisted synchronously.
	stored, err := store.Get(context.TODO(), tr.Key)
	require.NoError(t, err)
	require.NotNil(t, stored)

	w := httptest.NewRecorder()
	trc.Finalize(w)

	ck := responseCookies(w)["tr"+tr.Key]
	require.NotNil(t, ck)
	assert.Equal(t, tr.Check(), ck.Value)
	assert.True(t, ck.HttpOnly)
}

func TestValidClaimResolvesExisting(t *testing.T) {
	store := NewMemStore()
	existing := New()
	require.NoError(t, store.Save(context.TODO(), existing))

	req := httptest.NewRequest(http.MethodGet, "/authenticate/?transaction="+existing.Key, nil)
	req.AddCookie(&http.Cookie{Name: "tr" + existing.Key, Value: existing.Check()})
	trc := NewContext(req, testOptions(store))

	assert.Equal(t, existing.Key, trc.ID())
	assert.False(t, trc.IsNew())
}

func TestCheckSecretMismatchMintsFresh(t *testing.T) {
	store := NewMemStore()
	existing := New()
	require.NoError(t, store.Save(context.TODO(), existing))

	req := httptest.NewRequest(http.MethodGet, "/authenticate/?transaction="+existing.Key, nil)
	req.AddCookie(&http.Cookie{Name: "tr" + existing.Key, Value: "stolen"})
	trc := NewContext(req, testOptions(store))

	tr := trc.Tr()
	assert.NotEqual(t, existing.Key, tr.Key)
	assert.NotEqual(t, existing.Check(), tr.Check())
	assert.True(t, trc.IsNew())

	w := httptest.NewRecorder()
	trc.Finalize(w)
	ck := responseCookies(w)["tr"+tr.Key]
	require.NotNil(t, ck)
	assert.Equal(t, tr.Check(), ck.Value)
}

func TestMissingCheckCookieMintsFresh(t *testing.T) {
	store := NewMemStore()
	existing := New()
	require.NoError(t, store.Save(context.TODO(), existing))

	req := httptest.NewRequest(http.MethodGet, "/authenticate/?transaction="+existing.Key, nil)
	trc := NewContext(req, testOptions(store))

	assert.NotEqual(t, existing.Key, trc.ID())
}

func TestFormFieldBeatsQueryParameter(t *testing.T) {
	store := NewMemStore()
	fromForm := New()
	fromQuery := New()
	require.NoError(t, store.Save(context.TODO(), fromForm))
	require.NoError(t, store.Save(context.TODO(), fromQuery))

	body := url.Values{ParamName: {fromForm.Key}}.Encode()
	req := httptest.NewRequest(http.MethodPost,
		"/authenticate/?transaction="+fromQuery.Key,
		strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "tr" + fromForm.Key, Value: fromForm.Check()})
	trc := NewContext(req, testOptions(store))

	assert.Equal(t, fromForm.Key, trc.ID())
}

func TestPersistentTransactionPickup(t *testing.T) {
	store := NewMemStore()
	opts := testOptions(store)
	existing := New()
	require.NoError(t, store.Save(context.TODO(), existing))

	req := httptest.NewRequest(http.MethodGet, "/persona/provision/", nil)
	req.AddCookie(&http.Cookie{
		Name:  PersistentCookie,
		Value: opts.Signer.Sign(existing.Key),
	})
	req.AddCookie(&http.Cookie{Name: "tr" + existing.Key, Value: existing.Check()})
	trc := NewContext(req, opts)

	assert.Equal(t, existing.Key, trc.ID())
	assert.False(t, trc.IsNew())
}

// agedToken builds a token the signer would have produced age ago, so
// pickup windows can be tested without a real clock.
func agedToken(secret, payload string, age time.Duration) string {
	enc := func(v string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(v))
	}
	ts := strconv.FormatInt(time.Now().Add(-age).Unix(), 10)
	body := enc(payload) + "." + enc(ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return body + "." + enc(string(mac.Sum(nil)))
}

func TestSignedStateParameterResolvesTransaction(t *testing.T) {
	store := NewMemStore()
	opts := testOptions(store)
	existing := New()
	require.NoError(t, store.Save(context.TODO(), existing))

	state := url.QueryEscape(opts.Signer.Sign(existing.Key))
	req := httptest.NewRequest(http.MethodGet,
		"/authenticate/proxy/?code=abc&state="+state, nil)
	req.AddCookie(&http.Cookie{Name: "tr" + existing.Key, Value: existing.Check()})
	trc := NewContext(req, opts)

	assert.Equal(t, existing.Key, trc.ID())
	assert.False(t, trc.IsNew())
}

func TestStateParameterOutlivesPersistentWindow(t *testing.T) {
	store := NewMemStore()
	opts := testOptions(store)
	existing := New()
	require.NoError(t, store.Save(context.TODO(), existing))

	// A slow login at the upstream: well past the persistent cookie's
	// pickup window, well within the transaction's lifetime.
	aged := agedToken("test-secret", existing.Key, 5*time.Minute)

	req := httptest.NewRequest(http.MethodGet,
		"/authenticate/proxy/?code=abc&state="+url.QueryEscape(aged), nil)
	req.AddCookie(&http.Cookie{Name: PersistentCookie, Value: aged})
	req.AddCookie(&http.Cookie{Name: "tr" + existing.Key, Value: existing.Check()})
	trc := NewContext(req, opts)

	assert.Equal(t, existing.Key, trc.ID())
	assert.False(t, trc.IsNew())
}

func TestExpiredStateParameterTreatedAsAbsent(t *testing.T) {
	store := NewMemStore()
	opts := testOptions(store)
	existing := New()
	require.NoError(t, store.Save(context.TODO(), existing))

	aged := agedToken("test-secret", existing.Key, opts.Timeout+time.Minute)
	req := httptest.NewRequest(http.MethodGet,
		"/authenticate/proxy/?code=abc&state="+url.QueryEscape(aged), nil)
	trc := NewContext(req, opts)

	assert.NotEqual(t, existing.Key, trc.ID())
	assert.True(t, trc.IsNew())
}

func TestForeignStateParameterIgnored(t *testing.T) {
	store := NewMemStore()
	opts := testOptions(store)
	existing := New()
	require.NoError(t, store.Save(context.TODO(), existing))

	// Opaque state from some unrelated flow, and a forged one.
	for _, state := range []string{
		"just-a-random-value",
		token.NewSigner("other-secret").Sign(existing.Key),
	} {
		req := httptest.NewRequest(http.MethodGet,
			"/authenticate/proxy/?state="+url.QueryEscape(state), nil)
		trc := NewContext(req, opts)
		assert.NotEqual(t, existing.Key, trc.ID())
	}
}

func TestForgedPersistentTokenTreatedAsAbsent(t *testing.T) {
	store := NewMemStore()
	opts := testOptions(store)
	existing := New()
	require.NoError(t, store.Save(context.TODO(), existing))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{
		Name:  PersistentCookie,
		Value: token.NewSigner("other-secret").Sign(existing.Key),
	})
	trc := NewContext(req, opts)

	assert.NotEqual(t, existing.Key, trc.ID())

	w := httptest.NewRecorder()
	trc.Finalize(w)
	ck := responseCookies(w)[PersistentCookie]
	require.NotNil(t, ck)
	assert.Equal(t, -1, ck.MaxAge)
}

func TestPersistTransactionSchedulesSignedCookie(t *testing.T) {
	store := NewMemStore()
	opts := testOptions(store)
	req := httptest.NewRequest(http.MethodGet, "/persona/sign_in/", nil)
	trc := NewContext(req, opts)

	key := trc.ID()
	trc.PersistTransaction()

	w := httptest.NewRecorder()
	trc.Finalize(w)

	ck := responseCookies(w)[PersistentCookie]
	require.NotNil(t, ck)
	payload, err := opts.Signer.Verify(ck.Value, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, key, payload)
	assert.Equal(t, 60, ck.MaxAge)
}

func TestSaveIdempotent(t *testing.T) {
	store := NewMemStore()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	trc := NewContext(req, testOptions(store))

	trc.Values()["login_target"] = "https://rp.example"
	require.NoError(t, trc.Save())
	first, err := store.Get(context.TODO(), trc.ID())
	require.NoError(t, err)

	require.NoError(t, trc.Save())
	second, err := store.Get(context.TODO(), trc.ID())
	require.NoError(t, err)

	assert.Equal(t, first.Values, second.Values)
}

func TestDeleteSuppressesRefreshCookie(t *testing.T) {
	store := NewMemStore()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	trc := NewContext(req, testOptions(store))

	key := trc.ID()
	require.NoError(t, trc.Delete())

	stored, err := store.Get(context.TODO(), key)
	require.NoError(t, err)
	assert.Nil(t, stored)

	w := httptest.NewRecorder()
	trc.Finalize(w)

	ck := responseCookies(w)["tr"+key]
	require.NotNil(t, ck)
	assert.Equal(t, -1, ck.MaxAge)
}

func TestDeleteAfterRequest(t *testing.T) {
	store := NewMemStore()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	trc := NewContext(req, testOptions(store))

	key := trc.ID()
	trc.DeleteAfterRequest()

	// Still alive until the response is written.
	stored, err := store.Get(context.TODO(), key)
	require.NoError(t, err)
	require.NotNil(t, stored)

	w := httptest.NewRecorder()
	trc.Finalize(w)

	stored, err = store.Get(context.TODO(), key)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestLaterCookieMutationWins(t *testing.T) {
	store := NewMemStore()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	trc := NewContext(req, testOptions(store))

	trc.SetCookie("mod_auth_ses", "tentative", time.Hour)
	trc.ClearCookie("mod_auth_ses")

	w := httptest.NewRecorder()
	trc.Finalize(w)

	ck := responseCookies(w)["mod_auth_ses"]
	require.NotNil(t, ck)
	assert.Equal(t, -1, ck.MaxAge)
	assert.Empty(t, ck.Value)
}
