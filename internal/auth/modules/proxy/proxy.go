// Package proxy federates authentication to an upstream OIDC provider.
// The login flow spans two requests: a redirect to the upstream
// authorization endpoint, and the code callback where the id_token is
// verified and mapped onto standard attributes.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/FedOAuth/FedOAuth/internal/auth"
	"github.com/FedOAuth/FedOAuth/internal/config"
	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
	"github.com/FedOAuth/FedOAuth/internal/utils"
)

// Name is the registry/internal name for this backend.
const Name = "proxy"

// Transaction keys owned by this backend.
const (
	stateKey = Name + "_state"
	nonceKey = Name + "_nonce"
)

type Module struct {
	auth.Base
	cfg               config.ProxyConfig
	oauthConfig       *oauth2.Config
	verifier          *oidc.IDTokenVerifier
	phishingResistant bool
}

func New(ctx context.Context, cfg config.ProxyConfig, base auth.Base) (*Module, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("proxy: oidc config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("proxy: failed to init oidc provider: %w", err)
	}

	return &Module{
		Base: base,
		cfg:  cfg,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes: []string{
				oidc.ScopeOpenID,
				"profile",
				"email",
			},
		},
		verifier: oidcProvider.Verifier(&oidc.Config{
			ClientID: cfg.ClientID,
		}),
		phishingResistant: cfg.PhishingResistant,
	}, nil
}

func (m *Module) SelectInfo(url string) auth.SelectInfo {
	return auth.SelectInfo{Text: "Federated login", URL: url}
}

func (m *Module) Authenticate(trc *transaction.Context, loginTarget, formURL string, requested []auth.Attribute) auth.Result {
	req := trc.Request()

	if req.URL.Query().Get("error") != "" {
		logger.Warn("upstream returned error", map[string]any{
			"module": Name,
			"error":  req.URL.Query().Get("error"),
		})
		return auth.ResultCancelled{}
	}

	if code := req.URL.Query().Get("code"); code != "" {
		return m.finishLogin(trc, code)
	}

	// First leg: remember state and nonce in the transaction, then
	// send the browser upstream. The upstream will not echo our
	// transaction parameter back, but it echoes state verbatim, so the
	// signed transaction key rides inside it and the callback resolves
	// the transaction no matter how long the user spends upstream. The
	// persistent-transaction cookie stays as a secondary channel.
	state := trc.Signer().Sign(trc.ID())
	nonce := utils.RandomString(16)
	trc.Values()[stateKey] = state
	trc.Values()[nonceKey] = nonce
	if err := trc.Save(); err != nil {
		logger.Error("failed to save transaction", map[string]any{
			"module": Name, "error": err.Error(),
		})
		return auth.ResultCancelled{}
	}
	trc.PersistTransaction()

	authURL := m.oauthConfig.AuthCodeURL(state, oidc.Nonce(nonce))
	return auth.ResultResponse{Respond: func(c *gin.Context) {
		c.Redirect(http.StatusFound, authURL)
	}}
}

func (m *Module) finishLogin(trc *transaction.Context, code string) auth.Result {
	req := trc.Request()

	wantState := trc.Tr().GetString(stateKey)
	if wantState == "" || req.URL.Query().Get("state") != wantState {
		logger.Warn("state mismatch on upstream callback", map[string]any{
			"module": Name,
		})
		return auth.ResultCancelled{}
	}

	token, err := m.oauthConfig.Exchange(req.Context(), code)
	if err != nil {
		logger.Error("upstream token exchange failed", map[string]any{
			"module": Name, "error": err.Error(),
		})
		return auth.ResultCancelled{}
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		logger.Error("upstream did not return id_token", map[string]any{
			"module": Name,
		})
		return auth.ResultCancelled{}
	}

	idToken, err := m.verifier.Verify(req.Context(), rawIDToken)
	if err != nil {
		logger.Error("id_token verification failed", map[string]any{
			"module": Name, "error": err.Error(),
		})
		return auth.ResultCancelled{}
	}
	if idToken.Nonce != trc.Tr().GetString(nonceKey) {
		logger.Warn("nonce mismatch on upstream callback", map[string]any{
			"module": Name,
		})
		return auth.ResultCancelled{}
	}

	var claims struct {
		Subject           string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
		Name              string `json:"name"`
		GivenName         string `json:"given_name"`
		FamilyName        string `json:"family_name"`
		Zoneinfo          string `json:"zoneinfo"`
		Locale            string `json:"locale"`
	}
	if err := idToken.Claims(&claims); err != nil {
		logger.Error("id_token claims parse failed", map[string]any{
			"module": Name, "error": err.Error(),
		})
		return auth.ResultCancelled{}
	}
	if claims.Subject == "" {
		return auth.ResultCancelled{}
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Subject
	}

	attrs := map[auth.Attribute]string{}
	set := func(attr auth.Attribute, v string) {
		if v != "" {
			attrs[attr] = v
		}
	}
	set(auth.AttrNickname, claims.PreferredUsername)
	set(auth.AttrEmail, claims.Email)
	set(auth.AttrFullname, claims.Name)
	set(auth.AttrFirstname, claims.GivenName)
	set(auth.AttrLastname, claims.FamilyName)
	set(auth.AttrTimezone, claims.Zoneinfo)
	set(auth.AttrLanguage, claims.Locale)

	delete(trc.Values(), stateKey)
	delete(trc.Values(), nonceKey)

	id := &auth.Identity{
		Username:          username,
		Attributes:        attrs,
		PhishingResistant: m.phishingResistant,
	}
	if err := m.SaveSuccess(trc, id, true); err != nil {
		logger.Error("failed to save login", map[string]any{
			"module": Name, "error": err.Error(),
		})
		return auth.ResultCancelled{}
	}
	return auth.ResultSuccess{}
}

// AuthenticateAPI is not available: the upstream flow requires a
// browser round trip.
func (m *Module) AuthenticateAPI(trc *transaction.Context, values map[string]string) auth.APIResult {
	return auth.APIFailure{}
}

func (m *Module) Username(trc *transaction.Context) (string, error) {
	id, err := m.User(trc)
	if err != nil {
		return "", err
	}
	return id.Username, nil
}

func (m *Module) Attribute(trc *transaction.Context, attr auth.Attribute) (string, error) {
	id, err := m.User(trc)
	if err != nil {
		return "", err
	}
	return id.Attribute(attr)
}

func (m *Module) Attributes(trc *transaction.Context, attrs []auth.Attribute) map[auth.Attribute]string {
	return auth.BestEffortAttributes(m, trc, attrs)
}

func (m *Module) Groups(trc *transaction.Context) ([]string, error) {
	if !m.LoggedIn(trc) {
		return nil, auth.ErrUnauthorized
	}
	return []string{}, nil
}

func (m *Module) CLAs(trc *transaction.Context) ([]string, error) {
	return []string{}, nil
}

func (m *Module) UsedMultiFactor(*transaction.Context) bool         { return false }
func (m *Module) UsedMultiFactorPhysical(*transaction.Context) bool { return false }

func (m *Module) UsedPhishingResistant(*transaction.Context) bool {
	return m.phishingResistant
}

func (m *Module) WillingToSignForEmail(trc *transaction.Context, email string) (bool, error) {
	username, err := m.Username(trc)
	if err != nil {
		return false, err
	}
	return m.WillingToSign(trc, email, username)
}
