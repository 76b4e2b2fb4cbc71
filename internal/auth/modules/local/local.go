// Package local is a static test backend: one configured user with a
// configured attribute bag. Not meant for production use.
package local

import (
	"context"

	"github.com/FedOAuth/FedOAuth/internal/auth"
	"github.com/FedOAuth/FedOAuth/internal/config"
	"github.com/FedOAuth/FedOAuth/internal/render"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

// Name is the registry/internal name for this backend.
const Name = "local"

type Module struct {
	auth.UserPassBase
	cfg config.LocalConfig
}

func New(cfg config.LocalConfig, base auth.Base, renderer render.Renderer) *Module {
	m := &Module{cfg: cfg}
	m.UserPassBase = auth.NewUserPassBase(base, m, renderer)
	return m
}

// CheckCredentials does a plain comparison. Yes, that is open to a
// timing attack; this backend exists for integration testing only.
func (m *Module) CheckCredentials(ctx context.Context, username, password string) (*auth.Identity, error) {
	if username != m.cfg.Username || password != m.cfg.Password {
		return nil, nil
	}

	attrs := map[auth.Attribute]string{}
	for k, v := range m.cfg.Attributes {
		attrs[auth.Attribute(k)] = v
	}
	return &auth.Identity{
		Username:   username,
		Attributes: attrs,
	}, nil
}

func (m *Module) SelectInfo(url string) auth.SelectInfo {
	return auth.SelectInfo{Text: "Local", URL: url}
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

func (m *Module) WillingToSignForEmail(trc *transaction.Context, email string) (bool, error) {
	username, err := m.Username(trc)
	if err != nil {
		return false, err
	}
	return m.WillingToSign(trc, email, username)
}
