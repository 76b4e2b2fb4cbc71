// Package directory authenticates against the local user directory:
// username/password rows with bcrypt hashes, plus group memberships.
package directory

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/FedOAuth/FedOAuth/internal/auth"
	"github.com/FedOAuth/FedOAuth/internal/config"
	"github.com/FedOAuth/FedOAuth/internal/render"
	"github.com/FedOAuth/FedOAuth/internal/transaction"
)

// Name is the registry/internal name for this backend.
const Name = "directory"

type Module struct {
	auth.UserPassBase
	cfg config.DirectoryConfig
	db  *sql.DB
}

func New(cfg config.DirectoryConfig, db *sql.DB, base auth.Base, renderer render.Renderer) *Module {
	m := &Module{cfg: cfg, db: db}
	m.UserPassBase = auth.NewUserPassBase(base, m, renderer)
	return m
}

func (m *Module) CheckCredentials(ctx context.Context, username, password string) (*auth.Identity, error) {
	var (
		hash     string
		email    string
		fullname string
		timezone string
		country  string
		language string
		gpgKeyID string
		sshKey   string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT password_hash, email, fullname, timezone, country,
		       language, gpg_keyid, ssh_key
		FROM users
		WHERE username = $1
	`, username).Scan(&hash, &email, &fullname, &timezone, &country,
		&language, &gpgKeyID, &sshKey)
	if err == sql.ErrNoRows {
		// Hide whether the user exists.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: lookup: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, nil
	}

	groups, err := m.groups(ctx, username)
	if err != nil {
		return nil, err
	}

	attrs := map[auth.Attribute]string{
		auth.AttrNickname: username,
		auth.AttrEmail:    email,
		auth.AttrFullname: fullname,
		auth.AttrTimezone: timezone,
		auth.AttrCountry:  country,
		auth.AttrLanguage: language,
		auth.AttrGPGKeyID: gpgKeyID,
		auth.AttrSSHKey:   sshKey,
	}
	for _, ignored := range m.cfg.IgnoreAttributes {
		delete(attrs, auth.Attribute(ignored))
	}
	for attr, v := range attrs {
		if v == "" {
			delete(attrs, attr)
		}
	}

	return &auth.Identity{
		Username:   username,
		Attributes: attrs,
		Groups:     groups,
	}, nil
}

func (m *Module) groups(ctx context.Context, username string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT group_name FROM user_groups
		WHERE username = $1 AND group_type NOT IN ('cla', 'shell')
	`, username)
	if err != nil {
		return nil, fmt.Errorf("directory: groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (m *Module) SelectInfo(url string) auth.SelectInfo {
	return auth.SelectInfo{Text: "Directory", URL: url}
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
	id, err := m.User(trc)
	if err != nil {
		return nil, err
	}
	return id.Groups, nil
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
