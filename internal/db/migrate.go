package db

import (
	"context"
	"database/sql"
)

type DB struct {
	*sql.DB
}

const keystoneMigration = `
CREATE TABLE IF NOT EXISTS transactions (
    key varchar(32) PRIMARY KEY,
    startmoment timestamptz NOT NULL,
    "values" jsonb NOT NULL
);

CREATE TABLE IF NOT EXISTS remembered (
    type varchar(32) NOT NULL,
    key varchar(512) NOT NULL,
    expiry timestamptz NULL,
    data text NULL,
    PRIMARY KEY (type, key)
);

CREATE INDEX IF NOT EXISTS remembered_expiry_idx
ON remembered (expiry);

CREATE TABLE IF NOT EXISTS users (
    username text PRIMARY KEY,
    password_hash text NOT NULL,
    email text NOT NULL,
    fullname text NOT NULL DEFAULT '',
    timezone text NOT NULL DEFAULT '',
    country text NOT NULL DEFAULT '',
    language text NOT NULL DEFAULT '',
    gpg_keyid text NOT NULL DEFAULT '',
    ssh_key text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_groups (
    username text NOT NULL REFERENCES users(username) ON DELETE CASCADE,
    group_name text NOT NULL,
    group_type text NOT NULL DEFAULT '',
    PRIMARY KEY (username, group_name)
);
`

func RunKeystoneMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, keystoneMigration)
	return err
}
