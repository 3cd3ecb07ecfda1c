package db

// Schema is the DDL for the mailtriage database.
const Schema = `
CREATE TABLE IF NOT EXISTS labels (
    backend     TEXT NOT NULL,
    account     TEXT NOT NULL,
    name        TEXT NOT NULL,
    label_id    TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    PRIMARY KEY (backend, account, name)
);

CREATE INDEX IF NOT EXISTS idx_labels_account ON labels(backend, account);
`
