package store

import "database/sql"

// expires_at is stored as unix seconds so expiry scans and remaining-ttl
// math stay numeric; created_at keeps the catalog's text timestamp format.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS images (
  id TEXT PRIMARY KEY,
  size_bytes INTEGER NOT NULL,
  type TEXT NOT NULL,
  expires_at INTEGER NOT NULL,
  owner_token TEXT NOT NULL,
  gallery_id TEXT NOT NULL DEFAULT '',
  filename TEXT,
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_images_expires_at ON images(expires_at);
CREATE INDEX IF NOT EXISTS idx_images_gallery_id ON images(gallery_id);
CREATE INDEX IF NOT EXISTS idx_images_owner_token ON images(owner_token);
`

func bootstrapSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}
