package database

import (
	"database/sql"
	"fmt"
)

// Schema is applied by Migrate on startup. Every statement is idempotent so
// re-running against an existing database is safe.
//
// contract_id semantics: NULL = never allocated, -1 = allocation in flight,
// >= 0 = final on-chain id. The partial unique index enforces that no two
// rows ever share a final id.
const Schema = `
CREATE TABLE IF NOT EXISTS media (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL CHECK (kind IN ('movie', 'tv')),
  provider_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  poster_path TEXT,
  genres TEXT NOT NULL DEFAULT '[]',
  release_year INTEGER,
  first_air_date TEXT,
  yes_votes INTEGER NOT NULL DEFAULT 0,
  no_votes INTEGER NOT NULL DEFAULT 0,
  comment_count INTEGER NOT NULL DEFAULT 0,
  contract_id INTEGER,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL,
  UNIQUE (kind, provider_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_media_contract_id
  ON media(contract_id) WHERE contract_id >= 0;

CREATE INDEX IF NOT EXISTS idx_media_created_at ON media(kind, created_at);

CREATE TABLE IF NOT EXISTS comments (
  id TEXT PRIMARY KEY,
  media_id TEXT NOT NULL REFERENCES media(id) ON DELETE CASCADE,
  address TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comments_media ON comments(media_id, created_at);

CREATE TABLE IF NOT EXISTS comment_likes (
  comment_id TEXT NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
  address TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  PRIMARY KEY (comment_id, address)
);

CREATE TABLE IF NOT EXISTS comment_replies (
  id TEXT PRIMARY KEY,
  comment_id TEXT NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
  address TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comment_replies ON comment_replies(comment_id, created_at);

CREATE TABLE IF NOT EXISTS points (
  address TEXT PRIMARY KEY,
  vote_points INTEGER NOT NULL DEFAULT 0,
  comment_points INTEGER NOT NULL DEFAULT 0,
  total_points INTEGER NOT NULL DEFAULT 0,
  last_updated TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_points_total ON points(total_points DESC);
`

func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
