package storage

// Timestamps are stored as Unix milliseconds so range comparisons are numeric.
const schema = `
-- The 'sources' table tracks where imported cards came from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    last_imported INTEGER
);

-- The 'cards' table stores the immutable content of each flashcard.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    translation TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT 'general',
    hash TEXT NOT NULL UNIQUE,
    source_id INTEGER,

    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE SET NULL
);

-- The 'progress' table holds the SM-2 state of every card that has been reviewed at least once.
CREATE TABLE IF NOT EXISTS progress (
    card_id INTEGER PRIMARY KEY,
    interval_days INTEGER NOT NULL DEFAULT 0 CHECK (interval_days >= 0),
    ease_factor REAL NOT NULL DEFAULT 2.5 CHECK (ease_factor >= 1.3),
    review_count INTEGER NOT NULL DEFAULT 0 CHECK (review_count >= 0),
    next_review_at INTEGER NOT NULL,
    last_reviewed_at INTEGER,

    FOREIGN KEY(card_id) REFERENCES cards(id)
);

CREATE INDEX IF NOT EXISTS idx_progress_next_review_at ON progress(next_review_at);
`
