package db

// The seen-post store remembers the last fetched state and scan verdict of
// every post, so a re-fetched post that hasn't changed is not re-scanned
// and a rescan doesn't re-report reasons the previous scan already fired.
//
// Two implementations: PostgreSQL for deployments that have one, sqlite
// for everything else. Both satisfy fetcher.SeenStore.

const createSeenPostPG = `
        CREATE TABLE IF NOT EXISTS seen_post(
            site TEXT NOT NULL,
            post_id BIGINT NOT NULL,
            is_answer BOOLEAN NOT NULL DEFAULT FALSE,
            body TEXT NOT NULL,
            edited BOOLEAN NOT NULL DEFAULT FALSE,
            is_spam BOOLEAN NOT NULL DEFAULT FALSE,
            reasons JSONB,
            why TEXT,
            fetched_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (site, post_id, is_answer)
        );
    `

const createSeenPostSqlite = `
		CREATE TABLE IF NOT EXISTS seen_post(
			site TEXT NOT NULL,
			post_id INTEGER NOT NULL,
			is_answer INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL,
			edited INTEGER NOT NULL DEFAULT 0,
			is_spam INTEGER NOT NULL DEFAULT 0,
			reasons JSON,
			why TEXT,
			fetched_at TIMESTAMP NOT NULL,
			PRIMARY KEY (site, post_id, is_answer)
		);
	`
