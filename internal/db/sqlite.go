package db

import (
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"postfetcher/internal/models"
)

type Sqlite struct {
	db *sql.DB
}

func NewSqlite(path string) (*Sqlite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	// sqlite allows one writer; funnel everything through one connection
	// instead of retrying SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &Sqlite{db: db}, nil
}

func (s *Sqlite) Create() error {
	_, err := s.db.Exec(createSeenPostSqlite)
	return err
}

func (s *Sqlite) CompareAndUpdate(candidate *models.SeenPost) (models.CompareInfo, error) {
	var info models.CompareInfo

	tx, err := s.db.Begin()
	if err != nil {
		return info, err
	}
	defer tx.Rollback()

	var storedBody string
	var storedSpam bool
	var reasonsJSON sql.NullString
	err = tx.QueryRow(
		`SELECT body, is_spam, reasons FROM seen_post
         WHERE site = ? AND post_id = ? AND is_answer = ?`,
		candidate.Site, candidate.PostID, candidate.IsAnswer,
	).Scan(&storedBody, &storedSpam, &reasonsJSON)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.Exec(
			`INSERT INTO seen_post (site, post_id, is_answer, body, edited, fetched_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			candidate.Site, candidate.PostID, candidate.IsAnswer,
			candidate.BodyText, candidate.Edited, candidate.FetchedAt)
		if err != nil {
			return info, err
		}
	case err != nil:
		return info, err
	default:
		info.PreviouslySpam = storedSpam
		if reasonsJSON.Valid && reasonsJSON.String != "" {
			if err := json.Unmarshal([]byte(reasonsJSON.String), &info.PreviousReasons); err != nil {
				return info, err
			}
		}
		if storedBody == candidate.BodyText {
			info.IsOlderOrUnchanged = true
			_, err = tx.Exec(
				`UPDATE seen_post SET fetched_at = ?
                 WHERE site = ? AND post_id = ? AND is_answer = ?`,
				candidate.FetchedAt, candidate.Site, candidate.PostID, candidate.IsAnswer)
		} else {
			_, err = tx.Exec(
				`UPDATE seen_post SET body = ?, edited = ?, fetched_at = ?
                 WHERE site = ? AND post_id = ? AND is_answer = ?`,
				candidate.BodyText, candidate.Edited, candidate.FetchedAt,
				candidate.Site, candidate.PostID, candidate.IsAnswer)
		}
		if err != nil {
			return info, err
		}
	}

	return info, tx.Commit()
}

func (s *Sqlite) Record(post *models.SeenPost, result models.ScanResult) error {
	reasonsJSON, err := json.Marshal(result.Reasons)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO seen_post (site, post_id, is_answer, body, edited, is_spam, reasons, why, fetched_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (site, post_id, is_answer) DO UPDATE SET
             body = excluded.body, edited = excluded.edited,
             is_spam = excluded.is_spam, reasons = excluded.reasons,
             why = excluded.why, fetched_at = excluded.fetched_at`,
		post.Site, post.PostID, post.IsAnswer, post.BodyText, post.Edited,
		result.IsSpam, string(reasonsJSON), result.Why, post.FetchedAt)
	return err
}

func (s *Sqlite) Close() error {
	return s.db.Close()
}

func (s *Sqlite) Ping() error {
	return s.db.Ping()
}
