package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"postfetcher/internal/models"
)

type PostgreSQL struct {
	pool *pgxpool.Pool
}

func NewPostgres(connStr string) (*PostgreSQL, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 100
	config.MinConns = 10

	pool, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}
	return &PostgreSQL{pool: pool}, nil
}

func (p *PostgreSQL) Create() error {
	_, err := p.pool.Exec(context.Background(), createSeenPostPG)
	return err
}

// CompareAndUpdate looks the candidate up, reports whether its stored copy
// is at least as fresh and identical in body, and moves the stored state
// forward - all inside one transaction with the row locked, so two workers
// racing on the same post can't both conclude it needs a scan.
func (p *PostgreSQL) CompareAndUpdate(candidate *models.SeenPost) (models.CompareInfo, error) {
	ctx := context.Background()
	var info models.CompareInfo

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return info, err
	}
	defer tx.Rollback(ctx)

	var storedBody string
	var storedSpam bool
	var reasonsJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT body, is_spam, reasons FROM seen_post
         WHERE site = $1 AND post_id = $2 AND is_answer = $3 FOR UPDATE`,
		candidate.Site, candidate.PostID, candidate.IsAnswer,
	).Scan(&storedBody, &storedSpam, &reasonsJSON)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO seen_post (site, post_id, is_answer, body, edited, fetched_at)
             VALUES ($1, $2, $3, $4, $5, $6)`,
			candidate.Site, candidate.PostID, candidate.IsAnswer,
			candidate.BodyText, candidate.Edited, candidate.FetchedAt)
		if err != nil {
			return info, err
		}
	case err != nil:
		return info, err
	default:
		info.PreviouslySpam = storedSpam
		if len(reasonsJSON) > 0 {
			if err := json.Unmarshal(reasonsJSON, &info.PreviousReasons); err != nil {
				return info, err
			}
		}
		if storedBody == candidate.BodyText {
			info.IsOlderOrUnchanged = true
			_, err = tx.Exec(ctx,
				`UPDATE seen_post SET fetched_at = $4
                 WHERE site = $1 AND post_id = $2 AND is_answer = $3`,
				candidate.Site, candidate.PostID, candidate.IsAnswer, candidate.FetchedAt)
		} else {
			_, err = tx.Exec(ctx,
				`UPDATE seen_post SET body = $4, edited = $5, fetched_at = $6
                 WHERE site = $1 AND post_id = $2 AND is_answer = $3`,
				candidate.Site, candidate.PostID, candidate.IsAnswer,
				candidate.BodyText, candidate.Edited, candidate.FetchedAt)
		}
		if err != nil {
			return info, err
		}
	}

	return info, tx.Commit(ctx)
}

// Record stores the outcome of a completed scan.
func (p *PostgreSQL) Record(post *models.SeenPost, result models.ScanResult) error {
	reasonsJSON, err := json.Marshal(result.Reasons)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(context.Background(),
		`INSERT INTO seen_post (site, post_id, is_answer, body, edited, is_spam, reasons, why, fetched_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         ON CONFLICT (site, post_id, is_answer) DO UPDATE SET
             body = EXCLUDED.body, edited = EXCLUDED.edited,
             is_spam = EXCLUDED.is_spam, reasons = EXCLUDED.reasons,
             why = EXCLUDED.why, fetched_at = EXCLUDED.fetched_at`,
		post.Site, post.PostID, post.IsAnswer, post.BodyText, post.Edited,
		result.IsSpam, reasonsJSON, result.Why, post.FetchedAt)
	return err
}

func (p *PostgreSQL) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgreSQL) Ping() error {
	return p.pool.Ping(context.Background())
}
