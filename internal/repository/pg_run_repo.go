package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
)

const runColumns = `id, sender_name, gender, status, total, current, sent, failed,
		       last_message, last_ok, error, created_at, updated_at, finished_at`

type pgRunRepository struct {
	pool *pgxpool.Pool
}

// NewPgRunRepository returns a RunRepository backed by PostgreSQL.
func NewPgRunRepository(pool *pgxpool.Pool) RunRepository {
	return &pgRunRepository{pool: pool}
}

func (r *pgRunRepository) Create(ctx context.Context, run *domain.Run) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO runs
			(id, sender_name, gender, status, total, current, sent, failed,
			 last_message, last_ok, error, created_at, updated_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		run.ID, run.SenderName, run.Gender, run.Status, run.Total, run.Current,
		run.Sent, run.Failed, run.LastMessage, run.LastOK, run.Error,
		run.CreatedAt, run.UpdatedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *pgRunRepository) Update(ctx context.Context, run *domain.Run) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE runs
		SET status = $1, total = $2, current = $3, sent = $4, failed = $5,
		    last_message = $6, last_ok = $7, error = $8, updated_at = $9, finished_at = $10
		WHERE id = $11`,
		run.Status, run.Total, run.Current, run.Sent, run.Failed,
		run.LastMessage, run.LastOK, run.Error, run.UpdatedAt, run.FinishedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgRunRepository) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (r *pgRunRepository) List(ctx context.Context, limit int) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// scanRun reads a single run row from any pgx row type.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	err := row.Scan(
		&run.ID, &run.SenderName, &run.Gender, &run.Status,
		&run.Total, &run.Current, &run.Sent, &run.Failed,
		&run.LastMessage, &run.LastOK, &run.Error,
		&run.CreatedAt, &run.UpdatedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
