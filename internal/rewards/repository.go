package rewards

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkeloo/loyalty-program/internal/shared"
)

type Repository interface {
	List(ctx context.Context) ([]Reward, error)
	Get(ctx context.Context, id int64) (Reward, error)
	Create(ctx context.Context, in RewardInput) (Reward, error)
	Update(ctx context.Context, id int64, in RewardInput) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// List returns every reward in insertion order.
func (r *repository) List(ctx context.Context) ([]Reward, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, reward_name, point_value, created_at, updated_at FROM rewards ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rewards []Reward
	for rows.Next() {
		var rw Reward
		if err := rows.Scan(&rw.ID, &rw.Name, &rw.PointValue, &rw.CreatedAt, &rw.UpdatedAt); err != nil {
			return nil, err
		}
		rewards = append(rewards, rw)
	}
	return rewards, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Reward, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, reward_name, point_value, created_at, updated_at FROM rewards WHERE id = $1`, id)
	var rw Reward
	err := row.Scan(&rw.ID, &rw.Name, &rw.PointValue, &rw.CreatedAt, &rw.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reward{}, shared.ErrNotFound
		}
		return Reward{}, err
	}
	return rw, nil
}

func (r *repository) Create(ctx context.Context, in RewardInput) (Reward, error) {
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx,
		`INSERT INTO rewards (reward_name, point_value, created_at, updated_at) VALUES ($1,$2,$3,$3)
		 RETURNING id, reward_name, point_value, created_at, updated_at`,
		in.Name, in.PointValue, now)
	var rw Reward
	if err := row.Scan(&rw.ID, &rw.Name, &rw.PointValue, &rw.CreatedAt, &rw.UpdatedAt); err != nil {
		return Reward{}, mapPGError(err)
	}
	return rw, nil
}

func (r *repository) Update(ctx context.Context, id int64, in RewardInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE rewards SET reward_name = $1, point_value = $2, updated_at = $3 WHERE id = $4`,
		in.Name, in.PointValue, time.Now().UTC(), id)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM rewards WHERE id = $1`, id)
	return err
}

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateName
	}
	return err
}
