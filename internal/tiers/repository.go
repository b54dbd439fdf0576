package tiers

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
	List(ctx context.Context) ([]MemberTier, error)
	Get(ctx context.Context, id int64) (MemberTier, error)
	Create(ctx context.Context, in MemberTierInput) (MemberTier, error)
	Update(ctx context.Context, id int64, in MemberTierInput) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// List returns every tier in insertion order.
func (r *repository) List(ctx context.Context) ([]MemberTier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, member_tier_name, description, value_type, value, created_at, updated_at
		 FROM member_tiers ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tiers []MemberTier
	for rows.Next() {
		var t MemberTier
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.ValueType, &t.Value, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (MemberTier, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, member_tier_name, description, value_type, value, created_at, updated_at
		 FROM member_tiers WHERE id = $1`, id)
	var t MemberTier
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.ValueType, &t.Value, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MemberTier{}, shared.ErrNotFound
		}
		return MemberTier{}, err
	}
	return t, nil
}

func (r *repository) Create(ctx context.Context, in MemberTierInput) (MemberTier, error) {
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx,
		`INSERT INTO member_tiers (member_tier_name, description, value_type, value, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$5)
		 RETURNING id, member_tier_name, description, value_type, value, created_at, updated_at`,
		in.Name, in.Description, in.ValueType, in.Value, now)
	var t MemberTier
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.ValueType, &t.Value, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return MemberTier{}, mapPGError(err)
	}
	return t, nil
}

func (r *repository) Update(ctx context.Context, id int64, in MemberTierInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE member_tiers SET member_tier_name = $1, description = $2, value_type = $3, value = $4, updated_at = $5
		 WHERE id = $6`,
		in.Name, in.Description, in.ValueType, in.Value, time.Now().UTC(), id)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM member_tiers WHERE id = $1`, id)
	return err
}

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateName
	}
	return err
}
