package tiers

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/mkeloo/loyalty-program/internal/shared"
)

// Service wraps member tier business rules.
type Service struct {
	repo      Repository
	audit     *shared.AuditLogger
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService constructs a new Service.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, validator: validator.New()}
}

func (s *Service) List(ctx context.Context) ([]MemberTier, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (MemberTier, error) {
	if id <= 0 {
		return MemberTier{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, actorID int64, in MemberTierInput) (MemberTier, error) {
	if err := s.validate(in); err != nil {
		return MemberTier{}, err
	}
	created, err := s.repo.Create(ctx, in)
	if err != nil {
		return MemberTier{}, err
	}
	s.record(ctx, actorID, "member_tier.create", created.ID, map[string]any{
		"name":       created.Name,
		"value_type": created.ValueType,
		"value":      created.Value,
	})
	return created, nil
}

func (s *Service) Update(ctx context.Context, actorID int64, id int64, in MemberTierInput) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.validate(in); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return err
	}
	s.record(ctx, actorID, "member_tier.update", id, map[string]any{
		"name":       in.Name,
		"value_type": in.ValueType,
		"value":      in.Value,
	})
	return nil
}

func (s *Service) Delete(ctx context.Context, actorID int64, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "member_tier.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "member_tier",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
