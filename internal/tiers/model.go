package tiers

import "time"

// ValueType discriminates how a tier threshold is measured.
const (
	ValueTypeDays   = "days"
	ValueTypePoints = "points"
)

// MemberTier represents a membership level in the loyalty program.
type MemberTier struct {
	ID          int64     `json:"id"`
	Name        string    `json:"member_tier_name"`
	Description string    `json:"description"`
	ValueType   string    `json:"value_type"`
	Value       int       `json:"value"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MemberTierInput carries the form fields for create and update.
type MemberTierInput struct {
	Name        string `validate:"required"`
	Description string
	ValueType   string `validate:"required,oneof=days points"`
	Value       int    `validate:"gt=0"`
}
