package rewards

import "time"

// Reward represents a redeemable reward in the loyalty program.
type Reward struct {
	ID         int64     `json:"id"`
	Name       string    `json:"reward_name"`
	PointValue int       `json:"point_value"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RewardInput carries the form fields for create and update.
type RewardInput struct {
	Name       string `validate:"required,max=40"`
	PointValue int    `validate:"gte=0"`
}
