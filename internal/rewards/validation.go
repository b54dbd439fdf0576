package rewards

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrDuplicateName maps the unique constraint on reward_name.
var ErrDuplicateName = errors.New("a reward with this name already exists")

// ValidationError is a user-facing input error.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

func (s *Service) validate(in RewardInput) error {
	if err := s.validator.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return validationMessage(fieldErrs)
		}
		return err
	}
	return nil
}

func validationMessage(errs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Field() {
		case "Name":
			if fe.Tag() == "max" {
				msgs = append(msgs, "reward name must be at most 40 characters")
			} else {
				msgs = append(msgs, "reward name is required")
			}
		case "PointValue":
			msgs = append(msgs, "point value cannot be negative")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return ValidationError(strings.Join(msgs, "; "))
}
