package tiers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrDuplicateName maps the unique constraint on member_tier_name.
var ErrDuplicateName = errors.New("a member tier with this name already exists")

// ValidationError is a user-facing input error.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

func (s *Service) validate(in MemberTierInput) error {
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
			msgs = append(msgs, "tier name is required")
		case "ValueType":
			msgs = append(msgs, "value type must be days or points")
		case "Value":
			msgs = append(msgs, "value must be greater than zero")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return ValidationError(strings.Join(msgs, "; "))
}
