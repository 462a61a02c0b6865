package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PhoneFormatMessage is shown when a phone number does not match phonePattern.
const PhoneFormatMessage = "Phone number must be in format: '+1234567890' or '123-456-7890'"

var phonePattern = regexp.MustCompile(`^\+?1?-?\d{3}-?\d{3}-?\d{4}$|^\+?\d{10,15}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("crm_phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// checkStruct runs struct validation and converts the first failure to a
// ValidationError.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := lowerFirst(fe.Field())

	switch fe.Tag() {
	case "required":
		return invalid(field, nil, "%s is required", fe.Field())
	case "email":
		return invalid(field, nil, "Enter a valid email address")
	case "max":
		return invalid(field, nil, "%s must be at most %s characters", fe.Field(), fe.Param())
	case "crm_phone":
		return invalid(field, ErrInvalidPhone, PhoneFormatMessage)
	default:
		return invalid(field, nil, "%s is invalid", fe.Field())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func notFound(entity string, sentinel error, id int64) *ValidationError {
	return &ValidationError{
		Field:   strings.ToLower(entity) + "Id",
		Message: fmt.Sprintf("%s with ID %d does not exist", entity, id),
		Err:     sentinel,
	}
}
