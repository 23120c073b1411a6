package auth

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/npoportal/internal/model"
)

var (
	zipPattern   = regexp.MustCompile(`^[0-9]{5}$`)
	phoneAllowed = regexp.MustCompile(`^[0-9 ().+-]*$`)
)

// SignupInput はサインアップの入力値。
type SignupInput struct {
	Email           string `json:"email" label:"Email" validate:"required,email,max=254"`
	Password        string `json:"password" label:"Password" validate:"required,min=8,max=72"`
	FirstName       string `json:"firstName" label:"First name" validate:"required,max=100"`
	LastName        string `json:"lastName" label:"Last name" validate:"required,max=100"`
	Phone           string `json:"phone" label:"Phone number" validate:"omitempty,phone10"`
	Address         string `json:"address" label:"Address" validate:"max=200"`
	City            string `json:"city" label:"City" validate:"max=100"`
	State           string `json:"state" label:"State" validate:"max=50"`
	Zip             string `json:"zip" label:"Zip code" validate:"omitempty,zip5"`
	FieldOfInterest string `json:"fieldOfInterest" label:"Field of interest" validate:"max=200"`
}

type credentialsInput struct {
	Email    string `label:"Email" validate:"required"`
	Password string `label:"Password" validate:"required"`
}

type emailInput struct {
	Email string `label:"Email" validate:"required,email"`
}

type newPasswordInput struct {
	Password        string `label:"Password" validate:"required,min=8,max=72"`
	ConfirmPassword string `label:"Password confirmation" validate:"eqfield=Password"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})
	_ = v.RegisterValidation("zip5", func(fl validator.FieldLevel) bool {
		return zipPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return phoneAllowed.MatchString(s) && len(digitsOnly(s)) == 10
	})
	return v
}

// validateStruct は入力を検証し、失敗時はVALIDATION_ERRORを返す。
func validateStruct(in any) error {
	if err := validate.Struct(in); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fieldError(fe))
			}
			return model.NewValidationError(strings.Join(msgs, "; "))
		}
		return fmt.Errorf("failed to validate input: %w", err)
	}
	return nil
}

// fieldError は1件の検証エラーを利用者向けの文言にする。
func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "zip5":
		return field + " must be exactly 5 digits"
	case "phone10":
		return field + " must be exactly 10 digits"
	case "eqfield":
		return "Passwords do not match"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// normalizeEmail は前後の空白を除去し小文字にする。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// formatPhone は10桁の電話番号を DDD-DDD-DDDD 形式にする。
func formatPhone(phone string) string {
	d := digitsOnly(phone)
	if len(d) != 10 {
		return phone
	}
	return d[0:3] + "-" + d[3:6] + "-" + d[6:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
