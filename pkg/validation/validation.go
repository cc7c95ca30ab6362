// Package validation holds the field rules shared by request decoding and the
// domain write paths.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/go-playground/validator/v10"
)

// MaxAccessCodeLen is the storage width of profiles.access_code.
const MaxAccessCodeLen = 20

var (
	accessCodeRe = regexp.MustCompile(`^[0-9]+$`)
	phoneRe      = regexp.MustCompile(`^\+?\d{9,15}$`)
)

var shared = New()

// New returns a validator that reports json field names and knows the
// accesscode and phone tags.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("accesscode", func(fl validator.FieldLevel) bool {
		return accessCodeRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates dest and converts failures into a VALIDATION_ERROR with
// per-field details.
func Struct(dest any) error {
	if err := shared.Struct(dest); err != nil {
		return FromValidator(err)
	}
	return nil
}

// AccessCode checks a submitted access code: digits only, at most 20 chars.
func AccessCode(code string) error {
	return field("access_code", code, fmt.Sprintf("required,max=%d,accesscode", MaxAccessCodeLen))
}

// Phone checks an optional phone number. Empty means absent.
func Phone(phone string) error {
	if phone == "" {
		return nil
	}
	return field("phone", phone, "phone")
}

func field(name, value, tag string) error {
	err := shared.Var(value, tag)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s %s", name, Message(errs[0]))).
			WithField(name, Message(errs[0]))
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

// FromValidator maps validator errors to a typed error keyed by field.
func FromValidator(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = Message(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

// Message renders a human readable reason for a failed tag.
func Message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "accesscode":
		return "must contain digits only"
	case "phone":
		return "must match +?digits with 9 to 15 digits"
	}
	return "is invalid"
}
