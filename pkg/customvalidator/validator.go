package customvalidator

import (
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"parts-tracker/internal/entities"
)

// EchoValidator adapts a validator to echo.Validator.
type EchoValidator struct {
	validate *validator.Validate
}

// New returns a validator with the part tags registered. Errors name fields
// by their JSON key so clients can match them to request bodies.
func New() (*EchoValidator, error) {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	if err := RegisterCustomValidations(v); err != nil {
		return nil, err
	}
	return &EchoValidator{validate: v}, nil
}

func (ev *EchoValidator) Validate(i interface{}) error {
	return ev.validate.Struct(i)
}

// RegisterCustomValidations registers the part specific tags used by DTOs.
func RegisterCustomValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("part_type", isPartType); err != nil {
		return err
	}
	if err := v.RegisterValidation("category", isCategory); err != nil {
		return err
	}
	if err := v.RegisterValidation("notblank", isNotBlank); err != nil {
		return err
	}
	if err := v.RegisterValidation("http_url", isHTTPURL); err != nil {
		return err
	}
	return nil
}

func isPartType(fl validator.FieldLevel) bool {
	return entities.PartType(strings.ToLower(fl.Field().String())).Valid()
}

func isCategory(fl validator.FieldLevel) bool {
	return entities.Category(strings.ToLower(fl.Field().String())).Valid()
}

func isNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// isHTTPURL accepts empty values; pair with required when the URL is mandatory.
func isHTTPURL(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if s == "" {
		return true
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
