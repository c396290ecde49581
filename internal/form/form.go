// Package form parses the HTML forms Warbler accepts and validates them with
// go-playground/validator struct tags. Error texts are the ones the pages
// show next to each field.
package form

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/warbler/internal/model"
)

// Errors maps a form field name to its first validation message.
type Errors map[string]string

// Get returns the message for field, or "".
func (e Errors) Get(field string) string {
	return e[field]
}

// Any reports whether at least one field failed.
func (e Errors) Any() bool {
	return len(e) > 0
}

// Set records msg for field unless the field already has a message.
func (e Errors) Set(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// validate is safe for concurrent use and caches struct metadata, so one
// instance serves every request.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their form name ("image_url") rather than the Go
	// field name ("ImageURL").
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("imageurl", isImageURL); err != nil {
		panic(fmt.Sprintf("form: registering imageurl validator: %v", err))
	}
	return v
}

// isImageURL accepts an absolute URL or one of the bundled default images,
// which are site-relative paths.
func isImageURL(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == model.DefaultImageURL || s == model.DefaultHeaderImageURL {
		return true
	}
	return plain.Var(s, "url") == nil
}

// plain checks single values for custom validators. It cannot be validate
// itself: isImageURL is registered on validate, which would make the
// package initialization cyclic.
var plain = validator.New()

// Validate runs the struct tags of v and converts failures to Errors.
// A nil result means v is valid.
func Validate(v any) Errors {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: a programming mistake, not user input.
		panic(fmt.Sprintf("form: validating %T: %v", v, err))
	}

	errs := Errors{}
	for _, fe := range verrs {
		errs.Set(fe.Field(), message(fe))
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Invalid email address."
	case "url":
		return "Invalid URL."
	case "imageurl":
		return "Please enter a valid URL"
	case "min":
		return fmt.Sprintf("Field must be at least %s characters long.", fe.Param())
	case "max":
		return fmt.Sprintf("Field cannot be longer than %s characters.", fe.Param())
	default:
		return "Invalid value."
	}
}

// value reads a trimmed form value. Passwords use r.PostFormValue directly
// so surrounding spaces stay significant.
func value(r *http.Request, name string) string {
	return strings.TrimSpace(r.PostFormValue(name))
}
