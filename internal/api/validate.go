package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"waitlist/internal/service"

	"github.com/go-playground/validator/v10"
)

var messages = map[string]string{
	"required": "{field} is required",
	"oneof":    "{field} must be one of {param}",
	"max":      "{field} must be less than or equal to {param}",
	"min":      "{field} must be greater than or equal to {param}",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into data and validates it. Failures wrap service.ErrValidation.
func (s *HTTPServer) decode(r io.Reader, data any) error {
	if err := json.NewDecoder(r).Decode(data); err != nil {
		return fmt.Errorf("%w: failed to decode request body: %v", service.ErrValidation, err)
	}
	if err := s.validate.Struct(data); err != nil {
		return fmt.Errorf("%w: %s", service.ErrValidation, message(err))
	}
	return nil
}

func message(err error) string {
	var valErrors validator.ValidationErrors
	if errors.As(err, &valErrors) {
		for _, valErr := range valErrors {
			msg := messages[valErr.Tag()]
			if msg != "" {
				msg = strings.ReplaceAll(msg, "{field}", valErr.Field())
				return strings.ReplaceAll(msg, "{param}", valErr.Param())
			}
		}
		return valErrors.Error()
	}
	return err.Error()
}
