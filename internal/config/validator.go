package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	registerCustomValidators(validate)
}

// registerCustomValidators wires the chain-gate specific tag validators.
func registerCustomValidators(v *validator.Validate) {
	_ = v.RegisterValidation("duration", validateDuration)
	_ = v.RegisterValidation("sidechannel_output", validateSideChannelOutput)
}

// validateDuration accepts any positive time.ParseDuration string.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// validateSideChannelOutput accepts "memory" or "file://<absolute-dir>".
func validateSideChannelOutput(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "memory" {
		return true
	}
	if strings.HasPrefix(val, "file://") {
		dir := strings.TrimPrefix(val, "file://")
		return dir != "" && filepath.IsAbs(dir)
	}
	return false
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			return fmt.Errorf("%s", formatValidationErrors(verrs))
		}
		return err
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// formatValidationErrors renders validator errors as human-readable text.
func formatValidationErrors(verrs validator.ValidationErrors) string {
	var b strings.Builder
	for i, fe := range verrs {
		if i > 0 {
			b.WriteString("; ")
		}
		switch fe.Tag() {
		case "oneof":
			fmt.Fprintf(&b, "%s must be one of [%s]", fe.Namespace(), fe.Param())
		case "gte":
			fmt.Fprintf(&b, "%s must be >= %s", fe.Namespace(), fe.Param())
		case "duration":
			fmt.Fprintf(&b, "%s must be a positive duration such as \"10s\"", fe.Namespace())
		case "sidechannel_output":
			fmt.Fprintf(&b, "%s must be \"memory\" or \"file://<absolute-dir>\"", fe.Namespace())
		default:
			fmt.Fprintf(&b, "%s failed %s validation", fe.Namespace(), fe.Tag())
		}
	}
	return b.String()
}
