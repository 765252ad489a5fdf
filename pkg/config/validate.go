package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/pushdeploy/pushdeploy/pkg/presets"
)

var (
	projectNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	userNamePattern    = regexp.MustCompile(`^[a-z_][a-z0-9_-]*[$]?$`)
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// descriptorTags are the custom validator tags used by Descriptor.
var descriptorTags = map[string]validator.Func{
	"preset": func(fl validator.FieldLevel) bool {
		return presets.Exists(fl.Field().String())
	},
	"projectname": func(fl validator.FieldLevel) bool {
		return projectNamePattern.MatchString(fl.Field().String())
	},
	"username": func(fl validator.FieldLevel) bool {
		return userNamePattern.MatchString(fl.Field().String())
	},
}

func newDescriptorValidator() (*validator.Validate, error) {
	v := validator.New()
	for tag, fn := range descriptorTags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("failed to register %q validation: %w", tag, err)
		}
	}
	return v, nil
}

// descriptorValidator panics when a custom tag cannot be registered; that is
// a programming error, not bad input.
func descriptorValidator() *validator.Validate {
	validateOnce.Do(func() {
		v, err := newDescriptorValidator()
		if err != nil {
			panic(err)
		}
		validate = v
	})
	return validate
}

// Validate checks d against the descriptor schema.
func Validate(d *Descriptor) error {
	err := descriptorValidator().Struct(d)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid descriptor: %s", strings.Join(msgs, "; "))
}

// ValidAddress reports whether address is a hostname or IP address.
func ValidAddress(address string) bool {
	return descriptorValidator().Var(address, "required,hostname_rfc1123|ip") == nil
}

// ValidProjectName reports whether name can be used in remote paths.
func ValidProjectName(name string) bool {
	return projectNamePattern.MatchString(name)
}

// ValidUser reports whether user is an acceptable remote account name.
func ValidUser(user string) bool {
	return userNamePattern.MatchString(user)
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "hostname_rfc1123|ip":
		return fmt.Sprintf("%s must be a valid IP or hostname, got %q", field, fe.Value())
	case "preset":
		return fmt.Sprintf("%s %q does not exist (available: %s)", field, fe.Value(), strings.Join(presets.Names(), ", "))
	case "projectname":
		return fmt.Sprintf("%s %q may only contain letters, digits, '.', '_' and '-'", field, fe.Value())
	case "username":
		return fmt.Sprintf("%s %q is not a valid account name", field, fe.Value())
	case "min", "max":
		return fmt.Sprintf("%s must be between 1 and 65535", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// fieldPath turns "Descriptor.Server.Address" into "server.address".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
