package validator

import (
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate

	sessionTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, err := range v {
		if err.Param != "" {
			parts[i] = err.Field + " failed on " + err.Tag + "=" + err.Param
		} else {
			parts[i] = err.Field + " failed on " + err.Tag
		}
	}
	return strings.Join(parts, "; ")
}

// customRules are registered alongside the stock go-playground rules.
var customRules = map[string]func(string) bool{
	"session_token": IsSessionToken,
	"device_info":   IsDeviceInfo,
}

// ValidateStruct validates a struct using registered rules. Besides the stock rules the
// "session_token" tag accepts base64url session identifiers and "device_info" accepts
// printable single-line text.
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	if ve, ok := err.(validator.ValidationErrors); ok {
		failures := make(ValidationErrors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, ValidationError{
				Field: fe.Field(),
				Tag:   fe.Tag(),
				Param: fe.Param(),
			})
		}
		return failures
	}

	return err
}

// IsSessionToken reports whether value looks like an identifier issued by GenerateToken.
func IsSessionToken(value string) bool {
	return sessionTokenPattern.MatchString(value)
}

// IsDeviceInfo reports whether value is valid UTF-8 without control characters.
func IsDeviceInfo(value string) bool {
	if !utf8.ValidString(value) {
		return false
	}
	return strings.IndexFunc(value, unicode.IsControl) == -1
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if name == "" {
				return fld.Name
			}

			comma := strings.Index(name, ",")
			if comma != -1 {
				name = name[:comma]
			}

			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		for tag, rule := range customRules {
			rule := rule
			_ = validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return rule(fl.Field().String())
			})
		}
	})
	return validate
}
