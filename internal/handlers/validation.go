package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/regforms/pkg/errors"
	"github.com/charlesng35/regforms/pkg/response"
	appValidator "github.com/charlesng35/regforms/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
// An empty body is accepted so callers can fall back to headers and cookies.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(dest); err != nil {
			response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
			return false
		}
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	var ve appValidator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		field := prettifyFieldName(failure.Field)
		switch failure.Tag {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, failure.Param))
		case "session_token":
			messages = append(messages, fmt.Sprintf("%s is not a valid session id", field))
		case "device_info":
			messages = append(messages, fmt.Sprintf("%s must be printable single-line text", field))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
		}
	}
	return strings.Join(messages, "; ")
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}
