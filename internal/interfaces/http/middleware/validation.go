package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator makes binding errors report JSON field names
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
	}
}

// FormatValidationErrors converts a binding error into a response body
func FormatValidationErrors(err error, requestID string) dto.Response {
	resp := dto.NewErrorResponse(dto.ErrCodeValidation, "Request validation failed")
	resp.Error.RequestID = requestID

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			resp.Error.Details = append(resp.Error.Details, dto.FieldError{
				Field:   e.Field(),
				Message: getValidationMessage(e),
			})
		}
		return resp
	}
	resp.Error.Code = dto.ErrCodeBadRequest
	resp.Error.Message = "Malformed request body"
	return resp
}

// HandleValidationError writes a 400 validation error response, or a 413 when
// the body was cut off by BodyLimit
func HandleValidationError(c *gin.Context, err error) {
	if limit, ok := tooLarge(err); ok {
		abortTooLarge(c, limit)
		return
	}
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "len":
		return "Must be exactly " + e.Param() + " characters"
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	default:
		return "Invalid value"
	}
}
