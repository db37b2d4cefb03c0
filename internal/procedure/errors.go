package procedure

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/siteflow/server/internal/auth"
)

// Error codes shared by the RPC and REST adapters.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotSupported = "METHOD_NOT_SUPPORTED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
)

// ErrUnauthorized is returned by protected procedures called without a session.
var ErrUnauthorized = errors.New("unauthorized")

// Issue is one failed constraint, addressed by JSON field path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError reports input that failed decoding or validation. It never
// reaches persistence.
type ValidationError struct {
	Message string
	Issues  []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// Failure is the transport-neutral description of an error.
type Failure struct {
	Status  int
	Code    string
	Message string
	Data    any
}

// Classify maps err onto the error taxonomy. Unknown errors are internal;
// their message is only exposed when exposeInternal is set.
func Classify(err error, exposeInternal bool) Failure {
	var verr *ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		var data any
		if len(verr.Issues) > 0 {
			data = map[string]any{"issues": verr.Issues}
		}
		return Failure{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: verr.Message, Data: data}
	case errors.Is(err, ErrUnauthorized):
		return Failure{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "Unauthorized"}
	case errors.As(err, &tooLarge):
		return Failure{Status: http.StatusRequestEntityTooLarge, Code: CodePayloadTooLarge, Message: "Request body too large"}
	case errors.Is(err, auth.ErrUntrustedOrigin):
		return Failure{Status: http.StatusForbidden, Code: CodeForbidden, Message: "Forbidden"}
	}

	message := "Internal server error"
	if exposeInternal && err != nil {
		message = err.Error()
	}
	return Failure{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateStruct checks v's validate tags and reports failures as a
// *ValidationError addressed by JSON field names.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate input: %w", err)
	}
	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, Issue{Path: fe.Field(), Message: describe(fe)})
	}
	return &ValidationError{Message: "Input validation failed", Issues: issues}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must contain at least %s character(s)", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must contain at most %s character(s)", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
