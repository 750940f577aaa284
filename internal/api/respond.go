package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/vindennt/gearlist/internal/apperr"
)

// Request bodies larger than this are rejected.
const maxBodyBytes = 1 << 16

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// writeAppError answers with the status matching err's kind.
func writeAppError(w http.ResponseWriter, msg string, err error) {
	appErr := apperr.Classify(err)
	status := apperr.HTTPStatus(appErr.Kind)
	if appErr.Kind == apperr.PermissionDenied {
		msg = "Permission denied. Please check database permissions."
	}
	writeJSON(w, status, errorResponse{
		Error:   msg,
		Details: appErr.Message,
		Kind:    appErr.Kind.String(),
	})
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a size limited JSON body into v and validates it. An empty
// body leaves v untouched when allowEmpty is set; it is still validated.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(v)

	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, allowEmpty && errors.Is(err, io.EOF):
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge), "")
		return false
	default:
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}

	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), "")
		return false
	}
	return true
}

// validationMessage describes the first failed rule.
func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "Invalid request"
	}

	fe := errs[0]
	switch fe.Tag() {
	case "required", "required_without", "notblank":
		return fe.Field() + " is required"
	case "email":
		return "Please enter a valid email"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "gte":
		return fe.Field() + " must be at least " + fe.Param()
	default:
		return "Invalid " + fe.Field()
	}
}
