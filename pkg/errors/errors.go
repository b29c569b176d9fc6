// Package errors defines the coded error kinds returned by lore.
//
// Every failure carries a dotted code whose last segment is the reason
// ("invalid_input", "failure", "conflict", ...). Not-found outcomes are never
// errors: Get returns nil, Delete returns false, List returns an empty slice.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeValidationInvalidInput Code = "lore.validation.invalid_input"

	CodeEmbeddingFailure          Code = "lore.embedding.failure"
	CodeEmbeddingDimensionInvalid Code = "lore.embedding.dimension.invalid"

	CodeStoreFailure  Code = "lore.store.failure"
	CodeStoreConflict Code = "lore.store.conflict"
	CodeStoreClosed   Code = "lore.store.closed"

	CodeEngineClosed         Code = "lore.engine.closed"
	CodeEngineNotImplemented Code = "lore.engine.not_implemented"

	CodeConfigLoadReadFailure      Code = "lore.config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "lore.config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "lore.config.validate.invalid_value"

	CodeServerRequestInvalid  Code = "lore.server.request.invalid"
	CodeServerEntityNotFound  Code = "lore.server.entity.not_found"
	CodeServerRequestTooLarge Code = "lore.server.request.too_large"
	CodeRateLimitExceeded     Code = "lore.ratelimit.exceeded"
	CodeTransferFormatInvalid Code = "lore.transfer.format.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldLessonID(id string) Attr {
	return Field("lesson_id", id)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the innermost code in err's chain, or "" for plain errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}
	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}
	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

// FieldsOf returns the structured fields attached to err.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsValidation reports a malformed-input failure raised before any write.
func IsValidation(err error) bool {
	return domain(CodeOf(err)) == "validation"
}

// IsEmbedding reports a failure of the embedding function or a dimension mismatch.
func IsEmbedding(err error) bool {
	return domain(CodeOf(err)) == "embedding"
}

// IsStore reports a backend failure.
func IsStore(err error) bool {
	return domain(CodeOf(err)) == "store"
}

// IsClosed reports use of a closed engine or store.
func IsClosed(err error) bool {
	return reason(CodeOf(err)) == "closed"
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case HasCode(err, CodeEngineNotImplemented):
		return http.StatusNotImplemented
	case HasCode(err, CodeRateLimitExceeded):
		return http.StatusTooManyRequests
	case HasCode(err, CodeServerRequestTooLarge):
		return http.StatusRequestEntityTooLarge
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsValidation(err), IsInvalidInput(err):
		return http.StatusBadRequest
	case IsEmbedding(err):
		return http.StatusBadGateway
	case IsClosed(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeStoreFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}
	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}

// domain returns the segment after the "lore." prefix.
func domain(code Code) string {
	parts := strings.SplitN(string(code), ".", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
