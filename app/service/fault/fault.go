// Package fault carries the error taxonomy shared by the pipeline.
// Every failure crossing a service boundary is tagged with one of these
// codes so the transport layer can map it to a status without string
// matching.
package fault

import (
	"net/http"

	"github.com/samber/oops"
)

const (
	CodeDecode          = "decode_error"
	CodeTranscription   = "transcription_error"
	CodeCompletion      = "completion_error"
	CodeValidationParse = "validation_parse_error"
	CodeSynthesis       = "synthesis_error"
	CodePersistence     = "persistence_error"
	CodeProtocol        = "protocol_error"
	CodeSessionNotFound = "session_not_found"
)

func New(code string, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

// Code returns the taxonomy code of err, or "" for untagged errors.
func Code(err error) string {
	if e, ok := oops.AsOops(err); ok {
		if code, ok := e.Code().(string); ok {
			return code
		}
	}

	return ""
}

func Is(err error, code string) bool {
	return Code(err) == code
}

// HTTPStatus maps a tagged error to a response status. Untagged errors
// are treated as internal.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeDecode, CodeProtocol:
		return http.StatusBadRequest
	case CodeSessionNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
