package core

import "net/http"

// MapError turns a typed core error into the HTTP status pinned to it
// by the specification. Anything not in the taxonomy folds into a
// generic 500 -- its detail is logged by the caller via
// span.RecordError, never put in the response body.
func MapError(err error) (int, string) {
	switch e := err.(type) {
	case ErrorMalformed:
		return http.StatusBadRequest, e.Error()
	case ErrorBadSignature:
		return http.StatusUnauthorized, e.Error()
	case ErrorUnknownUser:
		return http.StatusNotFound, e.Error()
	case ErrorUidTaken:
		return http.StatusConflict, e.Error()
	case ErrorNotAuthorised:
		return http.StatusForbidden, e.Error()
	case ErrorBlocked:
		return http.StatusForbidden, e.Error()
	case ErrorQuestionAlreadyExists:
		return http.StatusConflict, e.Error()
	case ErrorQuestionNotFound:
		return http.StatusNotFound, e.Error()
	case ErrorVersionMismatch:
		return http.StatusConflict, e.Error()
	case ErrorIllegalElectorate:
		return http.StatusBadRequest, e.Error()
	case ErrorBadCode:
		return http.StatusBadRequest, e.Error()
	case ErrorAlreadyValidated:
		return http.StatusOK, e.Error()
	case ErrorRateLimited:
		return http.StatusTooManyRequests, e.Error()
	case ErrorDoNotEmail:
		return http.StatusForbidden, e.Error()
	case ErrorPageTokenExpired:
		return http.StatusGone, e.Error()
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
