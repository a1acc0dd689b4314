package autherr

import "net/http"

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindInvalidCode, KindUnauthorized, KindExpired, KindUsed:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited, KindAttemptsExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
