package errutil

import "net/http"

// CoreStatus is a transport-agnostic error category. Services return these;
// the HTTP layer maps them to response codes at the boundary.
type CoreStatus string

const (
	StatusBadRequest          CoreStatus = "BAD_REQUEST"
	StatusValidationFailed    CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized        CoreStatus = "UNAUTHORIZED"
	StatusForbidden           CoreStatus = "FORBIDDEN"
	StatusNotFound            CoreStatus = "NOT_FOUND"
	StatusConflict            CoreStatus = "CONFLICT"
	StatusUnprocessableEntity CoreStatus = "UNPROCESSABLE_ENTITY"
	StatusInternal            CoreStatus = "INTERNAL"
	StatusBadGateway          CoreStatus = "BAD_GATEWAY"
	StatusUnknown             CoreStatus = "UNKNOWN"
)

func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case StatusBadGateway:
		return http.StatusBadGateway
	case StatusInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
