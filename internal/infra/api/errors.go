package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"docchat/internal/domain"
)

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var ue *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrEmptyFile),
		errors.Is(err, domain.ErrUnsupportedType),
		errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusBadRequest
	case errors.As(err, &ue):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toErrorBody(err error) errorBody {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		return errorBody{Error: ue.Error(), Detail: ue.Hint}
	}
	if statusFor(err) == http.StatusInternalServerError {
		return errorBody{Error: "internal error"}
	}
	return errorBody{Error: err.Error()}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), toErrorBody(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
