package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Kyon9x/vn-market-service/internal/apperr"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps err's apperr.Kind to an HTTP status and writes a JSON
// error body, falling back to 500 for anything that isn't an *apperr.Error.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	detail := "an internal error occurred"

	if ae, ok := apperr.As(err); ok {
		detail = ae.Detail
		switch ae.Kind {
		case apperr.KindNotFound:
			status = http.StatusNotFound
		case apperr.KindInvalidInput:
			status = http.StatusBadRequest
		case apperr.KindServiceUnavailable:
			status = http.StatusServiceUnavailable
		case apperr.KindTransientProvider:
			status = http.StatusBadGateway
		case apperr.KindRateLimited:
			status = http.StatusTooManyRequests
			if ae.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(ae.RetryAfter))
			}
		case apperr.KindInternal:
			status = http.StatusInternalServerError
		default:
			status = http.StatusInternalServerError
		}
	}

	writeJSON(w, status, errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
