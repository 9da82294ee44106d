package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/rs/zerolog"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch orders.KindOf(err) {
	case orders.KindValidation:
		return http.StatusBadRequest
	case orders.KindBusinessConflict:
		if orders.Code(err) == "INSUFFICIENT_STOCK" {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	case orders.KindStateConflict:
		return http.StatusConflict
	case orders.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto the error taxonomy. Internal and integrity errors
// are logged and their detail is not echoed to the caller.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Code: orders.Code(err)}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("code", body.Code).Msg("request failed")
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}
