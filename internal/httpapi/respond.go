package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"msgrelay/internal/domain"
)

// Error codes carried in the "error" field of failure responses.
const (
	codeInvalidAddress  = "invalid_address"
	codeInvalidRequest  = "invalid_request"
	codePayloadTooLarge = "payload_too_large"
	codeNotFound        = "not_found"
	codeInternal        = "internal"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeComponentError maps component sentinel errors onto HTTP codes
// without leaking internals.
func writeComponentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, codeInvalidAddress, "address must be a 0x-prefixed 40-hex-digit string")
	case errors.Is(err, domain.ErrPayloadTooLarge):
		writeError(w, http.StatusBadRequest, codePayloadTooLarge, "payload exceeds the configured limit")
	case errors.Is(err, domain.ErrBatchTooLarge):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "batch exceeds the configured maximum")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "no record for that address")
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// decodeBody parses a JSON request body bounded by the configured cap.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "malformed JSON body")
		return false
	}
	return true
}

// pathAddress parses the {address} route parameter.
func pathAddress(w http.ResponseWriter, raw string) (domain.Address, bool) {
	addr, err := domain.ParseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidAddress, "address must be a 0x-prefixed 40-hex-digit string")
		return "", false
	}
	return addr, true
}
