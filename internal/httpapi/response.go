package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/pkg/types"
)

const maxBodyBytes = 1 << 16

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.Envelope{Data: data, Message: msg})
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := store.UserMessage(err)
	if errors.Is(err, errBadRequest) || errors.Is(err, errForbidden) {
		msg = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.Envelope{Error: true, Message: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	}
	switch store.KindOf(err) {
	case store.KindNotFound:
		return http.StatusNotFound
	case store.KindCapacity:
		return http.StatusConflict
	case store.KindPrecondition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}
