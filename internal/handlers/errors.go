package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// badRequest is a client input problem surfaced as 400
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string {
	return e.msg
}

func errBadRequest(msg string) error {
	return &badRequest{msg: msg}
}

// decodeBody treats an empty body as an empty object
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest(fmt.Sprintf("Invalid JSON: %v", err))
	}
	return nil
}
