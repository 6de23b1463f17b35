package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

type requestBodyTooLargeError struct {
	Limit int64
}

func (e *requestBodyTooLargeError) Error() string {
	return fmt.Sprintf("request body too large (max %d bytes)", e.Limit)
}

// DecodeBody decodes the JSON request body into v, rejecting unknown fields
// and trailing data.
func DecodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &requestBodyTooLargeError{Limit: maxErr.Limit}
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &requestBodyTooLargeError{Limit: maxErr.Limit}
		}
		return fmt.Errorf("invalid request body: must contain a single JSON value")
	}
	return nil
}

func writeDecodeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *requestBodyTooLargeError
	if errors.As(err, &tooLarge) {
		WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", tooLarge.Error())
		return
	}
	WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
}

// PathParam extracts a named path parameter (Go 1.22+ ServeMux patterns).
func PathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
