package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
)

// MaxBodySize is the maximum allowed request body size (1 MB).
const MaxBodySize = 1 << 20

// List limits
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// DecodeJSON reads and decodes a JSON request body into dst.
// It returns user-friendly error messages instead of leaking Go internals.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}

	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &unmarshalTypeErr):
		return fmt.Errorf("invalid value for field %q: expected %s", unmarshalTypeErr.Field, unmarshalTypeErr.Type)
	case errors.Is(err, io.EOF):
		return errors.New("request body is empty")
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("request body exceeds maximum size of %d bytes", MaxBodySize)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return fmt.Errorf("unknown field %s", field)
	default:
		return errors.New("invalid JSON in request body")
	}
}

// DecodeAndValidate decodes the body into dst and runs its validate tags.
// A decode failure is reported under the "body" key.
func DecodeAndValidate(r *http.Request, dst interface{}) map[string]string {
	if err := DecodeJSON(r, dst); err != nil {
		return map[string]string{"body": err.Error()}
	}
	return Validate(dst)
}

// ParseAlertFilter reads the list filters of GET /api/alerts. Unknown status
// values are rejected by the service.
func ParseAlertFilter(r *http.Request) (database.AlertFilter, map[string]string) {
	q := r.URL.Query()
	f := database.AlertFilter{
		Status:       lifecycle.Status(strings.TrimSpace(q.Get("status"))),
		RestaurantID: strings.TrimSpace(q.Get("restaurant_id")),
		FoodbankID:   strings.TrimSpace(q.Get("foodbank_id")),
		DriverID:     strings.TrimSpace(q.Get("driver_id")),
	}
	limit, err := ParseLimit(r)
	if err != nil {
		return f, map[string]string{"limit": err.Error()}
	}
	f.Limit = limit
	return f, nil
}

// ParseLimit reads ?limit=, defaulting to DefaultListLimit and capping at
// MaxListLimit
func ParseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return DefaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	if n > MaxListLimit {
		n = MaxListLimit
	}
	return n, nil
}

// ParseBoolQuery reads a boolean flag such as ?active=true. Missing or
// unparsable values yield def.
func ParseBoolQuery(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
