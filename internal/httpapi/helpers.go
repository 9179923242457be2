package httpapi

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"billbook/internal/core"
)

// maxBodyBytes caps request bodies. Backup imports are the largest
// legitimate payload.
const maxBodyBytes = 10 << 20

// parseYearMonth extracts year and month from query parameters,
// defaulting to the current month. Values that are present but not
// valid integers are rejected.
func parseYearMonth(r *http.Request) (year, month int, err error) {
	now := time.Now().UTC()
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, 0, core.InvalidField("year", "must be an integer")
		}
		year = y
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, 0, core.InvalidField("month", "must be an integer")
		}
		month = m
	}
	return year, month, nil
}

func boolQuery(r *http.Request, key string) bool {
	v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
	return v == "1" || v == "true" || v == "yes"
}

// decodeBody decodes a JSON request body into out, treating malformed
// input as a validation error.
func decodeBody(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return core.Invalid("failed to read request body")
	}
	if len(body) == 0 {
		return core.Invalid("missing request body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.Invalidf("invalid JSON body: %v", err)
	}
	return nil
}

// rawBodyWith reads the request body as raw JSON and injects one string
// field, so a path id can be merged into an action payload.
func rawBodyWith(r *http.Request, key, value string) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, core.Invalid("failed to read request body")
	}
	doc := map[string]json.RawMessage{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, core.Invalidf("invalid JSON body: %v", err)
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	doc[key] = encoded
	return json.Marshal(doc)
}

// clientIP extracts the originating client address, preferring proxy
// headers when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
