package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"utmreport/internal/core"
)

var errUnknownVariant = errors.New("unknown report variant")

// selectVariant resolves ?variant=, defaulting to the first configured one.
func (s *Server) selectVariant(r *http.Request) (core.Variant, error) {
	name := strings.ToLower(strings.TrimSpace(formValue(r, "variant")))
	if name == "" {
		return s.variants[0], nil
	}
	for _, v := range s.variants {
		if v.Name == name {
			return v, nil
		}
	}
	return core.Variant{}, errUnknownVariant
}

// parseFilter returns the utm filter with the all-values sentinel folded to "".
// The value is kept verbatim so it matches the column values offered.
func parseFilter(r *http.Request) string {
	v := formValue(r, "utm")
	if v == core.AllValues {
		return ""
	}
	return v
}

// formValue reads from the query string, then from a POST form body.
func formValue(r *http.Request, key string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	if r.Method == http.MethodPost {
		return r.PostFormValue(key)
	}
	return ""
}

func reportURL(path, variant, filter string) string {
	q := url.Values{}
	q.Set("variant", variant)
	if filter != "" {
		q.Set("utm", filter)
	}
	return path + "?" + q.Encode()
}

func parseLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
