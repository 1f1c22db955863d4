package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/lumalink/lumalink/internal/service"
)

// requestInfo captures provenance for credential rows.
func requestInfo(r *http.Request) service.Request {
	return service.Request{
		IP:        clientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// clientIP resolves the originating address behind proxies. The leftmost
// X-Forwarded-For entry is the client; the rest are intermediate hops.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// decodeJSON reads a small JSON body into v. Bodies are capped; auth
// requests have no business being large.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 4096)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err != nil {
		return errors.New("invalid request body")
	}
	return nil
}
