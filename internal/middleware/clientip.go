package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP picks the caller address from proxy headers (CF-Connecting-IP,
// X-Real-IP, then the first X-Forwarded-For entry), falling back to the
// connection's remote address. IPv6 loopback is reported as 127.0.0.1.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return normalizeIP(ip)
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return normalizeIP(ip)
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return normalizeIP(ip)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "127.0.0.1"
	}
	return normalizeIP(host)
}

func normalizeIP(ip string) string {
	if ip == "::1" {
		return "127.0.0.1"
	}
	return ip
}
