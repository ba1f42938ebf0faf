package validation

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/Varun5711/shortlink/internal/idgen"
)

const (
	MaxURLLength       = 2048
	MinShortCodeLength = 4
	MaxShortCodeLength = 12
)

var (
	ErrInvalidURL       = errors.New("please provide a valid URL")
	ErrURLTooLong       = errors.New("URL must be at most 2048 characters")
	ErrURLScheme        = errors.New("URL must use http or https")
	ErrURLPrivateHost   = errors.New("URL must not point to a private or loopback address")
	ErrInvalidShortCode = errors.New("short code must be 4-12 base62 characters")
)

// NormalizeURL trims surrounding whitespace; stored URLs are compared as-is
// after that.
func NormalizeURL(raw string) string {
	return strings.TrimSpace(raw)
}

func ValidateURL(raw string) error {
	if raw == "" {
		return ErrInvalidURL
	}
	if len(raw) > MaxURLLength {
		return ErrURLTooLong
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return ErrInvalidURL
	default:
		return ErrURLScheme
	}

	host := u.Hostname()
	if host == "" || strings.ContainsAny(host, " \t") {
		return ErrInvalidURL
	}
	if isPrivateOrLoopback(host) {
		return ErrURLPrivateHost
	}

	return nil
}

// isPrivateOrLoopback only inspects literal IPs and localhost. Hostnames are
// not resolved.
func isPrivateOrLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

func ValidateShortCode(code string) error {
	if len(code) < MinShortCodeLength || len(code) > MaxShortCodeLength {
		return ErrInvalidShortCode
	}
	if !idgen.IsValid(code) {
		return ErrInvalidShortCode
	}
	return nil
}
