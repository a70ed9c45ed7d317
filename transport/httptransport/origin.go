package httptransport

import (
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// checkOrigin implements the anti-DNS-rebinding guard: a
// present Origin header must contain "localhost", "127.0.0.1", or the
// literal "null"; a missing header is permitted outright.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	lower := strings.ToLower(origin)
	return strings.Contains(lower, "localhost") || strings.Contains(lower, "127.0.0.1") || lower == "null"
}

// clientHost resolves the browser-visible host for observability fields
// on rejected requests, preferring Forwarded/X-Forwarded-Host over
// r.Host. It never influences the accept/reject verdict.
func clientHost(r *http.Request) string {
	if fwd := r.Header.Get("Forwarded"); fwd != "" {
		for _, part := range strings.Split(fwd, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "host=") {
				if v := strings.Trim(strings.TrimPrefix(part, "host="), "\""); v != "" {
					return stripPort(v)
				}
			}
		}
	}
	if xfh := r.Header.Get("X-Forwarded-Host"); xfh != "" {
		if v := strings.TrimSpace(strings.Split(xfh, ",")[0]); v != "" {
			return stripPort(v)
		}
	}
	return stripPort(r.Host)
}

// effectiveTLDPlusOne computes the eTLD+1 of host for structured log
// fields only; empty for IPs, localhost, or parse failures.
func effectiveTLDPlusOne(host string) string {
	host = stripPort(host)
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return ""
	}
	if net.ParseIP(host) != nil {
		return ""
	}
	etld, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || etld == host {
		return ""
	}
	return etld
}

func stripPort(h string) string {
	if i := strings.IndexByte(h, ':'); i >= 0 {
		return h[:i]
	}
	return h
}
