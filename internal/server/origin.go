package server

import (
	"net"
	"net/http"
	"strings"
)

// requireSameOrigin wraps mutating handlers with a basic CSRF check. Inside
// Home Assistant ingress the request is already authenticated by HA; direct
// access must come from our own pages or from the local machine.
func requireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		referer := r.Header.Get("Referer")
		host := r.Host

		if r.Header.Get("X-Ingress-Path") != "" || strings.Contains(referer, "ingress") {
			next(w, r)
			return
		}

		if referer != "" && host != "" && strings.Contains(referer, host) {
			next(w, r)
			return
		}

		// Refererless requests from the local machine (curl, scripts)
		if referer == "" && isLoopback(r.RemoteAddr) {
			next(w, r)
			return
		}

		writeError(w, http.StatusForbidden, "Forbidden - cross-origin request blocked")
	}
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
