package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies configures Echo to trust reverse proxy headers
// (X-Forwarded-For, X-Real-IP, X-Forwarded-Proto) from specific IP ranges.
//
// A Foyer fleet usually sits behind one shared reverse proxy that routes
// each hostname or path prefix to its dashboard process. Without this
// config, c.RealIP() would always return the proxy's IP, and the login
// rate limiter would throttle the proxy itself instead of the client.
// Only private ranges should be trusted; a spoofed X-Forwarded-For from
// the open internet must not be able to reset its own rate bucket.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	var trusted []*net.IPNet
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			// Invalid CIDRs are skipped; this runs once at startup.
			continue
		}
		trusted = append(trusted, network)
	}

	// Echo's IPExtractor determines how c.RealIP() resolves the client IP.
	e.IPExtractor = func(req *http.Request) string {
		peer := peerIP(req.RemoteAddr)

		// Forwarding headers count only when the direct connection comes
		// from a trusted proxy. Anything else is the client itself.
		if !cidrsContain(trusted, peer) {
			return peer
		}

		// X-Forwarded-For first: the leftmost entry is the original
		// client when every hop is trusted.
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}

		// X-Real-IP as set by nginx and friends.
		if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}

		return peer
	}
}

// peerIP strips the port from a "host:port" RemoteAddr string.
func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// cidrsContain reports whether ipStr falls within any of the given networks.
func cidrsContain(networks []*net.IPNet, ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
