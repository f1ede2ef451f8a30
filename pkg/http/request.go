package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds configuration for client IP extraction
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ExtractClientIP resolves the stable client identity used to bucket
// rate-limit and lockout state. X-Forwarded-For and X-Real-IP are honored
// only when the direct peer is a trusted proxy, so an attacker cannot rotate
// buckets by forging headers.
//
// An absent or unparseable address yields a distinct "invalid:" bucket per
// raw RemoteAddr rather than one shared "unknown" bucket, so broken clients
// do not pool their attempts.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP, ok := getRemoteAddr(r)
	if !ok {
		return "invalid:" + remoteIP
	}

	if config != nil && isTrustedProxy(remoteIP, config.TrustedProxies) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			for _, ip := range ips {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if isValidIP(xri) {
				return xri
			}
		}
	}

	return remoteIP
}

// getRemoteAddr extracts the IP from RemoteAddr. The second return reports
// whether the result parses as a real address.
func getRemoteAddr(r *http.Request) (string, bool) {
	if r.RemoteAddr == "" {
		return "", false
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}

	if !isValidIP(host) {
		return r.RemoteAddr, false
	}
	return host, true
}

// isTrustedProxy checks if an IP falls within any trusted proxy CIDR range
func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue // Skip invalid CIDR ranges
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
