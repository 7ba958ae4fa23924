package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/agjmills/gallery/internal/logger"
	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
)

// RateLimit throttles requests per client IP with a tollbooth limiter.
// Forwarding headers are only honored from trusted proxies.
func RateLimit(lmt *limiter.Limiter, trusted []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, trusted)
			if httpErr := tollbooth.LimitByKeys(lmt, []string{ip}); httpErr != nil {
				logger.Warn("rate limit exceeded", "ip", ip, "method", r.Method, "path", r.URL.Path)
				writeError(w, http.StatusTooManyRequests, lmt.GetMessage())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParseTrustedCIDRs parses a list of CIDR strings into net.IPNet objects.
// Bare addresses become /32 or /128 networks. Invalid entries are logged and
// skipped.
func ParseTrustedCIDRs(cidrs []string) []*net.IPNet {
	var result []*net.IPNet
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			ip := net.ParseIP(cidr)
			if ip != nil {
				if ip.To4() != nil {
					_, ipNet, _ = net.ParseCIDR(cidr + "/32")
				} else {
					_, ipNet, _ = net.ParseCIDR(cidr + "/128")
				}
				if ipNet != nil {
					result = append(result, ipNet)
					continue
				}
			}
			logger.Warn("invalid trusted proxy CIDR, skipping", "cidr", cidr, "error", err)
			continue
		}
		result = append(result, ipNet)
	}
	return result
}

// ClientIP extracts the client IP without its port. X-Real-IP and then the
// leftmost X-Forwarded-For entry are used only when the connection comes
// from a trusted proxy.
func ClientIP(r *http.Request, trusted []*net.IPNet) string {
	remote := stripPort(r.RemoteAddr)

	if len(trusted) > 0 && ipInCIDRs(remote, trusted) {
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if clientIP := strings.TrimSpace(first); clientIP != "" {
				return clientIP
			}
		}
	}
	return remote
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func ipInCIDRs(ipStr string, cidrs []*net.IPNet) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
