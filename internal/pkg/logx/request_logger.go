/*
Package logx wraps zerolog with the global logger setup and small level helpers
used across the communication hub.

This file holds the chi request-logging middleware. Client IPs are anonymized
before logging: the last IPv4 octet is zeroed and the lower half of IPv6
addresses is dropped.
*/
package logx

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// anonymizeIP reduces an IP address to a coarse prefix before it is logged.
func anonymizeIP(ipStr string) string {
	host, _, err := net.SplitHostPort(ipStr)
	if err == nil {
		ipStr = host
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "unknown_ip"
	}

	if ip.IsLoopback() {
		return "127.0.0.1"
	}

	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	if v6 := ip.To16(); v6 != nil {
		return fmt.Sprintf("%x:%x:%x:%x::",
			uint16(v6[0])<<8|uint16(v6[1]),
			uint16(v6[2])<<8|uint16(v6[3]),
			uint16(v6[4])<<8|uint16(v6[5]),
			uint16(v6[6])<<8|uint16(v6[7]))
	}

	return ipStr
}

// RequestLogger returns middleware that logs method, path, status, byte count
// and latency for every request, tagged with the chi request ID.
func RequestLogger() func(next http.Handler) http.Handler {
	baseLogger := Logger()

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())
			anonIP := anonymizeIP(r.RemoteAddr)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				baseLogger.Info().
					Str("request_id", requestID).
					Str("remote_ip", anonIP).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("latency_ms", time.Since(start)).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		}

		return http.HandlerFunc(fn)
	}
}
