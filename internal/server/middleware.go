package server

import (
	"net/http"
	"strconv"

	"github.com/soloport/devicegate/internal/model"
)

// Device attribute headers reported by the dashboard front end on
// mutating requests. Missing headers become zero values: the classifier
// treats absence as signal, not as a transport error.
const (
	headerPlatform    = "X-Device-Platform"
	headerGeometry    = "X-Device-Screen-Geometry"
	headerVendor      = "X-Device-Vendor"
	headerTouchPoints = "X-Device-Touch-Points"
	headerConcurrency = "X-Device-Hardware-Concurrency"
	headerGPURenderer = "X-Device-Gpu-Renderer"
)

// Middleware gates mutating requests through the access gate.
// Non-mutating methods pass through without fingerprinting. Denied
// requests get 403 with a category reason; the handler chain is never
// reached, so no mutation can occur.
func (s *Server) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		decision := s.gate.Check(bundleFromRequest(r))
		if !decision.Allow {
			writeJSON(w, http.StatusForbidden, deniedResponse{
				Blocked: true,
				Reason:  denyCategory(decision),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// bundleFromRequest reads the device attribute headers into a bundle.
// User-Agent is the standard header; the source address comes from
// RemoteAddr, already rewritten by chi's RealIP middleware.
func bundleFromRequest(r *http.Request) model.AttributeBundle {
	b := model.AttributeBundle{
		Platform:       r.Header.Get(headerPlatform),
		UserAgent:      r.Header.Get("User-Agent"),
		ScreenGeometry: r.Header.Get(headerGeometry),
		Vendor:         r.Header.Get(headerVendor),
		SourceAddr:     r.RemoteAddr,
	}
	if v := r.Header.Get(headerTouchPoints); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			b.TouchPoints = n
		}
	}
	if v := r.Header.Get(headerConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			b.HardwareConcurrency = n
		}
	}
	if values, ok := r.Header[headerGPURenderer]; ok && len(values) > 0 {
		renderer := values[0]
		b.GPURenderer = &renderer
	}
	return b
}

type deniedResponse struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason"`
}

// denyCategory maps a decision to the coarse reason surfaced to
// clients. Rule weights and full digests stay internal.
func denyCategory(d model.AccessDecision) string {
	switch d.RulePath {
	case model.PathBlocklistHit:
		return "device blocked"
	case model.PathRegistryMismatch:
		return "signature mismatch"
	case model.PathInternalError:
		return "internal error"
	default:
		return "device rejected"
	}
}
