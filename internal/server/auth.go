package server

import (
	"io"
	"net/http"

	warden "github.com/eugener/warden/internal"
)

// handleServerInfo implements GET /auth (spec.md 4.5.1): unencrypted JSON
// advertising the server's envelope key, composed method info, and the
// server's current time for client clock-skew correction.
func (s *server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Proto.ServerInfo(r.Context())
	if err != nil {
		writeJSON(w, errorStatus(err), errorResponseFor(err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// maxLoginBodyBytes bounds the sealed login body; a legitimate sealed
// envelope of a UserIdent never approaches this.
const maxLoginBodyBytes = 64 * 1024

// handleLogin implements POST /auth (spec.md 4.5.2): a sealed-envelope
// request body, base64 text in, base64 text out. A per-identifier login
// throttle (keyed by client IP in the absence of a parsed identifier, since
// the body is opaque ciphertext until Login decrypts it) guards against
// brute force before the body is even read.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.LoginThrottle != nil && !s.deps.LoginThrottle.Allow(clientIdentifier(r)) {
		if s.deps.Metrics != nil {
			s.deps.Metrics.LoginThrottleRejects.Inc()
		}
		writeJSON(w, http.StatusTooManyRequests, errorResponse("too many login attempts"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("failed to read request body"))
		return
	}
	if len(body) > maxLoginBodyBytes {
		writeJSON(w, http.StatusBadRequest, errorResponse("request body too large"))
		return
	}

	sealed, err := s.deps.Proto.Login(r.Context(), string(body))
	s.recordLoginOutcome(err)
	if err != nil {
		if warden.IsKind(err, warden.KindNeedRetry) {
			writeJSON(w, http.StatusOK, errorResponseFor(err))
			return
		}
		writeJSON(w, errorStatus(err), errorResponseFor(err))
		return
	}
	writeSealed(w, http.StatusOK, sealed)
}

func (s *server) recordLoginOutcome(err error) {
	if s.deps.Metrics == nil {
		return
	}
	method := "composed"
	outcome := "success"
	if pe, ok := err.(*warden.ProtoError); ok {
		outcome = pe.Kind.String()
	} else if err != nil {
		outcome = "error"
	}
	s.deps.Metrics.LoginAttemptsTotal.WithLabelValues(method, outcome).Inc()
}

// clientIdentifier extracts the throttle key for an inbound login attempt:
// the remote address, stripped of its port.
func clientIdentifier(r *http.Request) string {
	host := r.RemoteAddr
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
