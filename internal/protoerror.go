package warden

import "net/http"

// ErrorKind enumerates the closed set of authentication-protocol failures.
// Every method family, channel, and provider in this module reports
// failures as one of these kinds so the HTTP layer has a single, stable
// mapping table instead of ad hoc status codes scattered through handlers.
type ErrorKind int

const (
	_ ErrorKind = iota
	KindCryptoError
	KindBadMethod
	KindBadIdent
	KindBadService
	KindOutdated
	KindLostSession
	KindBadSession
	KindBadUser
	KindNeedRetry
	KindMissingAuth
	KindBackendError
	KindServiceError
)

var errorKindNames = map[ErrorKind]string{
	KindCryptoError:  "CryptoError",
	KindBadMethod:    "BadMethod",
	KindBadIdent:     "BadIdent",
	KindBadService:   "BadService",
	KindOutdated:     "Outdated",
	KindLostSession:  "LostSession",
	KindBadSession:   "BadSession",
	KindBadUser:      "BadUser",
	KindNeedRetry:    "NeedRetry",
	KindMissingAuth:  "MissingAuth",
	KindBackendError: "BackendError",
	KindServiceError: "ServiceError",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "UnknownError"
}

// HTTPStatus returns the status code this kind maps to per the protocol's
// error table. NeedRetry is not a failure; it rides a 200 response with an
// explicit marker, so callers should special-case it before consulting this.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindCryptoError, KindBadMethod, KindBadService:
		return http.StatusBadRequest
	case KindBadIdent, KindOutdated, KindLostSession, KindBadSession, KindBadUser, KindMissingAuth:
		return http.StatusForbidden
	case KindBackendError, KindServiceError:
		return http.StatusInternalServerError
	case KindNeedRetry:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// ProtoError is the single error type the protocol surfaces. cause, when
// present, is logged at the observing site but never exposed to the client
// -- Error() reports only the Kind.
type ProtoError struct {
	Kind  ErrorKind
	cause error
}

// NewProtoError wraps cause (which may be nil) as a ProtoError of kind k.
func NewProtoError(k ErrorKind, cause error) *ProtoError {
	return &ProtoError{Kind: k, cause: cause}
}

func (e *ProtoError) Error() string { return e.Kind.String() }

func (e *ProtoError) Unwrap() error { return e.cause }

// Is reports equality by Kind, so errors.Is(err, NewProtoError(k, nil))
// matches any ProtoError of kind k regardless of its cause. IsKind, below,
// is the direct kind check.
func (e *ProtoError) Is(target error) bool {
	other, ok := target.(*ProtoError)
	return ok && other.cause == nil && other.Kind == e.Kind
}

// IsKind reports whether err is a *ProtoError of the given kind.
func IsKind(err error, k ErrorKind) bool {
	pe, ok := err.(*ProtoError)
	return ok && pe.Kind == k
}
