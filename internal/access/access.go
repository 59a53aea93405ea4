// Package access implements the role/permission/grant evaluation model
// (component C3): a pure function from (subject, requirement) to pass or
// deny. It holds no state and performs no I/O -- every check is a plain
// function of its arguments, per the spec's purity invariant for HasPerm.
package access

import (
	"fmt"

	warden "github.com/eugener/warden/internal"
)

// Denied is returned by the Require* helpers when a subject lacks the
// requested permission or grant. The HTTP layer (internal/server) maps it
// to 403, mirroring the teacher's requirePerm middleware but expressed as
// a value instead of a middleware closure so it composes outside of HTTP.
type Denied struct {
	Reason string
}

func (d *Denied) Error() string { return d.Reason }

// RequirePerm returns subject unchanged if it holds perm, or a *Denied
// error otherwise.
func RequirePerm(subject *warden.Subject, perm warden.Permission) (*warden.Subject, error) {
	if subject == nil || !subject.HasPerm(perm) {
		return nil, &Denied{Reason: fmt.Sprintf("missing permission %d", perm)}
	}
	return subject, nil
}

// RequireAccess returns subject unchanged if subject.HasAccess(grant), or a
// *Denied error otherwise. subject must implement warden.AccessSubject;
// applications that embed warden.DenyAll get "always denied" for free.
func RequireAccess(subject warden.AccessSubject, grant warden.Grant) (warden.AccessSubject, error) {
	if subject == nil || !subject.HasAccess(grant) {
		return nil, &Denied{Reason: fmt.Sprintf("missing access grant %q", grant)}
	}
	return subject, nil
}

// RequireAccessTo returns subject unchanged if subject.HasAccessTo(object,
// grant), or a *Denied error otherwise.
func RequireAccessTo(subject warden.AccessSubject, object any, grant warden.Grant) (warden.AccessSubject, error) {
	if subject == nil || !subject.HasAccessTo(object, grant) {
		return nil, &Denied{Reason: fmt.Sprintf("missing access grant %q to object", grant)}
	}
	return subject, nil
}
