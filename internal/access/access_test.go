package access

import (
	"testing"

	warden "github.com/eugener/warden/internal"
)

func TestRequirePerm(t *testing.T) {
	member := warden.BuiltinRoles["member"]
	subject := &warden.Subject{
		User:    &warden.User{UserID: "u1", Name: "elene"},
		Session: &warden.Session{UserID: "u1", SessionID: "s1"},
		Roles:   []warden.Role{member},
	}

	if _, err := RequirePerm(subject, warden.PermUseSession); err != nil {
		t.Fatalf("expected PermUseSession to be granted, got %v", err)
	}
	if _, err := RequirePerm(subject, warden.PermManageUsers); err == nil {
		t.Fatal("expected PermManageUsers to be denied for member role")
	}
}

func TestRequirePermAnonymous(t *testing.T) {
	if _, err := RequirePerm(warden.Anonymous(), warden.PermUseSession); err == nil {
		t.Fatal("expected anonymous subject to be denied any permission")
	}
}

type fakeAccessSubject struct {
	warden.DenyAll
	allowedObject string
}

func (f fakeAccessSubject) HasAccessTo(object any, grant warden.Grant) bool {
	s, ok := object.(string)
	return ok && s == f.allowedObject && grant == "read"
}

func TestRequireAccessTo(t *testing.T) {
	subject := fakeAccessSubject{allowedObject: "doc-1"}

	if _, err := RequireAccessTo(subject, "doc-1", "read"); err != nil {
		t.Fatalf("expected access to doc-1, got %v", err)
	}
	if _, err := RequireAccessTo(subject, "doc-2", "read"); err == nil {
		t.Fatal("expected access to doc-2 to be denied")
	}
	if _, err := RequireAccess(subject, "read"); err == nil {
		t.Fatal("expected ambient access to default-deny via DenyAll")
	}
}
