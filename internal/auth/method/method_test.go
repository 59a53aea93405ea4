package method

import (
	"context"
	"encoding/json"
	"testing"

	warden "github.com/eugener/warden/internal"
)

// fakeMethod is a minimal Method for exercising composition without
// pulling in a concrete family.
type fakeMethod struct {
	name string
	info json.RawMessage
	user *warden.User
}

func (f *fakeMethod) Name() string { return f.name }

func (f *fakeMethod) Info(context.Context) (json.RawMessage, error) { return f.info, nil }

func (f *fakeMethod) Matches(ident json.RawMessage) bool { return HasKey(ident, f.name) }

func (f *fakeMethod) TryAuth(context.Context, int64, json.RawMessage) (*warden.User, error) {
	return f.user, nil
}

func TestComposeInfoMergePreservesOrder(t *testing.T) {
	a := &fakeMethod{name: "alpha", info: json.RawMessage(`{"x":1}`)}
	b := &fakeMethod{name: "beta", info: json.RawMessage(`{"y":2}`)}

	info, err := Compose(a, b).Info(context.Background())
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	want := `{"alpha":{"x":1},"beta":{"y":2}}`
	if string(info) != want {
		t.Fatalf("want %s, got %s", want, info)
	}

	// Reversed composition order flips the merge order too.
	info2, _ := Compose(b, a).Info(context.Background())
	want2 := `{"beta":{"y":2},"alpha":{"x":1}}`
	if string(info2) != want2 {
		t.Fatalf("want %s, got %s", want2, info2)
	}
}

func TestComposeDispatchesByShape(t *testing.T) {
	alice := &warden.User{Name: "alice"}
	bob := &warden.User{Name: "bob"}
	a := &fakeMethod{name: "alpha", info: json.RawMessage(`{}`), user: alice}
	b := &fakeMethod{name: "beta", info: json.RawMessage(`{}`), user: bob}
	composed := Compose(a, b)

	got, err := composed.TryAuth(context.Background(), 0, json.RawMessage(`{"beta":{}}`))
	if err != nil {
		t.Fatalf("try auth: %v", err)
	}
	if got.Name != "bob" {
		t.Fatalf("want bob, got %v", got)
	}
}

func TestComposeNoMatchIsBadMethod(t *testing.T) {
	a := &fakeMethod{name: "alpha", info: json.RawMessage(`{}`)}
	composed := Compose(a)

	_, err := composed.TryAuth(context.Background(), 0, json.RawMessage(`{"gamma":{}}`))
	if !warden.IsKind(err, warden.KindBadMethod) {
		t.Fatalf("want BadMethod, got %v", err)
	}
}

func TestComposeIsAssociativeAndFlattens(t *testing.T) {
	a := &fakeMethod{name: "a", info: json.RawMessage(`1`)}
	b := &fakeMethod{name: "b", info: json.RawMessage(`2`)}
	c := &fakeMethod{name: "c", info: json.RawMessage(`3`)}

	left := Compose(Compose(a, b), c)
	right := Compose(a, Compose(b, c))
	flat := Compose(a, b, c)

	infoLeft, _ := left.Info(context.Background())
	infoRight, _ := right.Info(context.Background())
	infoFlat, _ := flat.Info(context.Background())

	if string(infoLeft) != string(infoRight) || string(infoRight) != string(infoFlat) {
		t.Fatalf("associativity broken: left=%s right=%s flat=%s", infoLeft, infoRight, infoFlat)
	}
}

func TestHasKey(t *testing.T) {
	if !HasKey(json.RawMessage(`{"name":"x","pass":"y"}`), "name") {
		t.Fatal("want HasKey true for present key")
	}
	if HasKey(json.RawMessage(`{"service":"github"}`), "name") {
		t.Fatal("want HasKey false for absent key")
	}
	if HasKey(json.RawMessage(`not json`), "name") {
		t.Fatal("want HasKey false for malformed JSON")
	}
}
