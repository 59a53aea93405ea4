// Package method implements the authentication method algebra (component
// C4): a Method publishes an AuthInfo fragment and accepts a UserIdent JSON
// fragment, and any fixed-arity tuple of methods is itself a Method by way
// of Compose.
package method

import (
	"context"
	"encoding/json"

	warden "github.com/eugener/warden/internal"
)

// Method is one authentication family (native password, OTP, OAuth2, or a
// composition of these).
type Method interface {
	// Name is this method's key in the composed AuthInfo JSON object, and
	// the top-level UserIdent key Matches looks for.
	Name() string
	// Info returns this method's AuthInfo fragment, published verbatim
	// under Name() in the composed server advertisement.
	Info(ctx context.Context) (json.RawMessage, error)
	// Matches reports whether ident's shape belongs to this method, by
	// presence of Name() as a top-level key. Used for untagged-union
	// dispatch during composition; never does I/O.
	Matches(ident json.RawMessage) bool
	// TryAuth authenticates ident, already known (by Matches) to belong to
	// this method. ctime is the client-supplied login timestamp, passed
	// through unchanged; none of the built-in methods (native, otpass,
	// oauth2) read it, and otpass times its tokens with the server clock.
	TryAuth(ctx context.Context, ctime int64, ident json.RawMessage) (*warden.User, error)
}

// identEnvelope is used only to test for the presence of a method's Name()
// key in an incoming UserIdent payload; it never needs to know the rest of
// the shape.
type identEnvelope map[string]json.RawMessage

// HasKey reports whether raw is a JSON object containing key.
func HasKey(raw json.RawMessage, key string) bool {
	var env identEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	_, ok := env[key]
	return ok
}

// Unwrap returns the raw value stored under key in the JSON object raw, and
// whether it was present. Every concrete method's UserIdent fragment is
// wrapped one level under its own Name() (e.g. {"native":{"name":...}}), so
// Matches/TryAuth both start by unwrapping before decoding their inner
// shape.
func Unwrap(raw json.RawMessage, key string) (json.RawMessage, bool) {
	var env identEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	v, ok := env[key]
	return v, ok
}

// tuple is the n-ary composition of methods: an associative combination
// whose AuthInfo is the union of its components' fragments (order
// preserved) and whose TryAuth dispatches to the first component matching
// the incoming UserIdent shape.
type tuple struct {
	methods []Method
}

// Compose combines methods into a single Method. Composition is
// associative: Compose(Compose(a, b), c) and Compose(a, Compose(b, c)) and
// Compose(a, b, c) all produce the same AuthInfo merge and the same
// dispatch order, because Compose flattens nested tuples rather than
// nesting them.
func Compose(methods ...Method) Method {
	flat := make([]Method, 0, len(methods))
	for _, m := range methods {
		if t, ok := m.(*tuple); ok {
			flat = append(flat, t.methods...)
			continue
		}
		flat = append(flat, m)
	}
	return &tuple{methods: flat}
}

func (t *tuple) Name() string { return "" }

// Info merges every component's AuthInfo fragment into one JSON object,
// keyed by each component's Name(), in composition order.
func (t *tuple) Info(ctx context.Context) (json.RawMessage, error) {
	merged := make(map[string]json.RawMessage, len(t.methods))
	order := make([]string, 0, len(t.methods))
	for _, m := range t.methods {
		frag, err := m.Info(ctx)
		if err != nil {
			return nil, err
		}
		merged[m.Name()] = frag
		order = append(order, m.Name())
	}
	return marshalOrdered(order, merged)
}

func (t *tuple) Matches(ident json.RawMessage) bool {
	for _, m := range t.methods {
		if m.Matches(ident) {
			return true
		}
	}
	return false
}

// TryAuth dispatches to the first component method whose Matches reports
// true, preserving composition order. No component matching is BadMethod.
func (t *tuple) TryAuth(ctx context.Context, ctime int64, ident json.RawMessage) (*warden.User, error) {
	for _, m := range t.methods {
		if m.Matches(ident) {
			return m.TryAuth(ctx, ctime, ident)
		}
	}
	return nil, warden.NewProtoError(warden.KindBadMethod, nil)
}

// marshalOrdered renders a JSON object preserving key order -- Go's
// encoding/json always sorts map keys, so this builds the object text by
// hand to honor the spec's "order methods appear in is preserved" rule for
// AuthInfo merge.
func marshalOrdered(order []string, fragments map[string]json.RawMessage) (json.RawMessage, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, '{')
	for i, name := range order {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, fragments[name]...)
	}
	buf = append(buf, '}')
	return buf, nil
}
