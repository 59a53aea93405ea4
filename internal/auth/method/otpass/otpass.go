package otpass

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"
	"sync"
	"time"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/auth/method"
	"github.com/eugener/warden/internal/storage"
	"github.com/eugener/warden/internal/telemetry"
)

// userIdent is the UserIdent shape this method matches: Channel and Ident
// are mandatory (they name the method and the addressee); Pass is present
// only on the second leg, once a token has been delivered.
type userIdent struct {
	Channel string `json:"channel"`
	Ident   string `json:"ident"`
	Pass    string `json:"pass,omitempty"`
}

// pendingToken is the live state for one identifier: a minted password
// awaiting confirmation.
type pendingToken struct {
	pass    string
	ctime   int64 // mint time, unix milliseconds
	retries int
}

// Method implements the one-time-password state machine: Empty ->
// Pending(pass, ctime, retries) -> Empty, per identifier. The pending map
// uses a plain Mutex rather than an otter cache because eviction is a
// deterministic sweep done at the head of every public call, not an
// LRU/TTL approximation.
type Method struct {
	channels *ChannelSet
	users    storage.UserStore
	opts     OTPassOptions

	// Metrics, if set, counts dispatched tokens by channel.
	Metrics *telemetry.Metrics

	mu      sync.Mutex
	pending map[string]*pendingToken // keyed by canonical identifier
}

// New returns an OTP Method backed by users, parameterized by opts, able
// to deliver through any of channels.
func New(users storage.UserStore, opts OTPassOptions, channels ...Channel) *Method {
	return &Method{
		channels: ComposeChannels(channels...),
		users:    users,
		opts:     opts,
		pending:  make(map[string]*pendingToken),
	}
}

func (m *Method) Name() string { return "otpass" }

func (m *Method) Info(context.Context) (json.RawMessage, error) {
	return m.channels.SenderInfo(), nil
}

func (m *Method) Matches(ident json.RawMessage) bool {
	inner, ok := method.Unwrap(ident, m.Name())
	if !ok {
		return false
	}
	var i userIdent
	if err := json.Unmarshal(inner, &i); err != nil {
		return false
	}
	return i.Channel != "" && i.Ident != ""
}

// TryAuth sweeps expired tokens, then either mints and sends a fresh token
// (pass absent) or checks the supplied pass against the pending token
// (pass present).
func (m *Method) TryAuth(ctx context.Context, ctime int64, ident json.RawMessage) (*warden.User, error) {
	inner, ok := method.Unwrap(ident, m.Name())
	if !ok {
		return nil, warden.NewProtoError(warden.KindBadMethod, nil)
	}
	var i userIdent
	if err := json.Unmarshal(inner, &i); err != nil {
		return nil, warden.NewProtoError(warden.KindBadMethod, err)
	}
	if !m.channels.Has(i.Channel) {
		return nil, warden.NewProtoError(warden.KindBadIdent, nil)
	}

	key := canonicalIdent(i.Ident)
	now := time.Now().UnixMilli()
	m.sweep(now)

	if i.Pass == "" {
		return nil, m.beginChallenge(ctx, i.Channel, key, now)
	}
	return m.completeChallenge(ctx, key, i.Pass)
}

// sweep removes every entry whose ctime is older than dead_time. Runs at
// the head of every public call -- there is no background timer.
func (m *Method) sweep(now int64) {
	dead := m.opts.DeadTime.Milliseconds()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, tok := range m.pending {
		if now-tok.ctime > dead {
			delete(m.pending, k)
		}
	}
}

func (m *Method) beginChallenge(ctx context.Context, channel, key string, now int64) error {
	m.mu.Lock()
	if _, exists := m.pending[key]; exists {
		m.mu.Unlock()
		return warden.NewProtoError(warden.KindBadIdent, nil)
	}
	m.mu.Unlock()

	pass, err := GeneratePassword(m.opts.dict(), m.opts.PassSize)
	if err != nil {
		return warden.NewProtoError(warden.KindBackendError, err)
	}

	m.mu.Lock()
	m.pending[key] = &pendingToken{pass: pass, ctime: now}
	m.mu.Unlock()

	if err := m.channels.Send(ctx, channel, key, pass); err != nil {
		// The pending token is NOT rolled back on send failure: it stays
		// put until dead_time evicts it, so repeated send failures can't
		// be used to flood fresh tokens for the same identifier.
		return err
	}
	if m.Metrics != nil {
		m.Metrics.OTPSentTotal.WithLabelValues(channel).Inc()
	}
	return warden.NewProtoError(warden.KindNeedRetry, nil)
}

func (m *Method) completeChallenge(ctx context.Context, key, suppliedPass string) (*warden.User, error) {
	m.mu.Lock()
	tok, exists := m.pending[key]
	if !exists {
		m.mu.Unlock()
		return nil, warden.NewProtoError(warden.KindBadIdent, nil)
	}
	match := subtle.ConstantTimeCompare([]byte(tok.pass), []byte(suppliedPass)) == 1
	if match {
		delete(m.pending, key)
	} else {
		tok.retries++
		if tok.retries >= m.opts.RetryLimit {
			delete(m.pending, key)
		}
	}
	m.mu.Unlock()

	if !match {
		return nil, warden.NewProtoError(warden.KindBadIdent, nil)
	}
	return m.findOrCreateUser(ctx, key)
}

func (m *Method) findOrCreateUser(ctx context.Context, key string) (*warden.User, error) {
	user, err := m.users.GetByName(ctx, key)
	if err == nil {
		return user, nil
	}
	if err != warden.ErrNotFound {
		return nil, warden.NewProtoError(warden.KindBackendError, err)
	}

	user = &warden.User{Name: key}
	if err := m.users.CreateUser(ctx, user); err != nil {
		return nil, warden.NewProtoError(warden.KindBackendError, err)
	}
	return user, nil
}

func canonicalIdent(ident string) string {
	return strings.ToLower(strings.TrimSpace(ident))
}
