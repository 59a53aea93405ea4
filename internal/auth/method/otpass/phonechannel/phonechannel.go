// Package phonechannel delivers one-time passwords over SMS or voice via a
// caller-supplied SendFunc. No SMS provider appears anywhere in the
// example pack, so this is deliberately a thin shim rather than a wired
// third-party gateway client; embedders plug in their own provider.
package phonechannel

import (
	"context"
	"encoding/json"
)

// SendFunc delivers password to the phone number ident, by whatever
// transport the embedder configures (SMS gateway, voice call, webhook,
// ...).
type SendFunc func(ctx context.Context, ident, password string) error

// Channel implements otpass.Channel by delegating to a SendFunc.
type Channel struct {
	send SendFunc
}

// New returns a phone Channel that delivers through send.
func New(send SendFunc) *Channel {
	return &Channel{send: send}
}

func (c *Channel) Name() string { return "phone" }

// SenderInfo is empty: a phone channel has no address to advertise ahead
// of use, unlike email's From header.
func (c *Channel) SenderInfo() json.RawMessage { return json.RawMessage(`{}`) }

func (c *Channel) SendPassword(ctx context.Context, ident, password string) error {
	return c.send(ctx, ident, password)
}
