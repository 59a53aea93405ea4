package otpass

import (
	"context"
	"encoding/json"
	"fmt"

	warden "github.com/eugener/warden/internal"
)

// Channel delivers a minted password to the user out of band (email, SMS,
// ...). Channels compose the same way methods do: a ChannelSet merges
// SenderInfo fragments under each channel's Name, in composition order, and
// routes Send calls to the channel the client named.
type Channel interface {
	Name() string
	SenderInfo() json.RawMessage
	SendPassword(ctx context.Context, ident, password string) error
}

// ChannelSet is the composition of zero or more Channels.
type ChannelSet struct {
	channels []Channel
}

// ComposeChannels flattens and combines channels into one ChannelSet.
func ComposeChannels(channels ...Channel) *ChannelSet {
	flat := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if set, ok := ch.(*ChannelSet); ok {
			flat = append(flat, set.channels...)
			continue
		}
		flat = append(flat, ch)
	}
	return &ChannelSet{channels: flat}
}

// Has reports whether name is a known channel.
func (s *ChannelSet) Has(name string) bool {
	_, ok := s.find(name)
	return ok
}

// SenderInfo merges every channel's SenderInfo fragment into one JSON
// object, keyed by Name, in composition order.
func (s *ChannelSet) SenderInfo() json.RawMessage {
	buf := make([]byte, 0, 128)
	buf = append(buf, '{')
	for i, ch := range s.channels {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, _ := json.Marshal(ch.Name())
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, ch.SenderInfo()...)
	}
	buf = append(buf, '}')
	return buf
}

// Send dispatches to the named channel. An unknown channel name is
// reported as BadIdent -- the request's shape matched the OTP method, but
// named a channel this composition doesn't carry.
func (s *ChannelSet) Send(ctx context.Context, name, ident, password string) error {
	ch, ok := s.find(name)
	if !ok {
		return warden.NewProtoError(warden.KindBadIdent, fmt.Errorf("otpass: unknown channel %q", name))
	}
	if err := ch.SendPassword(ctx, ident, password); err != nil {
		return warden.NewProtoError(warden.KindServiceError, err)
	}
	return nil
}

func (s *ChannelSet) find(name string) (Channel, bool) {
	for _, ch := range s.channels {
		if ch.Name() == name {
			return ch, true
		}
	}
	return nil, false
}
