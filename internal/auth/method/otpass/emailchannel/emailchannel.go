// Package emailchannel delivers one-time passwords by SMTP email. SMTP is
// an explicit out-of-scope external collaborator; there is no mail library
// anywhere in the example pack to ground a richer choice on, so this stays
// a thin net/smtp + mime/multipart adapter rather than a third-party mail
// SDK.
package emailchannel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
)

// Config holds the SMTP server and message parameters for a Channel.
type Config struct {
	Addr     string // host:port
	Auth     smtp.Auth
	From     string
	Subject  string
	TextBody string // text/plain template; "%s" is replaced with the password
	HTMLBody string // text/html template; "%s" is replaced with the password
}

// Channel implements otpass.Channel over SMTP.
type Channel struct {
	cfg Config
}

// New returns an email Channel using cfg.
func New(cfg Config) *Channel {
	return &Channel{cfg: cfg}
}

func (c *Channel) Name() string { return "email" }

// SenderInfo advertises the sending address, which is the only parameter a
// client needs to recognize this channel.
func (c *Channel) SenderInfo() json.RawMessage {
	b, _ := json.Marshal(struct {
		From string `json:"from"`
	}{From: c.cfg.From})
	return b
}

// SendPassword sends a multipart text+HTML message with password embedded
// in both parts, to ident (an email address).
func (c *Channel) SendPassword(ctx context.Context, ident, password string) error {
	msg, err := c.buildMessage(ident, password)
	if err != nil {
		return fmt.Errorf("emailchannel: build message: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(c.cfg.Addr, c.cfg.Auth, c.cfg.From, []string{ident}, msg)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) buildMessage(ident, password string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", ident)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", c.cfg.Subject))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", writer.Boundary())

	text, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=UTF-8"}})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(text, c.cfg.TextBody, password)

	html, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=UTF-8"}})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(html, c.cfg.HTMLBody, password)

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
