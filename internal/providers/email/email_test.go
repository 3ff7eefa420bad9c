package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	to      []string
	subject string
	body    string
}

func (c *capture) Send(_ context.Context, to []string, subject string, htmlBody string) error {
	c.to, c.subject, c.body = to, subject, htmlBody
	return nil
}

func TestInvitationMailerRendersAcceptURL(t *testing.T) {
	sink := &capture{}
	mailer := NewInvitationMailer(sink, "https://app.example.com/invite")

	err := mailer.Send(context.Background(), Invitation{
		To:           "new@example.com",
		ContractName: "Acme <Retail>",
		RoleName:     "Analyst",
		Token:        "abc123",
		ExpiresAt:    time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"new@example.com"}, sink.to)
	assert.Equal(t, "You're invited to join Acme <Retail>", sink.subject)
	assert.Contains(t, sink.body, "https://app.example.com/invite?token=abc123")
	assert.Contains(t, sink.body, "Acme &lt;Retail&gt;")
	assert.Contains(t, sink.body, "8 Mar 2025")
}

func TestSMTPProviderBuildsMessage(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.local", Port: 2525, From: "no-reply@example.com"})
	var gotAddr string
	var gotMsg []byte
	var gotAuth smtp.Auth
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotMsg = addr, a, msg
		return nil
	}

	require.NoError(t, p.Send(context.Background(), []string{"a@example.com"}, "Hello\r\nBcc: x", "<p>hi</p>"))
	assert.Equal(t, "smtp.local:2525", gotAddr)
	assert.Nil(t, gotAuth)
	msg := string(gotMsg)
	assert.True(t, strings.HasPrefix(msg, "From: no-reply@example.com\r\n"))
	assert.Contains(t, msg, "Subject: HelloBcc: x\r\n")
	assert.True(t, strings.HasSuffix(msg, "<p>hi</p>"))

	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}
