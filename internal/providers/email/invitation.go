package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"time"
)

//go:embed templates/*.html
var templates embed.FS

var invitationTemplate = template.Must(template.ParseFS(templates, "templates/invitation.html"))

// Invitation is the data rendered into an invitation mail.
type Invitation struct {
	To           string
	ContractName string
	RoleName     string
	InviterName  string
	Token        string
	ExpiresAt    time.Time
}

// InvitationMailer renders invitation mails and hands them to a Provider.
type InvitationMailer struct {
	provider Provider
	baseURL  string
}

func NewInvitationMailer(provider Provider, baseURL string) *InvitationMailer {
	return &InvitationMailer{provider: provider, baseURL: baseURL}
}

// AcceptURL builds the link carrying the plaintext token.
func (m *InvitationMailer) AcceptURL(token string) string {
	return m.baseURL + "?token=" + url.QueryEscape(token)
}

func (m *InvitationMailer) Send(ctx context.Context, inv Invitation) error {
	var body bytes.Buffer
	err := invitationTemplate.Execute(&body, map[string]any{
		"ContractName": inv.ContractName,
		"RoleName":     inv.RoleName,
		"InviterName":  inv.InviterName,
		"AcceptURL":    m.AcceptURL(inv.Token),
		"ExpiresAt":    inv.ExpiresAt.UTC().Format("2 Jan 2006 15:04 MST"),
	})
	if err != nil {
		return fmt.Errorf("render invitation: %w", err)
	}
	subject := fmt.Sprintf("You're invited to join %s", inv.ContractName)
	return m.provider.Send(ctx, []string{inv.To}, subject, body.String())
}
