// Package notify formats access-code delivery messages. Transport (SMS
// gateway, mail relay, WhatsApp API) lives outside the engine; these
// functions only produce the bodies the frontend or gateway sends.
package notify

import (
	"fmt"
	"time"
)

// CodeMessage bundles everything a share message needs.
type CodeMessage struct {
	Code          string
	ClientName    string
	CertifierName string
	DocumentTitle string
	DirectURL     string
	ExpiresAt     time.Time
}

// Messages holds the formatted bodies per channel.
type Messages struct {
	SMS      string `json:"sms"`
	Email    string `json:"email"`
	WhatsApp string `json:"whatsapp"`
}

// Format renders all delivery channels for one code.
func Format(m CodeMessage) Messages {
	expiry := m.ExpiresAt.Format("Jan 2, 2006 at 15:04 MST")
	return Messages{
		SMS:      formatSMS(m, expiry),
		Email:    formatEmail(m, expiry),
		WhatsApp: formatWhatsApp(m, expiry),
	}
}

func formatSMS(m CodeMessage, expiry string) string {
	return fmt.Sprintf(
		"Your notarization access code is %s. Join your session for %q here: %s (expires %s)",
		m.Code, m.DocumentTitle, m.DirectURL, expiry,
	)
}

func formatEmail(m CodeMessage, expiry string) string {
	return fmt.Sprintf(`<html><body>
<p>Hello %s,</p>
<p>%s has invited you to a remote notarization session for <strong>%s</strong>.</p>
<p>Your access code is:</p>
<h2 style="letter-spacing:2px">%s</h2>
<p><a href="%s">Join your session</a></p>
<p>This code expires on %s.</p>
</body></html>`,
		m.ClientName, m.CertifierName, m.DocumentTitle, m.Code, m.DirectURL, expiry,
	)
}

func formatWhatsApp(m CodeMessage, expiry string) string {
	return fmt.Sprintf(
		"Hello %s! %s invited you to notarize *%s*.\nAccess code: *%s*\nJoin: %s\nExpires: %s",
		m.ClientName, m.CertifierName, m.DocumentTitle, m.Code, m.DirectURL, expiry,
	)
}
