package services

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/gomail.v2"

	"portfolio-tracker/internal/models"
)

// EmailNotifier delivers alert emails over SMTP. Delivery is best-effort:
// a failure surfaces as ErrTransport and the caller keeps the alert armed,
// so the alert retries on the next poll cycle instead of being dropped.
type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailNotifier returns a notifier, or one that always fails with
// ErrTransport when SMTP is not configured.
func NewEmailNotifier(host string, port int, username, password string) *EmailNotifier {
	n := &EmailNotifier{from: username}
	if host == "" || username == "" {
		return n
	}
	n.dialer = gomail.NewDialer(host, port, username, password)
	return n
}

func (n *EmailNotifier) Notify(alert models.Alert, snap models.QuoteSnapshot, toEmail, commentary string) error {
	if n.dialer == nil {
		return fmt.Errorf("%w: SMTP is not configured", models.ErrTransport)
	}
	if toEmail == "" {
		return fmt.Errorf("%w: user has no email address", models.ErrTransport)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", fmt.Sprintf("🚨 Alert: %s - %s", snap.Name, criterionTitle(alert.Criterion)))
	m.SetBody("text/plain", n.textBody(alert, snap, commentary))
	m.AddAlternative("text/html", n.htmlBody(alert, snap, commentary))

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	return nil
}

func (n *EmailNotifier) textBody(alert models.Alert, snap models.QuoteSnapshot, commentary string) string {
	return fmt.Sprintf(`Stock Alert Triggered

Alert Criteria: %s
Threshold: %s

%s (%s)
Current Price: %s
Daily Change: %+.2f%%
Volume: %s
P/E Ratio: %.2f
Beta: %.2f

%s

This is an automated alert from Portfolio Tracker. Please do not reply.
`,
		criterionTitle(alert.Criterion),
		humanize.CommafWithDigits(alert.Threshold, 2),
		snap.Name, snap.Ticker,
		humanize.CommafWithDigits(snap.Price, 2),
		snap.DailyChangePct,
		humanize.Comma(snap.Volume),
		snap.PERatio, snap.Beta,
		commentary)
}

func (n *EmailNotifier) htmlBody(alert models.Alert, snap models.QuoteSnapshot, commentary string) string {
	return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>📊 Stock Alert Triggered</h2>
  <p><strong>Alert Criteria:</strong> %s<br>
     <strong>Threshold:</strong> %s</p>
  <h3>%s (%s)</h3>
  <p style="font-size: 24px; font-weight: bold;">%s</p>
  <table cellpadding="6">
    <tr><td>Daily Change</td><td>%+.2f%%</td></tr>
    <tr><td>Volume</td><td>%s</td></tr>
    <tr><td>P/E Ratio</td><td>%.2f</td></tr>
    <tr><td>Beta</td><td>%.2f</td></tr>
  </table>
  <p>%s</p>
  <p style="color: #666; font-size: 12px;">This is an automated alert from Portfolio Tracker. Please do not reply.</p>
</body>
</html>`,
		criterionTitle(alert.Criterion),
		humanize.CommafWithDigits(alert.Threshold, 2),
		snap.Name, snap.Ticker,
		humanize.CommafWithDigits(snap.Price, 2),
		snap.DailyChangePct,
		humanize.Comma(snap.Volume),
		snap.PERatio, snap.Beta,
		commentary)
}

func criterionTitle(criterion string) string {
	return strings.Title(strings.ReplaceAll(criterion, "_", " "))
}
