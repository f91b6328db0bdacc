// Package mailer resolves effective SMTP parameters from the persisted site
// settings layered over the process-wide defaults, and delivers outbound mail.
package mailer

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/charmbracelet/log"
	mail "github.com/xhit/go-simple-mail/v2"

	"groundwork/internal/config"
	"groundwork/internal/database"
)

// ErrDelivery marks failures to hand a message to the SMTP server (refused
// connection, failed auth, rejected recipient). Callers surface it as a flash
// message instead of an error page.
var ErrDelivery = errors.New("email delivery failed")

// SMTPConfig holds the effective connection parameters for one delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// Resolve computes the effective SMTP parameters. The host block is
// all-or-nothing: a non-empty host in the site settings overrides host, port,
// username and TLS together, otherwise the defaults are used together. The
// password is resolved independently of the host branch: an explicit override
// (a "test without saving" form value) wins, then a non-empty stored
// password, then the default.
func Resolve(site *database.SiteSettings, defaults *config.EmailConfig, passwordOverride string) SMTPConfig {
	cfg := SMTPConfig{
		Host:     defaults.Host,
		Port:     defaults.Port,
		Username: defaults.Username,
		UseTLS:   defaults.UseTLS,
	}
	if site.EmailHost != "" {
		cfg.Host = site.EmailHost
		cfg.Port = site.EmailPort
		cfg.Username = site.EmailHostUser
		cfg.UseTLS = site.EmailUseTLS
	}

	switch {
	case passwordOverride != "":
		cfg.Password = passwordOverride
	case site.EmailHostPassword != "":
		cfg.Password = site.EmailHostPassword
	default:
		cfg.Password = defaults.Password
	}

	return cfg
}

// FromAddress resolves the From header: the site settings address when set,
// the default otherwise, wrapped as "Name <address>" when the site settings
// carry a display name.
func FromAddress(site *database.SiteSettings, defaults *config.EmailConfig) string {
	from := site.EmailFromEmail
	if from == "" {
		from = defaults.FromEmail
	}
	if site.EmailFromName != "" {
		return fmt.Sprintf("%s <%s>", site.EmailFromName, from)
	}
	return from
}

//go:embed templates/*.html
var templatesFS embed.FS

// Mailer sends outbound mail with settings resolved at send time, so admin
// changes take effect without a restart.
type Mailer struct {
	defaults *config.EmailConfig
}

// New creates a new mailer around the process-wide default SMTP configuration.
func New(defaults *config.EmailConfig) *Mailer {
	return &Mailer{defaults: defaults}
}

// SendTestEmail delivers a short probe message, optionally with a password
// override that is used for this delivery only and never persisted.
func (m *Mailer) SendTestEmail(site *database.SiteSettings, to, passwordOverride string) error {
	body := "<p>This is a test email sent from your groundwork instance. " +
		"If you can read this, the SMTP settings work.</p>"
	return m.send(Resolve(site, m.defaults, passwordOverride), FromAddress(site, m.defaults), to, "Email configuration test", body)
}

// SendPasswordResetEmail delivers a reset link to the given address.
func (m *Mailer) SendPasswordResetEmail(site *database.SiteSettings, to, resetURL string) error {
	body, err := m.resetEmailBody(resetURL)
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}
	return m.send(Resolve(site, m.defaults, ""), FromAddress(site, m.defaults), to, "Password reset", body)
}

func (m *Mailer) resetEmailBody(resetURL string) (string, error) {
	t, err := template.New("").ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "reset_email.html", map[string]string{"ResetURL": resetURL}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// send connects to the resolved SMTP endpoint and delivers a single message.
// The call is synchronous and blocks the request that triggered it.
func (m *Mailer) send(cfg SMTPConfig, from, to, subject, body string) error {
	server := mail.NewSMTPClient()
	server.Host = cfg.Host
	server.Port = cfg.Port
	server.Username = cfg.Username
	server.Password = cfg.Password
	if cfg.UseTLS {
		server.Encryption = mail.EncryptionSTARTTLS
	} else {
		server.Encryption = mail.EncryptionNone
	}
	server.KeepAlive = false
	server.ConnectTimeout = 10 * time.Second
	server.SendTimeout = 10 * time.Second

	smtpClient, err := server.Connect()
	if err != nil {
		return fmt.Errorf("%w: connect to %s:%d: %v", ErrDelivery, cfg.Host, cfg.Port, err)
	}
	defer func() {
		if closeErr := smtpClient.Close(); closeErr != nil {
			log.Warn("failed to close SMTP client", "error", closeErr)
		}
	}()

	email := mail.NewMSG()
	email.SetFrom(from)
	email.AddTo(to)
	email.SetSubject(subject)
	email.SetBody(mail.TextHTML, body)

	if email.Error != nil {
		return fmt.Errorf("failed to build email: %w", email.Error)
	}

	if err := email.Send(smtpClient); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	log.Info("email sent", "to", to, "subject", subject)
	return nil
}
