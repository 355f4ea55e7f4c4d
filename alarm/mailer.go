package alarm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gomail "gopkg.in/gomail.v2"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/manage"
)

// sender performs one SMTP exchange. *gomail.Dialer implements it.
type sender interface {
	DialAndSend(messages ...*gomail.Message) error
}

// Mailer dispatches alarms as plain-text mail through an SMTP relay.
type Mailer struct {
	from   string
	host   string
	send   sender
	logger *slog.Logger
}

// NewMailer builds a dispatcher around the configured relay.
func NewMailer(cfg config.SMTPConfig, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		from:   cfg.From,
		host:   cfg.Host,
		send:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger.With("component", "alarm"),
	}
}

// Notify sends one mail to the event's responsible parties. Events without
// recipients are logged and dropped.
func (m *Mailer) Notify(ctx context.Context, event manage.AlarmEvent) error {
	if len(event.Responsible) == 0 {
		m.logger.Warn("alarm has no responsible parties, mail skipped",
			"sensor", event.SensorID, "reason", event.Reason.String())
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", event.Responsible...)
	msg.SetHeader("Subject", Subject(event))
	msg.SetBody("text/plain", Body(event))

	// DialAndSend carries no context; run it aside so the caller's
	// deadline stays meaningful.
	done := make(chan error, 1)
	go func() { done <- m.send.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			return errors.WrapTransient(err, "Mailer", "Notify", "smtp exchange")
		}
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Mailer", "Notify", "smtp exchange")
	}

	m.logger.Info("alarm mail sent",
		"sensor", event.SensorID,
		"reason", event.Reason.String(),
		"recipients", len(event.Responsible),
		"relay", m.host)
	return nil
}

// Subject renders the mail subject for an event.
func Subject(event manage.AlarmEvent) string {
	return fmt.Sprintf("[farm-iot] %s: %s", humanize(event.Reason), event.SensorID)
}

// Body renders the plain-text mail body.
func Body(event manage.AlarmEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sensor %s raised an alarm.\n\n", event.SensorID)
	fmt.Fprintf(&b, "Reason:      %s\n", humanize(event.Reason))
	fmt.Fprintf(&b, "Occurred at: %s\n", event.OccurredAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Alarm id:    %s\n", event.ID)
	return b.String()
}

func humanize(r manage.Reason) string {
	return strings.ReplaceAll(r.String(), "_", " ")
}
