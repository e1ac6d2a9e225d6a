package delivery

import (
	"context"
	"fmt"
	"io"

	"ecs_event_collector/internal/config"
	"ecs_event_collector/internal/logger"
	"ecs_event_collector/internal/models"

	"gopkg.in/gomail.v2"
)

// Mailer sends the payload as an attachment to the configured recipients.
type Mailer struct {
	dialer  *gomail.Dialer
	from    string
	to      []string
	subject string
	log     *logger.Logger
}

func NewMailer(cfg config.MailConfig, log *logger.Logger) *Mailer {
	if log == nil {
		log = logger.Nop()
	}
	log.Infow("mail_delivery_enabled", "host", cfg.Host, "port", cfg.Port, "recipients", len(cfg.To))
	return &Mailer{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, "", ""),
		from:    cfg.From,
		to:      cfg.To,
		subject: cfg.Subject,
		log:     log,
	}
}

func (m *Mailer) Name() string { return ChannelMail }

// Deliver sends one message. HTML reports are attached as the XML they are
// rendered from.
func (m *Mailer) Deliver(ctx context.Context, payload models.EventPayload, window models.TimeWindow, format models.ReportFormat) error {
	if err := ctx.Err(); err != nil {
		return &Error{Channel: ChannelMail, Err: err}
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to...)
	msg.SetHeader("Subject", fmt.Sprintf("%s %s - %s", m.subject, window.StartParam(), window.EndParam()))
	msg.SetBody("text/plain", mailBody(payload, window, format))
	msg.Attach(ObjectName("", window, payload.Format),
		gomail.SetHeader(map[string][]string{"Content-Type": {payload.Format.MediaType()}}),
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(payload.Body)
			return err
		}),
	)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return &Error{Channel: ChannelMail, Err: err}
	}
	m.log.Infow("mail_sent", "recipients", len(m.to), "payload_bytes", len(payload.Body))
	return nil
}

func mailBody(payload models.EventPayload, window models.TimeWindow, format models.ReportFormat) string {
	body := fmt.Sprintf("ECS audit events from %s to %s (%d bytes, %s) are attached.\n",
		window.StartParam(), window.EndParam(), len(payload.Body), payload.Format)
	if format == models.FormatHTML {
		body += "HTML rendering is not available; the attachment holds the XML source.\n"
	}
	if payload.Truncated {
		body += "The management API reported more events than were returned; this report is incomplete.\n"
	}
	return body
}
