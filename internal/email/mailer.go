package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"laundry-engine/internal/engine"
	"laundry-engine/internal/metrics"
	"laundry-engine/internal/repository"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer is the email gateway: it renders a template per transition and
// hands the message to SMTP. As a post-commit hook, delivery is
// fire-and-forget and never affects the order mutation that triggered it.
type Mailer struct {
	cfg    Config
	logger *zap.Logger
}

func NewMailer(cfg Config, logger *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

func (m *Mailer) Name() string {
	return "email"
}

func (m *Mailer) AfterCommit(_ context.Context, ev engine.Event) error {
	tmpl, subject := templateFor(ev.NewStatus)
	if tmpl == nil || ev.CustomerEmail == "" {
		return nil
	}

	// Async so a slow SMTP server never sits in the request path.
	go m.send(ev, tmpl, subject)
	return nil
}

func (m *Mailer) send(ev engine.Event, tmpl *template.Template, subject string) {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, ev); err != nil {
		metrics.EmailsFailedTotal.Inc()
		m.logger.Error("failed to render email template",
			zap.String("order_id", ev.OrderID), zap.Error(err))
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", ev.CustomerEmail)
	msg.SetHeader("Subject", fmt.Sprintf("%s (order %s)", subject, ev.OrderID))
	msg.SetBody("text/html", body.String())

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := d.DialAndSend(msg); err != nil {
		metrics.EmailsFailedTotal.Inc()
		m.logger.Error("failed to send email",
			zap.String("order_id", ev.OrderID),
			zap.String("status", string(ev.NewStatus)),
			zap.Error(err))
		return
	}
	metrics.EmailsSentTotal.Inc()
}

func templateFor(status repository.Status) (*template.Template, string) {
	switch status {
	case repository.StatusRejected:
		return rejectedTmpl, "Your laundry order was declined"
	case repository.StatusReady:
		return readyTmpl, "Your laundry is ready for pickup"
	case repository.StatusCompleted:
		return completedTmpl, "Your laundry order is complete"
	}
	return nil, ""
}

var (
	rejectedTmpl = template.Must(template.New("rejected").Parse(`
<p>Hi {{.CustomerName}},</p>
<p>Unfortunately we could not take your laundry order for {{.PickupDate}}.</p>
{{if .RejectReason}}<p>Reason: {{.RejectReason}}</p>{{end}}
<p>Feel free to book another date.</p>`))

	readyTmpl = template.Must(template.New("ready").Parse(`
<p>Hi {{.CustomerName}},</p>
<p>Your laundry is clean, dry and folded. You can pick it up any time.</p>`))

	completedTmpl = template.Must(template.New("completed").Parse(`
<p>Hi {{.CustomerName}},</p>
<p>Thanks for choosing us! Your order from {{.PickupDate}} is complete.</p>`))
)
